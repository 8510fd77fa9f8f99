// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"context"
	"sync"
)

// Runner is satisfied by a type that runs until its context is canceled.
type Runner interface {
	Run(ctx context.Context)
}

// StartStopWaiter wraps a Runner, providing the non-blocking Start and Stop
// methods, and the blocking WaitForShutdown method.
type StartStopWaiter struct {
	runner Runner
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewStartStopWaiter creates a StartStopWaiter from a Runner.
func NewStartStopWaiter(runner Runner) *StartStopWaiter {
	return &StartStopWaiter{
		runner: runner,
	}
}

// Start launches the Runner in a goroutine. Start will return immediately. Use
// Stop to signal the Runner to stop, followed by WaitForShutdown to allow
// shutdown to complete.
func (ssw *StartStopWaiter) Start(ctx context.Context) {
	ssw.ctx, ssw.cancel = context.WithCancel(ctx)
	ssw.wg.Add(1)
	go func() {
		ssw.runner.Run(ssw.ctx)
		ssw.cancel()
		ssw.wg.Done()
	}()
}

// WaitForShutdown blocks until the Runner has returned in response to Stop.
func (ssw *StartStopWaiter) WaitForShutdown() {
	ssw.wg.Wait()
}

// On will be true until the context is canceled.
func (ssw *StartStopWaiter) On() bool {
	return ssw.ctx.Err() == nil
}

// Stop cancels the context.
func (ssw *StartStopWaiter) Stop() {
	ssw.cancel()
}
