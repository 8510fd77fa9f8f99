// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package wait

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// TryDirective is a response that a Waiter's TryFunc can return to instruct
// the queue to continue trying or to quit.
type TryDirective bool

const (
	// TryAgain, when returned from the Waiter's TryFunc, instructs the ticker
	// queue to try again after the configured delay.
	TryAgain TryDirective = false
	// DontTryAgain, when returned from the Waiter's TryFunc, instructs the
	// ticker queue to quit trying and quit tracking the Waiter.
	DontTryAgain TryDirective = true
)

// ErrExpired is returned from Wait when the Waiter's expiration is already
// in the past.
var ErrExpired = errors.New("waiter given expiration before present")

// Waiter is a function to run every recheckInterval until completion or
// expiration. Completion is indicated when the TryFunc returns DontTryAgain.
// Expiration occurs when TryAgain is returned after Expiration time.
type Waiter struct {
	// Expiration time is checked after the function returns TryAgain. If the
	// current time > Expiration, ExpireFunc will be run and the waiter will be
	// un-queued.
	Expiration time.Time
	// TryFunc is the function to run periodically until DontTryAgain is
	// returned or Waiter expires.
	TryFunc func() TryDirective
	// ExpireFunc is a function to run in the case that the Waiter expires.
	// May be nil.
	ExpireFunc func()
}

type queuedWaiter struct {
	*Waiter
	canceled atomic.Bool
}

func (w *queuedWaiter) expire() {
	if w.ExpireFunc != nil && !w.canceled.Load() {
		w.ExpireFunc()
	}
}

// Cancel removes a Waiter from its queue. A TryFunc that is running when
// Cancel is called is allowed to finish, but it will not be run again and the
// ExpireFunc will not be run. Cancel may be called more than once.
type Cancel func()

// TickerQueue is a Waiter manager that checks a function periodically until
// DontTryAgain is indicated or the Waiter is canceled.
type TickerQueue struct {
	waiterMtx       sync.Mutex
	waiters         []*queuedWaiter
	recheckInterval time.Duration
}

// NewTickerQueue is the constructor for a new TickerQueue.
func NewTickerQueue(recheckInterval time.Duration) *TickerQueue {
	return &TickerQueue{
		recheckInterval: recheckInterval,
		waiters:         make([]*queuedWaiter, 0, 64),
	}
}

// Wait queues the Waiter. The (*Waiter).TryFunc will be run every recheck
// interval until either 1) the function returns the value DontTryAgain, 2) the
// function's Expiration time has passed, or 3) the returned Cancel is called.
// In the case of 2, the (*Waiter).ExpireFunc will be run. Unlike the run loop,
// Wait does not call TryFunc, so the caller never blocks on it.
func (q *TickerQueue) Wait(w *Waiter) (Cancel, error) {
	if time.Now().After(w.Expiration) {
		return nil, ErrExpired
	}
	qw := &queuedWaiter{Waiter: w}
	q.waiterMtx.Lock()
	q.waiters = append(q.waiters, qw)
	q.waiterMtx.Unlock()
	return func() { qw.canceled.Store(true) }, nil
}

// Len is the number of waiters that are queued and not canceled.
func (q *TickerQueue) Len() int {
	q.waiterMtx.Lock()
	defer q.waiterMtx.Unlock()
	var n int
	for _, w := range q.waiters {
		if !w.canceled.Load() {
			n++
		}
	}
	return n
}

// Run runs the primary wait loop until the context is canceled.
func (q *TickerQueue) Run(ctx context.Context) {
	// Expire any waiters left on shutdown.
	defer func() {
		q.waiterMtx.Lock()
		waiters := q.waiters
		q.waiters = nil
		q.waiterMtx.Unlock()
		for _, w := range waiters {
			w.expire()
		}
	}()

	ticker := time.NewTicker(q.recheckInterval)
	defer ticker.Stop()

	runWaiters := func() {
		// TryFuncs may queue new waiters, so don't hold the lock while
		// running them.
		q.waiterMtx.Lock()
		waiters := q.waiters
		q.waiters = make([]*queuedWaiter, 0, len(waiters))
		q.waiterMtx.Unlock()

		agains := make([]*queuedWaiter, 0, len(waiters))
		tNow := time.Now()
		for i, w := range waiters {
			if ctx.Err() != nil {
				agains = append(agains, waiters[i:]...)
				break
			}
			if w.canceled.Load() {
				continue
			}
			if w.TryFunc() == DontTryAgain {
				continue
			}
			if w.Expiration.Before(tNow) {
				w.expire()
				continue
			}
			agains = append(agains, w)
		}

		q.waiterMtx.Lock()
		q.waiters = append(agains, q.waiters...)
		q.waiterMtx.Unlock()
	}

	for {
		select {
		case <-ticker.C:
			runWaiters()
		case <-ctx.Done():
			return
		}
	}
}
