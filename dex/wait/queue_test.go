// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package wait

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickerQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewTickerQueue(time.Millisecond)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(ctx)
	}()

	// Completes after three tries.
	var tries atomic.Int32
	done := make(chan struct{})
	if _, err := q.Wait(&Waiter{
		Expiration: time.Now().Add(time.Minute),
		TryFunc: func() TryDirective {
			if tries.Add(1) == 3 {
				close(done)
				return DontTryAgain
			}
			return TryAgain
		},
	}); err != nil {
		t.Fatalf("Wait error: %v", err)
	}

	// Expires.
	expired := make(chan struct{})
	if _, err := q.Wait(&Waiter{
		Expiration: time.Now().Add(5 * time.Millisecond),
		TryFunc:    func() TryDirective { return TryAgain },
		ExpireFunc: func() { close(expired) },
	}); err != nil {
		t.Fatalf("Wait error: %v", err)
	}

	for _, c := range []chan struct{}{done, expired} {
		select {
		case <-c:
		case <-time.After(time.Second):
			t.Fatalf("waiter not resolved")
		}
	}

	cancel()
	wg.Wait()
	if tries.Load() != 3 {
		t.Fatalf("expected 3 tries, got %d", tries.Load())
	}
}

func TestTickerQueueCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewTickerQueue(time.Millisecond)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(ctx)
	}()

	var tries atomic.Int32
	var expireCalls atomic.Int32
	stop, err := q.Wait(&Waiter{
		Expiration: time.Now().Add(time.Hour),
		TryFunc: func() TryDirective {
			tries.Add(1)
			return TryAgain
		},
		ExpireFunc: func() { expireCalls.Add(1) },
	})
	if err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 waiter, got %d", q.Len())
	}

	time.Sleep(10 * time.Millisecond)
	stop()
	stop()
	if q.Len() != 0 {
		t.Fatalf("canceled waiter still counted")
	}
	time.Sleep(5 * time.Millisecond)
	n := tries.Load()
	time.Sleep(10 * time.Millisecond)
	if tries.Load() != n {
		t.Fatalf("canceled waiter still running")
	}

	// Shutdown does not expire canceled waiters.
	cancel()
	wg.Wait()
	if expireCalls.Load() != 0 {
		t.Fatalf("canceled waiter expired")
	}
}

func TestWaitExpired(t *testing.T) {
	q := NewTickerQueue(time.Second)
	if _, err := q.Wait(&Waiter{Expiration: time.Now().Add(-time.Second)}); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}
