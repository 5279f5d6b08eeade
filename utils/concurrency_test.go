package utils

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2, 0)
	var running, peak int64

	for i := 0; i < 20; i++ {
		pool.Submit(func() error {
			n := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt64(&running, -1)
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if peak > 2 {
		t.Errorf("peak concurrency: got %d, want <= 2", peak)
	}
}

func TestWorkerPoolKeepsFirstError(t *testing.T) {
	pool := NewWorkerPool(1, 0)
	first := errors.New("first")

	pool.Submit(func() error { return first })
	pool.Submit(func() error { return errors.New("second") })
	pool.Submit(func() error { return nil })

	if err := pool.Wait(); !errors.Is(err, first) {
		t.Errorf("Wait: got %v, want %v", err, first)
	}
}

func TestWorkerPoolRateLimit(t *testing.T) {
	rateLimit := 50 * time.Millisecond
	pool := NewWorkerPool(1, rateLimit)

	var mu sync.Mutex
	var timestamps []time.Time
	for i := 0; i < 3; i++ {
		pool.Submit(func() error {
			mu.Lock()
			timestamps = append(timestamps, time.Now())
			mu.Unlock()
			return nil
		})
	}
	_ = pool.Wait()

	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		if gap < rateLimit {
			t.Errorf("gap between job %d and %d: %v < minimum %v", i-1, i, gap, rateLimit)
		}
	}
}
