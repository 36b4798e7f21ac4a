package utils

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WorkerPool runs jobs on a bounded set of goroutines with optional rate
// limiting. A panicking job is recovered and reported to the panic handler.
type WorkerPool struct {
	semaphore chan struct{}
	limiter   *rate.Limiter
	wg        sync.WaitGroup
	onPanic   func(recovered any)
}

// NewWorkerPool creates a WorkerPool with the given concurrency and minimum
// interval between job starts. rateLimitMs <= 0 disables rate limiting.
func NewWorkerPool(maxWorkers, rateLimitMs int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	wp := &WorkerPool{semaphore: make(chan struct{}, maxWorkers)}
	if rateLimitMs > 0 {
		wp.limiter = rate.NewLimiter(rate.Every(time.Duration(rateLimitMs)*time.Millisecond), 1)
	}
	return wp
}

// OnPanic installs fn as the handler for recovered job panics.
func (wp *WorkerPool) OnPanic(fn func(recovered any)) *WorkerPool {
	wp.onPanic = fn
	return wp
}

// Submit enqueues a job for execution in the pool. It blocks while the pool
// is full. Jobs still waiting on the rate limiter when ctx ends are dropped.
func (wp *WorkerPool) Submit(ctx context.Context, job func()) {
	wp.wg.Add(1)
	wp.semaphore <- struct{}{}

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()
		defer func() {
			if r := recover(); r != nil && wp.onPanic != nil {
				wp.onPanic(r)
			}
		}()

		if wp.limiter != nil {
			if err := wp.limiter.Wait(ctx); err != nil {
				return
			}
		}
		job()
	}()
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// URLSet is a thread-safe set for tracking visited URLs.
type URLSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewURLSet creates an empty URLSet.
func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add returns true if the URL was newly added, false if already present.
func (s *URLSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[url]; exists {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}
