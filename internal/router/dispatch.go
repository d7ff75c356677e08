package router

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultDispatchLimit caps concurrent background forwards per direction.
const DefaultDispatchLimit = 256

// Dispatcher runs forwards in the background for the non-waiting mode,
// bounding concurrency and letting shutdown drain what is in flight.
type Dispatcher struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewDispatcher builds a Dispatcher. limit <= 0 selects the default.
func NewDispatcher(limit int) *Dispatcher {
	if limit <= 0 {
		limit = DefaultDispatchLimit
	}
	return &Dispatcher{sem: semaphore.NewWeighted(int64(limit))}
}

// Go schedules fn without blocking the caller. When the concurrency limit
// is reached the work queues behind the semaphore, not the handler.
func (d *Dispatcher) Go(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer d.sem.Release(1)
		fn()
	}()
}

// Drain waits for all scheduled work to finish, up to timeout. It reports
// whether everything completed.
func (d *Dispatcher) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
