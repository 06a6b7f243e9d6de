package stat

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/libstat/errors"
)

// AsyncHandler runs periodically on the runtime loop
type AsyncHandler func(ctx context.Context, elt *AsyncElement, ud any)

// CleanupFunc releases an element's user data at teardown
type CleanupFunc func(elt *AsyncElement, ud any)

// AsyncElement is a provider-registered background unit
type AsyncElement struct {
	Name     string
	Handler  AsyncHandler
	Cleanup  CleanupFunc
	UserData any
	Interval time.Duration

	stop func()
}

// AsyncQueue collects async elements until teardown drains it.
// Push after drain fails with errors.ErrClosed.
type AsyncQueue struct {
	mu      sync.Mutex
	elts    []*AsyncElement
	drained bool
}

// NewAsyncQueue creates an empty queue
func NewAsyncQueue() *AsyncQueue {
	return &AsyncQueue{}
}

// Push appends elt
func (q *AsyncQueue) Push(elt *AsyncElement) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.drained {
		return errors.Wrap(errors.ErrClosed, "async queue drained")
	}
	q.elts = append(q.elts, elt)
	return nil
}

// Len returns the number of queued elements
func (q *AsyncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.elts)
}

// drain stops and cleans up every element in insertion order, exactly once
func (q *AsyncQueue) drain() int {
	q.mu.Lock()
	elts := q.elts
	q.elts = nil
	q.drained = true
	q.mu.Unlock()

	for _, elt := range elts {
		if elt.stop != nil {
			elt.stop()
		}
		if elt.Cleanup != nil {
			elt.Cleanup(elt, elt.UserData)
		}
	}
	return len(elts)
}

// RegisterAsync queues a background element owned by the context.
// When handler is set and interval is positive it is scheduled on the
// runtime loop; cleanup runs once at Close after the handler has stopped.
func (sc *Context) RegisterAsync(name string, handler AsyncHandler, cleanup CleanupFunc, ud any, interval time.Duration) (*AsyncElement, error) {
	elt := &AsyncElement{
		Name:     name,
		Handler:  handler,
		Cleanup:  cleanup,
		UserData: ud,
		Interval: interval,
	}

	if handler != nil && interval > 0 && sc.runtime != nil {
		elt.stop = sc.runtime.Every(interval, func(ctx context.Context) {
			handler(ctx, elt, ud)
		})
	}

	if err := sc.async.Push(elt); err != nil {
		if elt.stop != nil {
			elt.stop()
		}
		return nil, err
	}
	sc.logger.Debugw("Registered async element", "name", name, "interval", interval)
	return elt, nil
}
