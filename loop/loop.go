// Package loop provides the runtime handle the stat bootstrap passes through
// to providers. Providers schedule background work (periodic refreshes,
// connection keepalives) on it; its owner stops it after teardown.
package loop

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Loop runs provider goroutines under one cancellable context
type Loop struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	stopped bool
}

// New creates a loop whose goroutines stop when parent is done or Stop is called
func New(parent context.Context) *Loop {
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	return &Loop{
		parent: parent,
		ctx:    gctx,
		cancel: cancel,
		group:  group,
	}
}

// Context returns the loop context; it is cancelled on Stop or first error
func (l *Loop) Context() context.Context {
	return l.ctx
}

// Go runs fn on the loop. A non-nil error cancels the loop context.
// Calls after Stop are ignored and report false.
func (l *Loop) Go(fn func(ctx context.Context) error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.group.Go(func() error {
		return fn(l.ctx)
	})
	return true
}

// Every runs fn every interval until the returned stop function is called
// or the loop stops. stop blocks until the last fn invocation has returned.
func (l *Loop) Every(interval time.Duration, fn func(ctx context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(l.ctx)
	done := make(chan struct{})

	started := l.Go(func(context.Context) error {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				fn(ctx)
			}
		}
	})
	if !started {
		close(done)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// Stop cancels every goroutine and waits for them to return.
// The first error returned by a goroutine, if any, is reported.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	l.mu.Unlock()

	l.cancel()
	return l.group.Wait()
}
