// Package eventloop provides the single cooperative queue every tree read,
// tree write, scan and settings action runs on.
package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned when work is submitted to a closed loop
var ErrClosed = errors.New("event loop closed")

// Loop runs posted functions one at a time, in posting order, on the
// goroutine that called Run.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	running atomic.Bool
}

// New creates a loop; call Run to start draining it
func New() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Post enqueues fn. It never blocks and reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from the loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		// Run may have drained fn right before stopping
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Run drains the queue until ctx is cancelled or Close is called
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("event loop already running")
	}
	defer close(l.stopped)

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()
		}

		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.done:
			return nil
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// Close stops the loop; queued functions that have not started are dropped
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	close(l.done)
}

// Done is closed once Close has been called
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Timer is a cancellable one-shot callback delivered through the loop
type Timer struct {
	t         *time.Timer
	cancelled atomic.Bool
	fired     atomic.Bool
}

// After runs fn on the loop once d has elapsed
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if tm.cancelled.Load() {
				return
			}
			tm.fired.Store(true)
			fn()
		})
	})
	return tm
}

// Stop cancels the timer. It reports false if fn already ran. When called
// on the loop goroutine, a true result guarantees fn will never run.
func (tm *Timer) Stop() bool {
	if tm == nil {
		return false
	}
	tm.t.Stop()
	tm.cancelled.Store(true)
	return !tm.fired.Load()
}

// Fired reports whether fn has run
func (tm *Timer) Fired() bool {
	return tm != nil && tm.fired.Load()
}
