package mqtt3

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrLoopClosed is returned when work is posted to a closed Loop.
var ErrLoopClosed = errors.New("mqtt3: loop closed")

// Scheduler runs timed callbacks on the goroutine that owns a Session.
type Scheduler interface {
	// Every calls fn every d until stop is called.
	Every(d time.Duration, fn func()) (stop func())

	// After calls fn once after d unless stop is called first.
	After(d time.Duration, fn func()) (stop func())
}

// Loop is a single goroutine that runs posted functions in order. Stream
// events, timers and API calls for one Session all go through the same
// Loop so the Session never needs a lock.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// NewLoop starts a loop goroutine.
func NewLoop() *Loop {
	l := &Loop{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post queues fn and reports whether the loop accepted it.
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

// Do runs fn on the loop and waits for its result. It must not be called
// from the loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	if !l.Post(func() { res <- fn() }) {
		return ErrLoopClosed
	}

	select {
	case err := <-res:
		return err
	case <-l.stopped:
		select {
		case err := <-res:
			return err
		default:
			return ErrLoopClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Every implements Scheduler.
func (l *Loop) Every(d time.Duration, fn func()) func() {
	var cancelled atomic.Bool
	quit := make(chan struct{})

	go func() {
		t := time.NewTicker(d)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				l.Post(func() {
					if !cancelled.Load() {
						fn()
					}
				})
			case <-quit:
				return
			case <-l.done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		cancelled.Store(true)
		once.Do(func() { close(quit) })
	}
}

// After implements Scheduler.
func (l *Loop) After(d time.Duration, fn func()) func() {
	var cancelled atomic.Bool

	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})

	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Close stops the loop. Functions still queued are discarded. Close does
// not wait when called from the loop goroutine.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()

	close(l.done)
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

func (l *Loop) run() {
	defer close(l.stopped)

	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			batch := l.queue
			l.queue = nil
			l.mu.Unlock()

			if len(batch) == 0 {
				break
			}

			for _, fn := range batch {
				select {
				case <-l.done:
					return
				default:
				}
				fn()
			}
		}
	}
}
