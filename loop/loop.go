// Package loop provides the hosts that run deferred callbacks for scope
// families: a manual Queue and a single goroutine Loop.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("loop: already running")

	// ErrLoopTerminated is returned when work is submitted to a loop that has stopped.
	ErrLoopTerminated = errors.New("loop: terminated")
)

const (
	stateIdle int32 = iota
	stateRunning
	stateTerminated
)

// Loop runs submitted and deferred tasks one at a time on the goroutine that
// called Run. Scope families are single threaded, so every interaction with a
// scope driven by a Loop has to happen inside a task.
type Loop struct {
	// No copying allowed
	_ [0]func()

	mu     sync.Mutex
	tasks  []*task
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	state  atomic.Int32
	logger *slog.Logger

	stopOnce sync.Once
}

// New creates a Loop. A nil logger means slog.Default().
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run processes tasks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(stateIdle, stateRunning) {
		if l.state.Load() == stateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}
	defer l.terminate()

	for {
		for l.runOne() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.stop:
				return nil
			default:
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case <-l.wake:
		}
	}
}

// Submit queues fn to run on the loop goroutine. Tasks still queued when Run
// returns are dropped; Done reports when that happened.
func (l *Loop) Submit(fn func()) error {
	return l.push(&task{fn: fn})
}

// Defer queues fn like Submit and returns a cancel function. Deferring onto a
// terminated loop drops fn.
func (l *Loop) Defer(fn func()) (cancel func()) {
	t := &task{fn: fn}
	if err := l.push(t); err != nil {
		return func() {}
	}
	return func() {
		l.mu.Lock()
		t.cancelled = true
		l.mu.Unlock()
	}
}

// Stop asks the loop to exit after the current task. It is safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// push and terminate share l.mu, so a task is either queued before the loop
// terminates or refused.
func (l *Loop) push(t *task) error {
	l.mu.Lock()
	if l.state.Load() == stateTerminated {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.tasks = append(l.tasks, t)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

func (l *Loop) terminate() {
	l.mu.Lock()
	l.state.Store(stateTerminated)
	dropped := 0
	for _, t := range l.tasks {
		if !t.cancelled {
			dropped++
		}
	}
	l.tasks = nil
	l.mu.Unlock()

	if dropped > 0 {
		l.logger.Warn("loop: dropped pending tasks", "count", dropped)
	}
	close(l.done)
}

func (l *Loop) runOne() bool {
	l.mu.Lock()
	var next *task
	for len(l.tasks) > 0 {
		t := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		if !t.cancelled {
			t.cancelled = true
			next = t
			break
		}
	}
	l.mu.Unlock()

	if next == nil {
		return false
	}
	l.safeExecute(next.fn)
	return true
}

func (l *Loop) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop: task panicked", "error", fmt.Sprint(r))
		}
	}()
	fn()
}
