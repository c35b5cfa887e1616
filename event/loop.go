package event

import (
	"context"
	"log/slog"
	"runtime/debug"
)

// DefaultLoopQueueSize bounds the number of pending loop callbacks.
const DefaultLoopQueueSize = 1024

// Loop runs posted callbacks one at a time on a single designated
// goroutine, in the order they were posted. It plays the role of the
// editor's UI thread: work that must not race with the UI, such as
// delivering fetch results, is posted here.
type Loop struct {
	queue chan func()
}

// NewLoop creates a loop with room for size pending callbacks.
func NewLoop(size int) *Loop {
	if size <= 0 {
		size = DefaultLoopQueueSize
	}
	return &Loop{queue: make(chan func(), size)}
}

// Post queues fn. It never blocks; when the queue is full fn is dropped
// and Post returns false.
func (l *Loop) Post(fn func()) bool {
	select {
	case l.queue <- fn:
		return true
	default:
		slog.Warn("loop queue is full, dropping callback", "capacity", cap(l.queue))
		return false
	}
}

// Run executes callbacks on the calling goroutine until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.queue:
			l.exec(fn)
		}
	}
}

// RunPending executes the callbacks queued so far without blocking and
// returns how many ran. Hosts that own their frame loop call it once per
// tick instead of Run.
func (l *Loop) RunPending() int {
	n := 0
	for {
		select {
		case fn := <-l.queue:
			l.exec(fn)
			n++
		default:
			return n
		}
	}
}

// Pending returns the number of queued callbacks.
func (l *Loop) Pending() int {
	return len(l.queue)
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("loop callback panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
