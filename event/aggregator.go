package event

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Start on a started aggregator.
	ErrAlreadyRunning = errors.New("event aggregator is already running")

	// ErrNotRunning is returned by Stop on an aggregator that was never started.
	ErrNotRunning = errors.New("event aggregator is not running")
)

// Stats is a snapshot of aggregator counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Skipped     uint64
	Purged      uint64
	Dropped     uint64
	Subscribers int
}

// Aggregator is a synchronous publish/subscribe hub. It is constructed by
// the composition root and handed to the components that need it.
//
// A single mutex guards the subscriber table, the history and the
// counters. Handlers run under that mutex.
type Aggregator struct {
	cfg config

	mu          sync.Mutex
	subscribers map[Kind][]*subscriber
	nextID      uint64
	history     []Envelope
	running     bool
	stats       Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an aggregator. Subscriptions may be registered right away;
// publishing starts working after Start.
func New(opts ...Option) *Aggregator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Aggregator{
		cfg:         cfg,
		subscribers: make(map[Kind][]*subscriber),
	}
}

// Start enables publishing and launches the periodic sweep. The sweep
// stops when ctx is cancelled or Stop is called.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true

	go a.sweepLoop(ctx, a.done)
	slog.Debug("event aggregator started", "sweep_interval", a.cfg.sweepInterval)
	return nil
}

// Stop disables publishing and waits for the sweep goroutine to exit.
func (a *Aggregator) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return ErrNotRunning
	}
	a.running = false
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Subscribe registers handler for kind.
func (a *Aggregator) Subscribe(kind Kind, handler Handler, opts ...SubscribeOption) *Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextID++
	s := &subscriber{
		id:      a.nextID,
		kind:    kind,
		handler: handler,
	}
	for _, opt := range opts {
		opt(s)
	}
	a.subscribers[kind] = append(a.subscribers[kind], s)
	return &Subscription{agg: a, sub: s}
}

// On registers a typed handler for the event type T.
func On[T Event](a *Aggregator, fn func(T), opts ...SubscribeOption) *Subscription {
	return a.Subscribe(KindOf[T](), func(env Envelope) {
		if e, ok := env.Event.(T); ok {
			fn(e)
		}
	}, opts...)
}

// Publish delivers e to every valid subscriber of its kind before
// returning. Invalid subscribers are skipped and removed once delivery is
// done.
func (a *Aggregator) Publish(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		a.stats.Dropped++
		slog.Warn("event published before aggregator start, dropping", "kind", e.Kind())
		return
	}

	env := newEnvelope(e, a.cfg.now())
	a.stats.Published++
	a.record(env)

	var dead int
	for _, s := range a.subscribers[env.Kind] {
		if !s.valid() {
			dead++
			a.stats.Skipped++
			continue
		}
		s.handler(env)
		a.stats.Delivered++
	}
	if dead > 0 {
		a.purgeKindLocked(env.Kind)
	}
}

// PublishDeferred queues e for publication on the designated loop. It
// returns false when no loop is configured or the loop queue is full.
func (a *Aggregator) PublishDeferred(e Event) bool {
	if a.cfg.loop == nil {
		slog.Warn("no loop configured for deferred publish, dropping", "kind", e.Kind())
		a.mu.Lock()
		a.stats.Dropped++
		a.mu.Unlock()
		return false
	}
	return a.cfg.loop.Post(func() { a.Publish(e) })
}

// Sweep removes every subscriber that is no longer valid and returns how
// many were removed.
func (a *Aggregator) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for kind := range a.subscribers {
		removed += a.purgeKindLocked(kind)
	}
	return removed
}

// Recent returns retained envelopes of kind, oldest first. An empty kind
// returns the whole history.
func (a *Aggregator) Recent(kind Kind) []Envelope {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Envelope
	for _, env := range a.history {
		if kind == "" || env.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}

// Stats returns a snapshot of the counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := a.stats
	for _, subs := range a.subscribers {
		for _, s := range subs {
			if s.valid() {
				stats.Subscribers++
			}
		}
	}
	return stats
}

func (a *Aggregator) record(env Envelope) {
	if a.cfg.historySize <= 0 {
		return
	}
	if len(a.history) >= a.cfg.historySize {
		a.history = append(a.history[:0:0], a.history[len(a.history)-a.cfg.historySize+1:]...)
	}
	a.history = append(a.history, env)
}

// remove drops s from the table unless the mutex is held, in which case
// purgeKindLocked picks it up later.
func (a *Aggregator) remove(s *subscriber) {
	if !a.mu.TryLock() {
		return
	}
	defer a.mu.Unlock()

	subs := a.subscribers[s.kind]
	i := slices.Index(subs, s)
	if i < 0 {
		return
	}
	subs = slices.Delete(subs, i, i+1)
	if len(subs) == 0 {
		delete(a.subscribers, s.kind)
	} else {
		a.subscribers[s.kind] = subs
	}
}

func (a *Aggregator) purgeKindLocked(kind Kind) int {
	subs := a.subscribers[kind]
	kept := subs[:0]
	for _, s := range subs {
		if s.valid() {
			kept = append(kept, s)
		}
	}
	removed := len(subs) - len(kept)
	clear(subs[len(kept):])
	if len(kept) == 0 {
		delete(a.subscribers, kind)
	} else {
		a.subscribers[kind] = kept
	}
	a.stats.Purged += uint64(removed)
	return removed
}

func (a *Aggregator) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.cfg.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Sweep(); n > 0 {
				slog.Debug("purged dead subscribers", "count", n)
			}
		}
	}
}
