package event

import (
	"sync/atomic"
	"weak"
)

// Subscription is the caller's handle on a registered handler.
type Subscription struct {
	agg *Aggregator
	sub *subscriber
}

// ID returns the subscriber id.
func (s *Subscription) ID() uint64 {
	return s.sub.id
}

// Kind returns the subscribed kind.
func (s *Subscription) Kind() Kind {
	return s.sub.kind
}

// Unsubscribe stops delivery to the handler and removes its entry from the
// table. While the aggregator is delivering, as when called from a
// handler, removal waits for the next publish of the kind or the next
// sweep. It is safe to call more than once or on a nil subscription.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.sub == nil {
		return
	}
	if s.sub.cancelled.Swap(true) {
		return
	}
	if s.agg != nil {
		s.agg.remove(s.sub)
	}
}

// Active reports whether the handler can still be invoked.
func (s *Subscription) Active() bool {
	return s != nil && s.sub != nil && s.sub.valid()
}

// SubscribeOption configures a subscriber.
type SubscribeOption func(*subscriber)

// WithOwner ties the subscriber to owner through a weak pointer. The
// handler runs only while owner is reachable. The handler itself must not
// capture owner, or owner will never become unreachable.
func WithOwner[T any](owner *T) SubscribeOption {
	wp := weak.Make(owner)
	return func(s *subscriber) {
		s.alive = func() bool { return wp.Value() != nil }
	}
}

// WithLiveness ties the subscriber to an arbitrary liveness check, for
// owners tracked by handle or generation counter rather than by pointer.
func WithLiveness(alive func() bool) SubscribeOption {
	return func(s *subscriber) {
		s.alive = alive
	}
}

type subscriber struct {
	id        uint64
	kind      Kind
	handler   Handler
	alive     func() bool
	cancelled atomic.Bool
}

func (s *subscriber) valid() bool {
	if s.cancelled.Load() {
		return false
	}
	return s.alive == nil || s.alive()
}
