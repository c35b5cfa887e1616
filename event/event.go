// Package event provides the in-process event aggregator that decouples
// content services, sign-in and the tool window from each other.
//
// Events form a closed set: every event type implements Event and reports
// a compile-time Kind. Subscribers register for a Kind (or use On with the
// concrete type) and receive the event synchronously when it is published.
// A subscriber can be bound to the lifetime of an owner object through a
// weak pointer; once the owner has been collected the subscriber is skipped
// and later purged.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags an event type.
type Kind string

// Event is implemented by every publishable event.
type Event interface {
	Kind() Kind
}

// Envelope is what handlers receive: the event plus publish metadata.
type Envelope struct {
	ID        string
	Kind      Kind
	Timestamp time.Time
	Event     Event
}

// Handler processes a published event. Handlers run while the aggregator
// lock is held and must not call Publish; use PublishDeferred instead.
type Handler func(env Envelope)

func newEnvelope(e Event, now time.Time) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Kind:      e.Kind(),
		Timestamp: now,
		Event:     e,
	}
}

// KindOf returns the kind of the event type T.
func KindOf[T Event]() Kind {
	var zero T
	return zero.Kind()
}
