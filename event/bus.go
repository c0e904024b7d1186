package event

import "context"

// Subscription is a scoped handle on a bus subscription. Close releases
// the underlying listener; callers defer it so the listener is released
// on the success, timeout, and cancellation paths alike.
type Subscription interface {
	// Events returns the channel delivering matching events. The channel
	// is closed when the subscription is closed.
	Events() <-chan *Event

	// Close releases the subscription. Safe to call more than once.
	Close()
}

// Bus is the pluggable publish/subscribe seam of the engine. In-process
// implementations live in this package; real brokers implement the same
// contract.
type Bus interface {
	// Publish delivers an event to all current subscribers of its type.
	Publish(ctx context.Context, evt *Event) error

	// Subscribe registers a listener for the given event type.
	Subscribe(eventType string) (Subscription, error)
}
