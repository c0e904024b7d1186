// Package event provides the event bus workflow suspension is built on.
// Event-wait steps subscribe for a named event type through a scoped
// Subscription handle; external code publishes events to resume them.
package event

import (
	"time"

	"github.com/stepflow/stepflow/id"
)

// Event is a named event published to the bus. InstanceID, when set,
// addresses the event to a single suspended instance; subscribers for
// other instances skip it.
type Event struct {
	ID         id.EventID     `json:"id"`
	Type       string         `json:"type"`
	InstanceID string         `json:"instance_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// New creates an event of the given type.
func New(eventType string, data map[string]any) *Event {
	return &Event{
		ID:        id.NewEventID(),
		Type:      eventType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// For addresses the event to a single instance and returns it.
func (e *Event) For(instanceID string) *Event {
	e.InstanceID = instanceID
	return e
}
