package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/stepflow/stepflow/id"
)

// subBuffer is the per-subscription channel depth. Publish never blocks;
// events beyond the buffer are dropped and logged.
const subBuffer = 64

// MemoryBus is an in-process Bus for tests and single-binary deployments.
// Safe for concurrent use.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*memorySub // eventType → subID → sub
	logger *slog.Logger
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBus{
		subs:   make(map[string]map[string]*memorySub),
		logger: logger,
	}
}

// Publish delivers the event to every current subscriber of its type.
// Delivery is non-blocking: a subscriber whose buffer is full misses the
// event (logged at warn).
func (b *MemoryBus) Publish(_ context.Context, evt *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[evt.Type] {
		select {
		case sub.ch <- evt:
		default:
			b.logger.Warn("event subscriber buffer full, dropping event",
				slog.String("event_type", evt.Type),
				slog.String("event_id", evt.ID.String()),
			)
		}
	}
	return nil
}

// Subscribe registers a listener for the given event type.
func (b *MemoryBus) Subscribe(eventType string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &memorySub{
		id:  id.NewSubscriptionID().String(),
		typ: eventType,
		bus: b,
		ch:  make(chan *Event, subBuffer),
	}
	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[string]*memorySub)
	}
	b.subs[eventType][sub.id] = sub
	return sub, nil
}

// SubscriberCount returns the number of live subscriptions for a type.
// Used by tests to verify listeners are released.
func (b *MemoryBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

type memorySub struct {
	id  string
	typ string
	bus *MemoryBus

	once sync.Once
	ch   chan *Event
}

func (s *memorySub) Events() <-chan *Event { return s.ch }

func (s *memorySub) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.typ], s.id)
		if len(s.bus.subs[s.typ]) == 0 {
			delete(s.bus.subs, s.typ)
		}
		close(s.ch)
	})
}
