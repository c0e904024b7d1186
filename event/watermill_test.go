package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/stepflow/stepflow/event"
)

func TestWatermillBus_RoundTrip(t *testing.T) {
	bus := event.NewWatermillBus(testLogger())
	defer bus.Close()

	sub, err := bus.Subscribe("invoice.posted")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	sent := event.New("invoice.posted", map[string]any{"total": 99.5}).For("inst_42")
	if err := bus.Publish(context.Background(), sent); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-sub.Events():
		if got.Type != "invoice.posted" {
			t.Errorf("Type = %q", got.Type)
		}
		if got.InstanceID != "inst_42" {
			t.Errorf("InstanceID = %q", got.InstanceID)
		}
		if got.Data["total"] != 99.5 {
			t.Errorf("Data = %v", got.Data)
		}
		if got.ID.String() != sent.ID.String() {
			t.Errorf("ID = %s, want %s", got.ID, sent.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered through the watermill bus")
	}
}

func TestWatermillBus_SubscriptionCloseStopsDelivery(t *testing.T) {
	bus := event.NewWatermillBus(testLogger())
	defer bus.Close()

	sub, err := bus.Subscribe("a")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub.Close()
	sub.Close() // idempotent

	// The forwarding goroutine exits and closes the channel.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel not closed after Close")
		}
	}
}
