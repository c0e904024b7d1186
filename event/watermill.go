package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// WatermillBus implements Bus on top of a Watermill gochannel Pub/Sub.
// It is the bridge point for real brokers: swap the gochannel for any
// Watermill publisher/subscriber pair and the engine is none the wiser.
type WatermillBus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

// NewWatermillBus creates a bus backed by an in-process Watermill
// gochannel Pub/Sub.
func NewWatermillBus(logger *slog.Logger) *WatermillBus {
	if logger == nil {
		logger = slog.Default()
	}
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: subBuffer},
		watermill.NewSlogLogger(logger),
	)
	return &WatermillBus{pubsub: pubsub, logger: logger}
}

// Publish marshals the event and publishes it on the topic named by its
// type.
func (b *WatermillBus) Publish(_ context.Context, evt *Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("event: marshal %q: %w", evt.Type, err)
	}
	msg := message.NewMessage(evt.ID.String(), payload)
	if err := b.pubsub.Publish(evt.Type, msg); err != nil {
		return fmt.Errorf("event: publish %q: %w", evt.Type, err)
	}
	return nil
}

// Subscribe registers a listener on the topic named by the event type.
func (b *WatermillBus) Subscribe(eventType string) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := b.pubsub.Subscribe(ctx, eventType)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("event: subscribe %q: %w", eventType, err)
	}

	sub := &watermillSub{
		cancel: cancel,
		ch:     make(chan *Event, subBuffer),
	}

	go func() {
		defer close(sub.ch)
		for msg := range msgs {
			var evt Event
			if decErr := json.Unmarshal(msg.Payload, &evt); decErr != nil {
				b.logger.Warn("event: dropping undecodable message",
					slog.String("topic", eventType),
					slog.String("error", decErr.Error()),
				)
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case sub.ch <- &evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub, nil
}

// Close shuts down the underlying Pub/Sub, closing all subscriptions.
func (b *WatermillBus) Close() error {
	return b.pubsub.Close()
}

type watermillSub struct {
	once   sync.Once
	cancel context.CancelFunc
	ch     chan *Event
}

func (s *watermillSub) Events() <-chan *Event { return s.ch }

func (s *watermillSub) Close() {
	s.once.Do(s.cancel)
}
