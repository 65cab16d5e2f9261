package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/beliefmarket/beliefd/internal/domain"
)

const (
	// eventChannel carries live events over Pub/Sub for connected instances.
	eventChannel = keyspace + ":events"

	// eventStream keeps a trimmed durable history of events via XADD MAXLEN ~.
	eventStream = keyspace + ":events:stream"

	streamMaxLen int64 = 10000
)

// EventBus implements domain.EventBus using Redis Pub/Sub for live fanout
// plus a capped Redis Stream so late consumers can replay recent history.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish delivers a committed ledger event to both the live channel and the
// durable stream.
func (b *EventBus) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", event.ID, err)
	}

	pipe := b.rdb.TxPipeline()
	pipe.Publish(ctx, eventChannel, payload)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish event %s: %w", event.ID, err)
	}
	return nil
}

// Subscribe returns a channel of decoded events published by any instance.
// The subscription closes when the context is cancelled; the returned channel
// is closed at that point as well. Payloads that fail to decode are dropped.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	pubsub := b.rdb.Subscribe(ctx, eventChannel)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", eventChannel, err)
	}

	out := make(chan domain.Event, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// ReplayEvents reads up to count events from the durable stream starting
// after lastID. Use "0" as lastID to read from the beginning. It returns an
// empty slice (not an error) when no events are available.
func (b *EventBus) ReplayEvents(ctx context.Context, lastID string, count int) ([]domain.Event, string, error) {
	result, err := b.rdb.XRangeN(ctx, eventStream, nextStreamID(lastID), "+", int64(count)).Result()
	if err != nil {
		return nil, lastID, fmt.Errorf("redis: replay events: %w", err)
	}

	events := make([]domain.Event, 0, len(result))
	last := lastID
	for _, msg := range result {
		last = msg.ID
		payload, ok := msg.Values["payload"].(string)
		if !ok {
			continue
		}
		var event domain.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, last, nil
}

// nextStreamID converts an inclusive stream ID into the exclusive form
// understood by XRANGE.
func nextStreamID(id string) string {
	if id == "" || id == "0" {
		return "-"
	}
	return "(" + id
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
