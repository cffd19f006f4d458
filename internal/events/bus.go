package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is a persisted domain event.
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// EventStore defines the persistence operations required by the event bus.
type EventStore interface {
	InsertEvent(ctx context.Context, topic, aggregateID string, payload []byte) (Event, error)
}

// Notifier reacts to emitted events (email, metrics, and so on).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus persists domain events and fans them out to downstream handlers.
// Persistence is the source of truth: notifier failures are reported but the
// event stays recorded.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
}

// Emit records the event and dispatches it to all configured notifiers.
func (b *Bus) Emit(ctx context.Context, topic string, aggregateID string, payload any) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return Event{}, errors.New("events: aggregate id is required")
	}

	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev, err := b.Store.InsertEvent(ctx, topic, aggregateID, encoded)
	if err != nil {
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	return ev, b.dispatch(ctx, ev)
}

func (b *Bus) dispatch(ctx context.Context, ev Event) error {
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, ev); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", err))
		}
	}
	return joined
}

// encodePayload normalizes the payload to a JSON document. Raw bytes and
// strings must already be valid JSON; anything else gets marshalled. Empty
// payloads become "{}" so the column stays non-null.
func encodePayload(payload any) ([]byte, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	case string:
		raw = []byte(strings.TrimSpace(v))
	default:
		return json.Marshal(v)
	}

	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), raw...), nil
}
