package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-streamshop/internal/events"
)

type stubStore struct {
	lastTopic   string
	lastPayload []byte
}

func (s *stubStore) InsertEvent(_ context.Context, topic, aggregateID string, payload []byte) (events.Event, error) {
	s.lastTopic = topic
	s.lastPayload = payload
	return events.Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}, nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier},
	}

	aggregate := uuid.NewString()
	payload := map[string]any{"orderId": "123"}
	ctx := context.Background()
	event, err := bus.Emit(ctx, events.TopicOrderCreated, aggregate, payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, store.lastTopic)
	require.JSONEq(t, `{"orderId":"123"}`, string(store.lastPayload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "123", decoded["orderId"])
}

func TestEmitRequiresTopicAndAggregate(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, "", uuid.NewString(), nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, events.TopicOrderPaid, "  ", nil)
	require.Error(t, err)
}

func TestEmitRejectsInvalidJSONString(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), events.TopicOrderPaid, uuid.NewString(), "{not json")
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	store := &stubStore{}
	failing := &captureNotifier{err: errors.New("smtp down")}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{failing}}

	event, err := bus.Emit(context.Background(), events.TopicOrderPaid, uuid.NewString(), nil)
	require.Error(t, err)
	require.NotEmpty(t, event.ID, "event persists even when a notifier fails")
}
