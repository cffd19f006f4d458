package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists domain events in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) InsertEvent(ctx context.Context, topic, aggregateID string, payload []byte) (Event, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, topic, aggregate_id, payload, occurred_at`,
		topic, aggregateID, payload)
	var ev Event
	if err := row.Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt); err != nil {
		return Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}
