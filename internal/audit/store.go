package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists audit entries in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) InsertAuditLog(ctx context.Context, entry Entry) (string, error) {
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO audit_logs (actor_kind, actor_user_id, action, resource_type, resource_id,
			method, path, route, status, ip, user_agent, request_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		entry.ActorKind, entry.ActorUserID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.Method, entry.Path, entry.Route, entry.Status, entry.IP, entry.UserAgent,
		entry.RequestID, metadata).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert audit log: %w", err)
	}
	return id, nil
}

func (s *PGStore) ListAuditLogs(ctx context.Context, limit, offset int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, actor_kind, actor_user_id, action, resource_type, resource_id,
			method, path, route, status, ip, user_agent, request_id, metadata, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.ActorKind, &e.ActorUserID, &e.Action, &e.ResourceType,
			&e.ResourceID, &e.Method, &e.Path, &e.Route, &e.Status, &e.IP, &e.UserAgent,
			&e.RequestID, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Metadata = metadata
		out = append(out, e)
	}
	return out, rows.Err()
}
