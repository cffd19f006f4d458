package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEmailTaken signals a registration attempt with an email that already exists.
var ErrEmailTaken = errors.New("email already registered")

// UserRow mirrors the users table.
type UserRow struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// TokenRow mirrors the refresh_tokens table.
type TokenRow struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Store persists users and refresh tokens in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string, roles []string) (UserRow, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, roles)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_hash, roles, created_at`,
		email, passwordHash, roles)
	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return UserRow{}, ErrEmailTaken
		}
		return UserRow{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (UserRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, roles, created_at
		FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (UserRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, roles, created_at
		FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) InsertRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (TokenRow, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, token_hash, expires_at, revoked_at`,
		userID, tokenHash, expiresAt)
	return scanToken(row)
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (TokenRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked_at
		FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	return scanToken(row)
}

func (s *Store) RotateRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET token_hash = $2, expires_at = $3
		WHERE id = $1 AND revoked_at IS NULL`, id, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash)
	return err
}

func (s *Store) RevokeUserTokens(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	return err
}

func scanUser(row pgx.Row) (UserRow, error) {
	var u UserRow
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Roles, &u.CreatedAt); err != nil {
		return UserRow{}, err
	}
	return u, nil
}

func scanToken(row pgx.Row) (TokenRow, error) {
	var t TokenRow
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt); err != nil {
		return TokenRow{}, err
	}
	return t, nil
}
