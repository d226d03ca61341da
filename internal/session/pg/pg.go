// Package pg provides the PostgreSQL-backed session store. Rotation safety
// relies on an optimistic version check in the UPDATE: zero rows affected
// means the session changed underneath us and the caller gets Conflict.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver for goose
	"github.com/pressly/goose/v3"

	"github.com/haventools/premises-manage/core/internal/autherr"
	"github.com/haventools/premises-manage/core/internal/principal"
	"github.com/haventools/premises-manage/core/internal/session"
	"github.com/haventools/premises-manage/core/internal/session/pg/migrations"
)

// Store is a pgx-backed session.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects, verifies the connection and runs migrations.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Goose doesn't speak pgx directly, so migrations run over the stdlib
	// adapter.
	sqlDB, err := sql.Open("pgx", connString)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open database for migrations: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(sqlDB, "."); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Create implements session.Store.
func (s *Store) Create(ctx context.Context, sess session.Session) error {
	prn, err := json.Marshal(sess.Principal)
	if err != nil {
		return fmt.Errorf("marshal principal: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, principal, access_token, refresh_token_hash, issued_at, expires_at, version, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, prn, sess.AccessToken, sess.RefreshTokenHash,
		sess.IssuedAt, sess.ExpiresAt, sess.Version, string(sess.State))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return autherr.Wrap(autherr.CodeDuplicateData, "session already exists", err)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get implements session.Store.
func (s *Store) Get(ctx context.Context, id string) (session.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, principal, access_token, refresh_token_hash, issued_at, expires_at, version, state
		FROM sessions WHERE id = $1`, id)

	var (
		sess  session.Session
		prn   []byte
		state string
	)
	err := row.Scan(&sess.ID, &prn, &sess.AccessToken, &sess.RefreshTokenHash,
		&sess.IssuedAt, &sess.ExpiresAt, &sess.Version, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Session{}, autherr.New(autherr.CodeNotFound, "session not found")
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("select session: %w", err)
	}

	var p principal.Principal
	if err := json.Unmarshal(prn, &p); err != nil {
		return session.Session{}, fmt.Errorf("unmarshal principal: %w", err)
	}
	sess.Principal = p
	sess.State = session.State(state)
	return sess, nil
}

// Swap implements session.Store. The access token and refresh-token hash are
// written by the same statement, so a rotation commits both or neither.
func (s *Store) Swap(ctx context.Context, sess session.Session, expectedVersion int32) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET access_token = $1, refresh_token_hash = $2, issued_at = $3, expires_at = $4, version = $5
		WHERE id = $6 AND version = $7 AND state = $8`,
		sess.AccessToken, sess.RefreshTokenHash, sess.IssuedAt, sess.ExpiresAt,
		sess.Version, sess.ID, expectedVersion, string(session.StateActive))
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return autherr.New(autherr.CodeConflict, "session was modified concurrently")
	}
	return nil
}

// Revoke implements session.Store.
func (s *Store) Revoke(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET state = $1 WHERE id = $2`, string(session.StateRevoked), id)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return autherr.New(autherr.CodeNotFound, "session not found")
	}
	return nil
}

// DeleteExpired implements session.Store.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
