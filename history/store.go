// Package history keeps a record of processed recordings in Postgres.
package history

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lipread.town/session"
)

//go:embed schema.sql
var schema string

type Store struct {
	pool *pgxpool.Pool
	log  *log.Logger
}

// Row is a stored session.Entry.
type Row struct {
	ID        int64
	CreatedAt time.Time
	session.Entry
}

func Open(ctx context.Context, dsn string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to execute embedded schema.sql: %w", err)
	}

	logger.Debug("database ready")
	return &Store{pool: pool, log: logger}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Record(ctx context.Context, e session.Entry) error {
	var startedAt *time.Time
	if !e.StartedAt.IsZero() {
		startedAt = &e.StartedAt
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO results (session_id, started_at, duration_ms, frames_sent, frames_failed, partial, result, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		e.SessionID,
		startedAt,
		e.Duration.Milliseconds(),
		e.FramesSent,
		e.FramesFailed,
		e.Partial,
		e.Result,
		e.Error,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	s.log.Debug("recorded", "id", id, "session", e.SessionID)
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]Row, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, created_at, session_id, started_at, duration_ms, frames_sent, frames_failed, partial, result, error
		FROM results
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var (
			r          Row
			startedAt  *time.Time
			durationMs int64
		)
		err := row.Scan(
			&r.ID,
			&r.CreatedAt,
			&r.SessionID,
			&startedAt,
			&durationMs,
			&r.FramesSent,
			&r.FramesFailed,
			&r.Partial,
			&r.Result,
			&r.Error,
		)
		if startedAt != nil {
			r.StartedAt = *startedAt
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		return r, err
	})
}
