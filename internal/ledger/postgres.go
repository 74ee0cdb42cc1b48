// Package ledger provides the Postgres-backed persistent record of per-item
// outcomes and recipient registrations.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"reelgrab/internal/retriever"
)

// DB is the subset of pgxpool.Pool the store uses; pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store implements retriever.Ledger on Postgres. The downloads table keys on
// the item id with insert-or-replace semantics; recipients is append-only.
type Store struct {
	db     DB
	logger *zap.Logger
}

var _ retriever.Ledger = (*Store)(nil)

// New connects a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithDB(pool, logger), nil
}

// NewWithDB constructs a Store from an existing connection (primarily for
// testing).
func NewWithDB(db DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// InitSchema creates the two tables when they do not exist yet. This is the
// only state that must survive a restart.
func (s *Store) InitSchema(ctx context.Context) error {
	const downloads = `
CREATE TABLE IF NOT EXISTS downloads (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	link TEXT NOT NULL,
	status TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	output_path TEXT NOT NULL DEFAULT ''
)`
	const recipients = `
CREATE TABLE IF NOT EXISTS recipients (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := s.db.Exec(ctx, downloads); err != nil {
		return fmt.Errorf("create downloads table: %w", err)
	}
	if _, err := s.db.Exec(ctx, recipients); err != nil {
		return fmt.Errorf("create recipients table: %w", err)
	}
	return nil
}

// IsDone reports whether id already has a success row.
func (s *Store) IsDone(ctx context.Context, id string) (bool, error) {
	const query = `SELECT 1 FROM downloads WHERE id = $1 AND status = $2`
	var one int
	err := s.db.QueryRow(ctx, query, id, string(retriever.StatusSuccess)).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query download status: %w", err)
	}
	return true, nil
}

// Record upserts the outcome row for rec.ID. The latest write wins, so a
// retry that eventually succeeds replaces an earlier failed row.
func (s *Store) Record(ctx context.Context, rec retriever.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	const query = `
INSERT INTO downloads (id, owner, link, status, updated_at, output_path)
VALUES ($1, $2, $3, $4, now(), $5)
ON CONFLICT (id) DO UPDATE
SET owner = EXCLUDED.owner,
    link = EXCLUDED.link,
    status = EXCLUDED.status,
    updated_at = now(),
    output_path = EXCLUDED.output_path`
	if _, err := s.db.Exec(ctx, query,
		rec.ID, rec.Owner, rec.Link, string(rec.Status), rec.OutputPath,
	); err != nil {
		return fmt.Errorf("upsert download: %w", err)
	}
	return nil
}

// Stats scans aggregate success/failure counts over the whole ledger.
func (s *Store) Stats(ctx context.Context) (retriever.Stats, error) {
	const query = `
SELECT
	COUNT(*) FILTER (WHERE status = $1),
	COUNT(*) FILTER (WHERE status = $2)
FROM downloads`
	var stats retriever.Stats
	err := s.db.QueryRow(ctx, query,
		string(retriever.StatusSuccess), string(retriever.StatusFailed),
	).Scan(&stats.Succeeded, &stats.Failed)
	if err != nil {
		return retriever.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

// UpsertRecipient registers a recipient once; re-registration never
// overwrites the first-seen timestamp.
func (s *Store) UpsertRecipient(ctx context.Context, recipientID, displayName string) error {
	if recipientID == "" {
		return fmt.Errorf("recipient id is required")
	}
	const query = `
INSERT INTO recipients (id, display_name, first_seen_at)
VALUES ($1, $2, now())
ON CONFLICT (id) DO NOTHING`
	if _, err := s.db.Exec(ctx, query, recipientID, displayName); err != nil {
		return fmt.Errorf("upsert recipient: %w", err)
	}
	return nil
}
