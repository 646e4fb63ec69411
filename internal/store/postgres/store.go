// Package postgres provides a PostgreSQL-backed advantage.Store using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"go.uber.org/zap"
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store persists session counters in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Open connects, verifies the connection and ensures the schema exists.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
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
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	stats := pool.Stat()
	logger.Info("postgres connection pool initialized",
		zap.Int32("max_conns", stats.MaxConns()),
		zap.Int32("total_conns", stats.TotalConns()),
		zap.Int32("idle_conns", stats.IdleConns()),
	)
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("storage is not configured")
	}
	return s.pool.Ping(ctx)
}

// Get returns the counter value, 0 when the row does not exist.
func (s *Store) Get(ctx context.Context, session string, kind advantage.Kind) (int, error) {
	if err := s.check(kind); err != nil {
		return 0, err
	}
	var value int
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM session_counters WHERE session_id = $1 AND kind = $2`,
		session, string(kind),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter: %w", err)
	}
	return value, nil
}

// Set upserts the counter value.
func (s *Store) Set(ctx context.Context, session string, kind advantage.Kind, value int) error {
	if err := s.check(kind); err != nil {
		return err
	}
	if value < 0 {
		return advantage.ErrNegativeResult
	}
	if _, err := s.pool.Exec(ctx, upsertCounterSQL, session, string(kind), value); err != nil {
		return fmt.Errorf("set counter: %w", err)
	}
	return nil
}

// Visibility returns the shared display flag, false when unset.
func (s *Store) Visibility(ctx context.Context, session string) (bool, error) {
	if err := s.check(advantage.Allies); err != nil {
		return false, err
	}
	var shown bool
	err := s.pool.QueryRow(ctx,
		`SELECT shown FROM session_display WHERE session_id = $1`, session,
	).Scan(&shown)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get visibility: %w", err)
	}
	return shown, nil
}

// SetVisibility upserts the shared display flag.
func (s *Store) SetVisibility(ctx context.Context, session string, shown bool) error {
	if err := s.check(advantage.Allies); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, upsertDisplaySQL, session, shown); err != nil {
		return fmt.Errorf("set visibility: %w", err)
	}
	return nil
}

// ResetAll zeroes both counters and hides the display in one transaction.
func (s *Store) ResetAll(ctx context.Context, session string) error {
	if err := s.check(advantage.Allies); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, kind := range advantage.Kinds {
			if _, err := tx.Exec(ctx, upsertCounterSQL, session, string(kind), 0); err != nil {
				return fmt.Errorf("reset %s: %w", kind, err)
			}
		}
		if _, err := tx.Exec(ctx, upsertDisplaySQL, session, false); err != nil {
			return fmt.Errorf("reset visibility: %w", err)
		}
		return nil
	})
}

func (s *Store) check(kind advantage.Kind) error {
	if s == nil || s.pool == nil {
		return errors.New("storage is not configured")
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", advantage.ErrUnknownKind, kind)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS session_counters (
    session_id TEXT NOT NULL,
    kind TEXT NOT NULL CHECK (kind IN ('allies', 'adversaries')),
    value INTEGER NOT NULL CHECK (value >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (session_id, kind)
);
CREATE TABLE IF NOT EXISTS session_display (
    session_id TEXT PRIMARY KEY,
    shown BOOLEAN NOT NULL DEFAULT false,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const upsertCounterSQL = `
INSERT INTO session_counters (session_id, kind, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (session_id, kind) DO UPDATE SET
    value = EXCLUDED.value,
    updated_at = EXCLUDED.updated_at`

const upsertDisplaySQL = `
INSERT INTO session_display (session_id, shown, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (session_id) DO UPDATE SET
    shown = EXCLUDED.shown,
    updated_at = EXCLUDED.updated_at`

var _ advantage.Store = (*Store)(nil)
