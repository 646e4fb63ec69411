// Package sqlite provides a SQLite-backed advantage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/store/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists session counters in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return errors.New("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

// Get returns the counter value, 0 when the row does not exist.
func (s *Store) Get(ctx context.Context, session string, kind advantage.Kind) (int, error) {
	if err := s.check(ctx, kind); err != nil {
		return 0, err
	}
	var value int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM session_counters WHERE session_id = ? AND kind = ?`,
		session, string(kind),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter: %w", err)
	}
	return value, nil
}

// Set upserts the counter value.
func (s *Store) Set(ctx context.Context, session string, kind advantage.Kind, value int) error {
	if err := s.check(ctx, kind); err != nil {
		return err
	}
	if value < 0 {
		return advantage.ErrNegativeResult
	}
	if _, err := s.sqlDB.ExecContext(ctx, upsertCounterSQL, session, string(kind), value, s.millis()); err != nil {
		return fmt.Errorf("set counter: %w", err)
	}
	return nil
}

// Visibility returns the shared display flag, false when unset.
func (s *Store) Visibility(ctx context.Context, session string) (bool, error) {
	if err := s.check(ctx, advantage.Allies); err != nil {
		return false, err
	}
	var shown bool
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT shown FROM session_display WHERE session_id = ?`, session,
	).Scan(&shown)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get visibility: %w", err)
	}
	return shown, nil
}

// SetVisibility upserts the shared display flag.
func (s *Store) SetVisibility(ctx context.Context, session string, shown bool) error {
	if err := s.check(ctx, advantage.Allies); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, upsertDisplaySQL, session, shown, s.millis()); err != nil {
		return fmt.Errorf("set visibility: %w", err)
	}
	return nil
}

// ResetAll zeroes both counters and hides the display in one transaction.
func (s *Store) ResetAll(ctx context.Context, session string) error {
	if err := s.check(ctx, advantage.Allies); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.millis()
	for _, kind := range advantage.Kinds {
		if _, err := tx.ExecContext(ctx, upsertCounterSQL, session, string(kind), 0, now); err != nil {
			return fmt.Errorf("reset %s: %w", kind, err)
		}
	}
	if _, err := tx.ExecContext(ctx, upsertDisplaySQL, session, false, now); err != nil {
		return fmt.Errorf("reset visibility: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

func (s *Store) check(ctx context.Context, kind advantage.Kind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errors.New("storage is not configured")
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", advantage.ErrUnknownKind, kind)
	}
	return nil
}

func (s *Store) millis() int64 {
	return s.now().UTC().UnixMilli()
}

const upsertCounterSQL = `
INSERT INTO session_counters (session_id, kind, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (session_id, kind) DO UPDATE SET
    value = excluded.value,
    updated_at = excluded.updated_at`

const upsertDisplaySQL = `
INSERT INTO session_display (session_id, shown, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (session_id) DO UPDATE SET
    shown = excluded.shown,
    updated_at = excluded.updated_at`

var _ advantage.Store = (*Store)(nil)
