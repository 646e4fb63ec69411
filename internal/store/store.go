// Package store selects the advantage.Store backend named in configuration.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/config"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/store/memory"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/store/postgres"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/store/sqlite"
	"go.uber.org/zap"
)

// Backend is a store the server can health-check and close.
type Backend interface {
	advantage.Store
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the configured driver.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; counters are lost on restart")
		return memory.New(), nil

	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		s, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.SQLite.Path))
		return s, nil

	case config.DriverPostgres:
		s, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
