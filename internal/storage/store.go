package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"txn-anomaly-alerts/internal/config"
)

var (
	// ErrNotConfigured indicates the backing database was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
	// ErrUnknownDriver is returned by Open for an unsupported database.driver.
	ErrUnknownDriver = errors.New("storage: unknown driver")
)

// RecordStore is the append-only transaction log consumed by detection and reporting.
// Query results are ordered newest first except Since, which is oldest first.
type RecordStore interface {
	Insert(ctx context.Context, rec Record) error
	HourWindow(ctx context.Context, q HourWindowQuery) ([]Record, error)
	HourOfDay(ctx context.Context, q HourOfDayQuery) ([]Record, error)
	Since(ctx context.Context, since time.Time) ([]Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// AdvisoryLocker exposes a cross-process writer lock where the backend supports one.
type AdvisoryLocker interface {
	AdvisoryLock(ctx context.Context, key int64) (unlock func(), err error)
}

// Open constructs the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (RecordStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg)
	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.DriverBadger:
		return OpenBadger(BadgerOptions{Path: cfg.Path, MaxMemoryMB: cfg.MaxMemoryMB})
	case config.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
