package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"txn-anomaly-alerts/internal/config"
)

// sqliteMigrations is applied in order and tracked in schema_versions.
var sqliteMigrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS transactions (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    status    TEXT NOT NULL,
    count     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_status_ts ON transactions(status, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(timestamp DESC);
`,
	},
}

// Tables created before the migrations existed have no id column and may hold
// space-separated timestamps, so rows are compared on a normalised timestamp
// and tie-broken by rowid.
const (
	sqliteInsertSQL = `INSERT INTO transactions(timestamp, status, count) VALUES (?, ?, ?)`

	sqliteTS = `strftime('%Y-%m-%dT%H:%M:%S', timestamp)`

	sqliteHourWindowSQL = `SELECT timestamp, status, count FROM transactions
WHERE status = ? AND ` + sqliteTS + ` >= ? AND ` + sqliteTS + ` < ?
ORDER BY ` + sqliteTS + ` DESC, rowid DESC LIMIT ?`

	sqliteHourOfDaySQL = `SELECT timestamp, status, count FROM transactions
WHERE status = ? AND strftime('%H', timestamp) = ? AND ` + sqliteTS + ` < ?
ORDER BY ` + sqliteTS + ` DESC, rowid DESC LIMIT ?`

	sqliteSinceSQL = `SELECT timestamp, status, count FROM transactions
WHERE ` + sqliteTS + ` >= ?
ORDER BY ` + sqliteTS + ` ASC, rowid ASC`

	sqliteRecentSQL = `SELECT timestamp, status, count FROM transactions
WHERE ` + sqliteTS + ` IS NOT NULL
ORDER BY ` + sqliteTS + ` DESC, rowid DESC LIMIT ?`
)

// SQLiteStore persists records in a SQLite file, the layout the service started with.
type SQLiteStore struct {
	db *sqlx.DB
}

type sqliteRow struct {
	Timestamp string `db:"timestamp"`
	Status    string `db:"status"`
	Count     int64  `db:"count"`
}

// OpenSQLite opens (or creates) the database at cfg.Path and applies pending migrations.
// Pass ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, cfg config.DatabaseConfig) (*SQLiteStore, error) {
	path := cfg.Path
	if path == "" {
		return nil, fmt.Errorf("database.path is required")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA busy_timeout=10000`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_versions (
    version    INTEGER PRIMARY KEY,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	var current int
	if err := s.db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_versions`); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range sqliteMigrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_versions(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert appends one record.
func (s *SQLiteStore) Insert(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	if _, err := s.db.ExecContext(ctx, sqliteInsertSQL, FormatTimestamp(rec.Timestamp), rec.Status, rec.Count); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// HourWindow lists same-hour records before q.Before, newest first.
func (s *SQLiteStore) HourWindow(ctx context.Context, q HourWindowQuery) ([]Record, error) {
	return s.list(ctx, "list hour window", sqliteHourWindowSQL,
		q.Status, FormatTimestamp(q.HourStart), FormatTimestamp(q.end()), q.Limit)
}

// HourOfDay lists records sharing q.Hour across days before q.Before, newest first.
func (s *SQLiteStore) HourOfDay(ctx context.Context, q HourOfDayQuery) ([]Record, error) {
	return s.list(ctx, "list hour of day", sqliteHourOfDaySQL,
		q.Status, fmt.Sprintf("%02d", q.Hour), FormatTimestamp(q.Before), q.Limit)
}

// Since lists records at or after since, oldest first.
func (s *SQLiteStore) Since(ctx context.Context, since time.Time) ([]Record, error) {
	return s.list(ctx, "list since", sqliteSinceSQL, FormatTimestamp(since))
}

// Recent lists the newest records across all statuses.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	return s.list(ctx, "list recent", sqliteRecentSQL, limit)
}

func (s *SQLiteStore) list(ctx context.Context, op, query string, args ...any) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}

	var rows []sqliteRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		ts, err := ParseTimestamp(row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%s: parse timestamp %q: %w", op, row.Timestamp, err)
		}
		records = append(records, Record{Timestamp: ts, Status: row.Status, Count: row.Count})
	}
	return records, nil
}

var _ RecordStore = (*SQLiteStore)(nil)
