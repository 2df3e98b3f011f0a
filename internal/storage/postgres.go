package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createTransactionsSQL = `CREATE TABLE IF NOT EXISTS transactions (
        id      BIGSERIAL PRIMARY KEY,
        ts      TIMESTAMP WITHOUT TIME ZONE NOT NULL,
        status  TEXT NOT NULL,
        count   BIGINT NOT NULL CHECK (count >= 0)
    );
    CREATE INDEX IF NOT EXISTS idx_transactions_status_ts ON transactions (status, ts DESC);
    CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions (ts DESC);`

	insertTransactionSQL = `INSERT INTO transactions (ts, status, count) VALUES ($1, $2, $3);`

	listHourWindowSQL = `SELECT ts, status, count
    FROM transactions
    WHERE status = $1
      AND ts >= $2
      AND ts < $3
    ORDER BY ts DESC, id DESC
    LIMIT $4;`

	listHourOfDaySQL = `SELECT ts, status, count
    FROM transactions
    WHERE status = $1
      AND EXTRACT(HOUR FROM ts) = $2
      AND ts < $3
    ORDER BY ts DESC, id DESC
    LIMIT $4;`

	listSinceSQL = `SELECT ts, status, count
    FROM transactions
    WHERE ts >= $1
    ORDER BY ts, id;`

	listRecentSQL = `SELECT ts, status, count
    FROM transactions
    ORDER BY ts DESC, id DESC
    LIMIT $1;`

	advisoryLockSQL   = `SELECT pg_advisory_lock($1);`
	advisoryUnlockSQL = `SELECT pg_advisory_unlock($1);`
)

// PostgresStore persists records in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the transactions table and its indexes when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createTransactionsSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// AdvisoryLock blocks until the session-level advisory lock is held and returns its release func.
func (s *PostgresStore) AdvisoryLock(ctx context.Context, key int64) (func(), error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, advisoryLockSQL, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// a connection that cannot unlock must not go back to the pool holding the lock
			_ = conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, nil
}

// Insert appends one record.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, insertTransactionSQL, rec.Timestamp, rec.Status, rec.Count); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// HourWindow lists same-hour records before q.Before, newest first.
func (s *PostgresStore) HourWindow(ctx context.Context, q HourWindowQuery) ([]Record, error) {
	return s.list(ctx, "list hour window", listHourWindowSQL, q.Status, q.HourStart, q.end(), q.Limit)
}

// HourOfDay lists records sharing q.Hour across days before q.Before, newest first.
func (s *PostgresStore) HourOfDay(ctx context.Context, q HourOfDayQuery) ([]Record, error) {
	return s.list(ctx, "list hour of day", listHourOfDaySQL, q.Status, q.Hour, q.Before, q.Limit)
}

// Since lists records at or after since, oldest first.
func (s *PostgresStore) Since(ctx context.Context, since time.Time) ([]Record, error) {
	return s.list(ctx, "list since", listSinceSQL, since)
}

// Recent lists the newest records across all statuses.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	return s.list(ctx, "list recent", listRecentSQL, limit)
}

func (s *PostgresStore) list(ctx context.Context, op, query string, args ...any) ([]Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("%s: %w", op, queryErr)
	}

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var rec Record
	if err := row.Scan(&rec.Timestamp, &rec.Status, &rec.Count); err != nil {
		return Record{}, err
	}
	rec.Timestamp = Naive(rec.Timestamp)
	return rec, nil
}

var (
	_ RecordStore    = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
