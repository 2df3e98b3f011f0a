package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"txn-anomaly-alerts/internal/config"
)

func day(d, h, m int) time.Time {
	return time.Date(2025, time.July, d, h, m, 0, 0, time.UTC)
}

func backends(t *testing.T) map[string]func(t *testing.T) RecordStore {
	t.Helper()
	out := map[string]func(t *testing.T) RecordStore{
		"memory": func(t *testing.T) RecordStore { return NewMemoryStore() },
		"sqlite": func(t *testing.T) RecordStore {
			store, err := OpenSQLite(context.Background(), config.DatabaseConfig{Path: ":memory:"})
			require.NoError(t, err)
			return store
		},
		"sqlite-file": func(t *testing.T) RecordStore {
			store, err := OpenSQLite(context.Background(), config.DatabaseConfig{Path: t.TempDir() + "/data/tx.db"})
			require.NoError(t, err)
			return store
		},
		"badger": func(t *testing.T) RecordStore {
			store, err := OpenBadger(BadgerOptions{InMemory: true})
			require.NoError(t, err)
			return store
		},
	}
	if dsn := os.Getenv("TXWATCHER_TEST_PG_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) RecordStore {
			ctx := context.Background()
			pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn})
			require.NoError(t, err)
			store := NewPostgresStore(pool)
			require.NoError(t, store.EnsureSchema(ctx))
			_, err = pool.Exec(ctx, `TRUNCATE transactions`)
			require.NoError(t, err)
			return store
		}
	}
	return out
}

func seed(t *testing.T, store RecordStore, recs ...Record) {
	t.Helper()
	for _, rec := range recs {
		require.NoError(t, store.Insert(context.Background(), rec))
	}
}

func counts(recs []Record) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.Count
	}
	return out
}

func TestRecordStoreContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("HourWindow", func(t *testing.T) {
				store := open(t)
				defer store.Close()
				ctx := context.Background()

				seed(t, store,
					Record{Timestamp: day(22, 20, 59), Status: "denied", Count: 1}, // previous hour
					Record{Timestamp: day(22, 21, 0), Status: "denied", Count: 100},
					Record{Timestamp: day(22, 21, 1), Status: "denied", Count: 110},
					Record{Timestamp: day(22, 21, 2), Status: "failed", Count: 7}, // other status
					Record{Timestamp: day(22, 21, 3), Status: "denied", Count: 105},
					Record{Timestamp: day(22, 21, 6), Status: "denied", Count: 999}, // the reference itself
					Record{Timestamp: day(22, 21, 9), Status: "denied", Count: 5},   // after reference
					Record{Timestamp: day(21, 21, 4), Status: "denied", Count: 50},  // other day
				)

				got, err := store.HourWindow(ctx, HourWindowQuery{
					Status:    "denied",
					HourStart: day(22, 21, 0),
					Before:    day(22, 21, 6),
					Limit:     7,
				})
				require.NoError(t, err)
				require.Equal(t, []int64{105, 110, 100}, counts(got))
				require.Equal(t, day(22, 21, 3), got[0].Timestamp)
				require.Equal(t, "denied", got[0].Status)

				limited, err := store.HourWindow(ctx, HourWindowQuery{
					Status: "denied", HourStart: day(22, 21, 0), Before: day(22, 21, 6), Limit: 2,
				})
				require.NoError(t, err)
				require.Equal(t, []int64{105, 110}, counts(limited))
			})

			t.Run("HourOfDay", func(t *testing.T) {
				store := open(t)
				defer store.Close()
				ctx := context.Background()

				seed(t, store,
					Record{Timestamp: day(18, 21, 10), Status: "denied", Count: 11},
					Record{Timestamp: day(19, 21, 10), Status: "denied", Count: 12},
					Record{Timestamp: day(20, 9, 10), Status: "denied", Count: 99}, // other hour
					Record{Timestamp: day(20, 21, 50), Status: "denied", Count: 13},
					Record{Timestamp: day(21, 21, 10), Status: "reversed", Count: 77},
					Record{Timestamp: day(22, 21, 0), Status: "denied", Count: 14},
					Record{Timestamp: day(22, 21, 6), Status: "denied", Count: 15}, // reference
				)

				got, err := store.HourOfDay(ctx, HourOfDayQuery{Status: "denied", Hour: 21, Before: day(22, 21, 6), Limit: 3})
				require.NoError(t, err)
				require.Equal(t, []int64{14, 13, 12}, counts(got))
			})

			t.Run("SinceAndRecent", func(t *testing.T) {
				store := open(t)
				defer store.Close()
				ctx := context.Background()

				seed(t, store,
					Record{Timestamp: day(22, 10, 0), Status: "approved", Count: 120},
					Record{Timestamp: day(22, 11, 0), Status: "failed", Count: 3},
					Record{Timestamp: day(22, 12, 0), Status: "denied", Count: 4},
					Record{Timestamp: day(22, 12, 0), Status: "reversed", Count: 2},
				)

				since, err := store.Since(ctx, day(22, 11, 0))
				require.NoError(t, err)
				require.Len(t, since, 3)
				require.Equal(t, int64(3), since[0].Count)
				require.Equal(t, day(22, 12, 0), since[2].Timestamp)

				recent, err := store.Recent(ctx, 2)
				require.NoError(t, err)
				require.Len(t, recent, 2)
				require.Equal(t, day(22, 12, 0), recent[0].Timestamp)
				require.Equal(t, day(22, 12, 0), recent[1].Timestamp)

				all, err := store.Recent(ctx, 50)
				require.NoError(t, err)
				require.Len(t, all, 4)
				require.Equal(t, "approved", all[3].Status)
			})

			t.Run("UnknownStatusIsEmpty", func(t *testing.T) {
				store := open(t)
				defer store.Close()

				got, err := store.HourOfDay(context.Background(), HourOfDayQuery{Status: "denied", Hour: 3, Before: day(22, 3, 0), Limit: 7})
				require.NoError(t, err)
				require.Empty(t, got)
			})
		})
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, store.Insert(ctx, Record{Timestamp: day(1, 1, 1), Status: "denied"}), context.Canceled)
	_, err := store.Recent(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenBadger(BadgerOptions{Path: dir})
	require.NoError(t, err)
	seed(t, store,
		Record{Timestamp: day(22, 21, 0), Status: "denied", Count: 1},
		Record{Timestamp: day(22, 21, 1), Status: "denied", Count: 2},
	)
	require.NoError(t, store.Close())

	store, err = OpenBadger(BadgerOptions{Path: dir})
	require.NoError(t, err)
	defer store.Close()
	seed(t, store, Record{Timestamp: day(22, 21, 1), Status: "denied", Count: 3})

	got, err := store.HourWindow(context.Background(), HourWindowQuery{
		Status: "denied", HourStart: day(22, 21, 0), Before: day(22, 21, 30), Limit: 10,
	})
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2, 1}, counts(got))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle"})
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func TestHelpers(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	ts := time.Date(2025, 7, 22, 21, 6, 45, 999, loc)

	require.Equal(t, time.Date(2025, 7, 22, 21, 6, 45, 0, time.UTC), Naive(ts))
	require.Equal(t, time.Date(2025, 7, 22, 21, 0, 0, 0, loc), HourStart(ts))
	require.Equal(t, "2025-07-22T21:06:45", FormatTimestamp(Naive(ts)))
}

func TestBadgerRunGCNothingDue(t *testing.T) {
	store, err := OpenBadger(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.RunGC(0.5))
}

func TestSQLiteOpensLegacySchema(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/transactions.db"

	legacy, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`CREATE TABLE transactions (timestamp TEXT, status TEXT, count INTEGER)`)
	require.NoError(t, err)
	_, err = legacy.Exec(`INSERT INTO transactions(timestamp, status, count) VALUES
		('2025-07-22 21:00:00', 'denied', 100),
		('2025-07-22T21:01:00', 'denied', 110),
		('2025-07-22 21:02:30.250000', 'denied', 105),
		('2025-07-21 21:10:00', 'denied', 90)`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	store, err := OpenSQLite(ctx, config.DatabaseConfig{Path: path})
	require.NoError(t, err)
	defer store.Close()

	seed(t, store, Record{Timestamp: day(22, 21, 3), Status: "denied", Count: 95})

	got, err := store.HourWindow(ctx, HourWindowQuery{Status: "denied", HourStart: day(22, 21, 0), Before: day(22, 21, 3), Limit: 7})
	require.NoError(t, err)
	require.Equal(t, []int64{105, 110, 100}, counts(got))
	require.Equal(t, time.Date(2025, time.July, 22, 21, 2, 30, 0, time.UTC), got[0].Timestamp)

	got, err = store.HourOfDay(ctx, HourOfDayQuery{Status: "denied", Hour: 21, Before: day(22, 21, 1), Limit: 7})
	require.NoError(t, err)
	require.Equal(t, []int64{100, 90}, counts(got))

	got, err = store.Since(ctx, day(22, 21, 1))
	require.NoError(t, err)
	require.Equal(t, []int64{110, 105, 95}, counts(got))

	got, err = store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{95, 105}, counts(got))
}

func TestParseTimestampForms(t *testing.T) {
	want := day(22, 21, 6)
	for _, in := range []string{
		"2025-07-22T21:06:00",
		"2025-07-22 21:06:00",
		"2025-07-22T21:06:00.900",
		"2025-07-22T21:06:00+03:00",
		"2025-07-22T21:06",
	} {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseTimestamp("22/07/2025")
	require.Error(t, err)
}
