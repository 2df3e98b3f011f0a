package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Key layout:
//
//	s/<status>/<ts:8><seq:8> -> <count:8>            per-status history
//	t/<ts:8><seq:8>          -> <count:8><status>    global time order
//
// ts is the unix second with the sign bit flipped so keys sort chronologically.
var (
	badgerStatusPrefix = []byte("s/")
	badgerTimePrefix   = []byte("t/")
	badgerSeqKey       = []byte("seq/records")
)

const badgerCtxCheckEvery = 1000

// BadgerOptions configures the embedded store.
type BadgerOptions struct {
	Path        string
	InMemory    bool
	MaxMemoryMB int64
}

// BadgerStore persists records in an embedded BadgerDB (LSM tree).
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadger opens (or creates) a BadgerDB at opts.Path.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	memTableSize := int64(16 << 20)
	if opts.MaxMemoryMB > 0 {
		memTableSize = opts.MaxMemoryMB << 20 / 3
	}

	bopts = bopts.
		WithLogger(nil).
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	seq, err := db.GetSequence(badgerSeqKey, 256)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badger sequence: %w", err)
	}

	return &BadgerStore{db: db, seq: seq}, nil
}

// Close releases the sequence lease and shuts BadgerDB down cleanly.
func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("release badger sequence: %w", err)
	}
	return s.db.Close()
}

// RunGC reclaims value-log space. Nothing being due is not an error.
func (s *BadgerStore) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// Insert appends one record.
func (s *BadgerStore) Insert(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	seq, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("insert record: next sequence: %w", err)
	}

	suffix := badgerTimeSeq(rec.Timestamp, seq)
	count := make([]byte, 8)
	binary.BigEndian.PutUint64(count, uint64(rec.Count))

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(badgerKey(badgerStatusKeyPrefix(rec.Status), suffix), count); err != nil {
			return err
		}
		value := append(append([]byte{}, count...), rec.Status...)
		return txn.Set(badgerKey(badgerTimePrefix, suffix), value)
	})
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// HourWindow lists same-hour records before q.Before, newest first.
func (s *BadgerStore) HourWindow(ctx context.Context, q HourWindowQuery) ([]Record, error) {
	lower := q.HourStart
	return s.scanStatusBackward(ctx, "list hour window", q.Status, q.end(), q.Limit, func(ts time.Time) (keep, stop bool) {
		if ts.Before(lower) {
			return false, true
		}
		return true, false
	})
}

// HourOfDay lists records sharing q.Hour across days before q.Before, newest first.
func (s *BadgerStore) HourOfDay(ctx context.Context, q HourOfDayQuery) ([]Record, error) {
	return s.scanStatusBackward(ctx, "list hour of day", q.Status, q.Before, q.Limit, func(ts time.Time) (keep, stop bool) {
		return ts.Hour() == q.Hour, false
	})
}

// Since lists records at or after since, oldest first.
func (s *BadgerStore) Since(ctx context.Context, since time.Time) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerTimePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		start := badgerKey(badgerTimePrefix, badgerTimeOnly(since))
		n := 0
		for it.Seek(start); it.Valid(); it.Next() {
			if n++; n%badgerCtxCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			rec, err := decodeTimeItem(it.Item())
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list since: %w", err)
	}
	return out, nil
}

// Recent lists the newest records across all statuses.
func (s *BadgerStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	out := make([]Record, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerTimePrefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(badgerKey(badgerTimePrefix, bytes.Repeat([]byte{0xff}, 16))); it.Valid() && len(out) < limit; it.Next() {
			rec, err := decodeTimeItem(it.Item())
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) scanStatusBackward(ctx context.Context, op, status string, before time.Time, limit int, filter func(time.Time) (keep, stop bool)) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	prefix := badgerStatusKeyPrefix(status)
	out := make([]Record, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// reverse Seek lands on the last key <= target; every key at `before` carries a seq suffix and sorts after it
		n := 0
		for it.Seek(badgerKey(prefix, badgerTimeOnly(before))); it.Valid() && len(out) < limit; it.Next() {
			if n++; n%badgerCtxCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			item := it.Item()
			ts := decodeBadgerTime(item.Key()[len(prefix):])
			keep, stop := filter(ts)
			if stop {
				return nil
			}
			if !keep {
				continue
			}

			var count int64
			if err := item.Value(func(val []byte) error {
				if len(val) < 8 {
					return fmt.Errorf("corrupt value for key %x", item.Key())
				}
				count = int64(binary.BigEndian.Uint64(val[:8]))
				return nil
			}); err != nil {
				return err
			}
			out = append(out, Record{Timestamp: ts, Status: status, Count: count})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func decodeTimeItem(item *badger.Item) (Record, error) {
	key := item.Key()
	rec := Record{Timestamp: decodeBadgerTime(key[len(badgerTimePrefix):])}
	err := item.Value(func(val []byte) error {
		if len(val) < 8 {
			return fmt.Errorf("corrupt value for key %x", key)
		}
		rec.Count = int64(binary.BigEndian.Uint64(val[:8]))
		rec.Status = string(val[8:])
		return nil
	})
	return rec, err
}

func badgerStatusKeyPrefix(status string) []byte {
	prefix := make([]byte, 0, len(badgerStatusPrefix)+len(status)+1)
	prefix = append(prefix, badgerStatusPrefix...)
	prefix = append(prefix, status...)
	return append(prefix, '/')
}

func badgerKey(prefix, suffix []byte) []byte {
	key := make([]byte, 0, len(prefix)+len(suffix))
	key = append(key, prefix...)
	return append(key, suffix...)
}

func badgerTimeOnly(ts time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(ts.Unix())^(1<<63))
	return buf
}

func badgerTimeSeq(ts time.Time, seq uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(ts.Unix())^(1<<63))
	binary.BigEndian.PutUint64(buf[8:16], seq)
	return buf
}

func decodeBadgerTime(suffix []byte) time.Time {
	return time.Unix(int64(binary.BigEndian.Uint64(suffix[0:8])^(1<<63)), 0).UTC()
}

var _ RecordStore = (*BadgerStore)(nil)
