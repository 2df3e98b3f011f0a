package storage

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// memoryItem orders records by timestamp with an insertion sequence as tie-breaker.
type memoryItem struct {
	rec Record
	seq uint64
}

func memoryLess(a, b memoryItem) bool {
	if !a.rec.Timestamp.Equal(b.rec.Timestamp) {
		return a.rec.Timestamp.Before(b.rec.Timestamp)
	}
	return a.seq < b.seq
}

// MemoryStore keeps records in ordered in-memory trees. Data is lost on restart.
// Useful for tests and for running without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	seq      uint64
	all      *btree.BTreeG[memoryItem]
	byStatus map[string]*btree.BTreeG[memoryItem]
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		all:      newMemoryTree(),
		byStatus: make(map[string]*btree.BTreeG[memoryItem]),
	}
}

func newMemoryTree() *btree.BTreeG[memoryItem] {
	return btree.NewBTreeGOptions(memoryLess, btree.Options{NoLocks: true})
}

// Insert appends one record.
func (s *MemoryStore) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	item := memoryItem{rec: rec, seq: s.seq}
	s.all.Set(item)

	tree, ok := s.byStatus[rec.Status]
	if !ok {
		tree = newMemoryTree()
		s.byStatus[rec.Status] = tree
	}
	tree.Set(item)
	return nil
}

// HourWindow lists same-hour records before q.Before, newest first.
func (s *MemoryStore) HourWindow(ctx context.Context, q HourWindowQuery) ([]Record, error) {
	return s.descendStatus(ctx, q.Status, q.end(), q.Limit, func(rec Record) (keep, stop bool) {
		if rec.Timestamp.Before(q.HourStart) {
			return false, true
		}
		return true, false
	})
}

// HourOfDay lists records sharing q.Hour across days before q.Before, newest first.
func (s *MemoryStore) HourOfDay(ctx context.Context, q HourOfDayQuery) ([]Record, error) {
	return s.descendStatus(ctx, q.Status, q.Before, q.Limit, func(rec Record) (keep, stop bool) {
		return rec.Timestamp.Hour() == q.Hour, false
	})
}

// Since lists records at or after since, oldest first.
func (s *MemoryStore) Since(ctx context.Context, since time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	s.all.Ascend(memoryItem{rec: Record{Timestamp: since}}, func(item memoryItem) bool {
		out = append(out, item.rec)
		return true
	})
	return out, nil
}

// Recent lists the newest records across all statuses.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, limit)
	s.all.Reverse(func(item memoryItem) bool {
		out = append(out, item.rec)
		return len(out) < limit
	})
	return out, nil
}

// Close is a no-op for memory storage.
func (s *MemoryStore) Close() error {
	return nil
}

// descendStatus walks a status tree newest first over records strictly before `before`.
func (s *MemoryStore) descendStatus(ctx context.Context, status string, before time.Time, limit int, filter func(Record) (keep, stop bool)) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tree, ok := s.byStatus[status]
	if !ok || limit <= 0 {
		return nil, nil
	}

	out := make([]Record, 0, limit)
	// seq 0 sorts ahead of every stored item at the same instant, so Descend starts strictly before it
	pivot := memoryItem{rec: Record{Timestamp: before}, seq: 0}
	tree.Descend(pivot, func(item memoryItem) bool {
		if !item.rec.Timestamp.Before(before) {
			return true
		}
		keep, stop := filter(item.rec)
		if stop {
			return false
		}
		if keep {
			out = append(out, item.rec)
		}
		return len(out) < limit
	})
	return out, nil
}

var _ RecordStore = (*MemoryStore)(nil)
