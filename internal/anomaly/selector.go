package anomaly

import (
	"context"
	"fmt"
	"time"

	"txn-anomaly-alerts/internal/config"
	"txn-anomaly-alerts/internal/storage"
)

// Source records which tier produced a sample.
type Source string

const (
	SourceSameDay  Source = "same_hour_same_day"
	SourceCrossDay Source = "same_hour_cross_day"
)

// Params are the immutable detection settings.
type Params struct {
	StdMultiplier    float64
	HistoryLimit     int
	MinHistoryPoints int
	// FallbackDays is accepted for compatibility. Fetching HistoryLimit*FallbackDays
	// cross-day rows and keeping the newest HistoryLimit selects exactly the rows
	// LIMIT HistoryLimit does, so the cross-day query uses the latter.
	FallbackDays int
}

// ParamsFromConfig copies the detection section of the configuration.
func ParamsFromConfig(cfg config.DetectionConfig) Params {
	return Params{
		StdMultiplier:    cfg.StdMultiplier,
		HistoryLimit:     cfg.HistoryLimit,
		MinHistoryPoints: cfg.MinHistoryPoints,
		FallbackDays:     cfg.FallbackDays,
	}
}

// HistoryReader is the slice of the event store the selector needs.
type HistoryReader interface {
	HourWindow(ctx context.Context, q storage.HourWindowQuery) ([]storage.Record, error)
	HourOfDay(ctx context.Context, q storage.HourOfDayQuery) ([]storage.Record, error)
}

// Sample is an ordered (newest first) set of historical counts for one bucket.
type Sample struct {
	Counts []int64
	Source Source
}

// Selector assembles baseline samples with a same-day first, cross-day second strategy.
type Selector struct {
	store  HistoryReader
	params Params
}

// NewSelector constructs a Selector.
func NewSelector(store HistoryReader, params Params) *Selector {
	return &Selector{store: store, params: params}
}

// Select gathers history for status strictly before ref. The same-day
// same-hour sample is used when it has at least MinHistoryPoints entries;
// otherwise the cross-day same-hour sample replaces it. When neither tier
// has enough points ErrInsufficientHistory is returned.
func (s *Selector) Select(ctx context.Context, status string, ref time.Time) (Sample, error) {
	primary, err := s.store.HourWindow(ctx, storage.HourWindowQuery{
		Status:    status,
		HourStart: storage.HourStart(ref),
		Before:    ref,
		Limit:     s.params.HistoryLimit,
	})
	if err != nil {
		return Sample{}, fmt.Errorf("select same-day history: %w", err)
	}
	if len(primary) >= s.params.MinHistoryPoints {
		return Sample{Counts: recordCounts(primary, s.params.HistoryLimit), Source: SourceSameDay}, nil
	}

	fallback, err := s.store.HourOfDay(ctx, storage.HourOfDayQuery{
		Status: status,
		Hour:   ref.Hour(),
		Before: ref,
		Limit:  s.params.HistoryLimit,
	})
	if err != nil {
		return Sample{}, fmt.Errorf("select cross-day history: %w", err)
	}
	if len(fallback) >= s.params.MinHistoryPoints {
		return Sample{Counts: recordCounts(fallback, s.params.HistoryLimit), Source: SourceCrossDay}, nil
	}

	return Sample{}, ErrInsufficientHistory
}

func recordCounts(recs []storage.Record, limit int) []int64 {
	if len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]int64, len(recs))
	for i, rec := range recs {
		out[i] = rec.Count
	}
	return out
}
