package service

import (
	"context"
	"sort"
	"time"

	"txn-anomaly-alerts/internal/anomaly"
	"txn-anomaly-alerts/internal/config"
	"txn-anomaly-alerts/internal/metrics"
	"txn-anomaly-alerts/internal/storage"
)

const (
	hourWindowLayout = "2006-01-02T15:00:00"
	// previous and current hour
	gaugeWindowHours = 2
)

// Report is the dashboard payload.
type Report struct {
	MetricsByHourStatus []HourStatusMetric  `json:"metrics_by_hour_status"`
	RecentTransactions  []RecentTransaction `json:"recent_transactions"`
}

// HourStatusMetric summarises one (hour bucket, status) group.
type HourStatusMetric struct {
	HourWindow     string  `json:"hour_window"`
	Status         string  `json:"status"`
	MeanCount      float64 `json:"mean_count"`
	StdCount       float64 `json:"std_count"`
	MaxNormalValue float64 `json:"max_normal_value"`
	NumPoints      int     `json:"num_points"`
}

// RecentTransaction is a stored record with its verdict recomputed.
type RecentTransaction struct {
	Timestamp string           `json:"timestamp"`
	Status    string           `json:"status"`
	Count     int64            `json:"count"`
	Alert     bool             `json:"alert"`
	Severity  anomaly.Severity `json:"severity"`
}

// Report aggregates the last windowHours of records and re-assesses the most
// recent ones. It reads without the writer lock.
func (s *Service) Report(ctx context.Context, windowHours int) (Report, error) {
	hourly, err := s.HourlyMetrics(ctx, windowHours)
	if err != nil {
		return Report{}, err
	}
	recent, err := s.Recent(ctx, s.recentLimit)
	if err != nil {
		return Report{}, err
	}
	return Report{MetricsByHourStatus: hourly, RecentTransactions: recent}, nil
}

// HourlyMetrics groups records since now-windowHours by hour bucket and status,
// sorted by bucket then status.
func (s *Service) HourlyMetrics(ctx context.Context, windowHours int) ([]HourStatusMetric, error) {
	if windowHours <= 0 || windowHours > config.MaxWindowHours {
		return nil, invalid(ReasonInvalidWindow, "window_hours must be between 1 and %d", config.MaxWindowHours)
	}

	since := storage.Naive(s.now().In(s.location)).Add(-time.Duration(windowHours) * time.Hour)
	qctx, cancel := s.queryContext(ctx)
	records, err := s.store.Since(qctx, since)
	cancel()
	if err != nil {
		return nil, &StoreError{Op: "since", Err: err}
	}

	type groupKey struct {
		hour   time.Time
		status string
	}
	groups := make(map[groupKey][]int64)
	for _, rec := range records {
		key := groupKey{hour: storage.HourStart(rec.Timestamp), status: rec.Status}
		groups[key] = append(groups[key], rec.Count)
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].hour.Equal(keys[j].hour) {
			return keys[i].hour.Before(keys[j].hour)
		}
		return keys[i].status < keys[j].status
	})

	k := s.detector.Params().StdMultiplier
	out := make([]HourStatusMetric, 0, len(keys))
	for _, key := range keys {
		counts := groups[key]
		base, err := anomaly.Describe(counts, k)
		if err != nil {
			continue
		}
		out = append(out, HourStatusMetric{
			HourWindow:     key.hour.Format(hourWindowLayout),
			Status:         key.status,
			MeanCount:      round2(base.Mean),
			StdCount:       round2(base.Std),
			MaxNormalValue: round2(base.Threshold),
			NumPoints:      base.Points,
		})
	}
	return out, nil
}

// Recent returns the newest limit records, each judged against history
// strictly before its own timestamp.
func (s *Service) Recent(ctx context.Context, limit int) ([]RecentTransaction, error) {
	qctx, cancel := s.queryContext(ctx)
	records, err := s.store.Recent(qctx, limit)
	cancel()
	if err != nil {
		return nil, &StoreError{Op: "recent", Err: err}
	}

	out := make([]RecentTransaction, 0, len(records))
	for _, rec := range records {
		qctx, cancel := s.queryContext(ctx)
		a, err := s.detector.Assess(qctx, rec.Status, rec.Timestamp, rec.Count)
		cancel()
		if err != nil {
			return nil, &StoreError{Op: "assess", Err: err}
		}
		out = append(out, RecentTransaction{
			Timestamp: storage.FormatTimestamp(rec.Timestamp),
			Status:    rec.Status,
			Count:     rec.Count,
			Alert:     a.Alert,
			Severity:  a.Severity,
		})
	}
	return out, nil
}

// RefreshGauges publishes the newest hourly bucket of every status to the
// threshold and mean gauges. It matches scheduler.TickFunc.
func (s *Service) RefreshGauges(ctx context.Context, _ time.Time) error {
	hourly, err := s.HourlyMetrics(ctx, gaugeWindowHours)
	if err != nil {
		return err
	}
	latest := make(map[string]HourStatusMetric)
	for _, m := range hourly {
		latest[m.Status] = m
	}
	for status, m := range latest {
		metrics.BucketThreshold.WithLabelValues(status).Set(m.MaxNormalValue)
		metrics.BucketMean.WithLabelValues(status).Set(m.MeanCount)
	}
	s.logger.Debug().Int("statuses", len(latest)).Msg("bucket gauges refreshed")
	return nil
}
