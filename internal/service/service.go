package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"txn-anomaly-alerts/internal/alerting"
	"txn-anomaly-alerts/internal/anomaly"
	"txn-anomaly-alerts/internal/config"
	"txn-anomaly-alerts/internal/metrics"
	"txn-anomaly-alerts/internal/storage"
)

// AlertQueue accepts notifications for asynchronous delivery.
type AlertQueue interface {
	Enqueue(note alerting.Notification) error
}

// IngestResult is the verdict returned to the event producer.
type IngestResult struct {
	Alert         bool             `json:"alert"`
	Status        string           `json:"status"`
	Severity      anomaly.Severity `json:"severity"`
	ExpectedRange *ExpectedRange   `json:"expected_range"`
	Message       string           `json:"message"`
}

// ExpectedRange is the baseline rounded for presentation.
type ExpectedRange struct {
	Mean           float64 `json:"mean"`
	Std            float64 `json:"std"`
	MaxNormalValue float64 `json:"max_normal_value"`
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the wall clock used for report windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service orchestrates validation, detection, persistence and alert dispatch.
type Service struct {
	store    storage.RecordStore
	detector *anomaly.Detector
	alerts   AlertQueue
	logger   zerolog.Logger

	alertStatuses []string
	queryTimeout  time.Duration
	recentLimit   int
	location      *time.Location
	now           func() time.Time

	mu      sync.Mutex
	locker  storage.AdvisoryLocker
	lockKey int64
}

// New constructs the ingestion service. alerts may be nil when alerting is disabled.
func New(cfg *config.Config, store storage.RecordStore, alerts AlertQueue, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, storage.ErrNotConfigured
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	s := &Service{
		store:         store,
		detector:      anomaly.NewDetector(store, anomaly.ParamsFromConfig(cfg.Detection)),
		alerts:        alerts,
		logger:        logger.With().Str("component", "service").Logger(),
		alertStatuses: slices.Clone(cfg.Detection.AlertStatuses),
		queryTimeout:  cfg.Database.QueryTimeout,
		recentLimit:   cfg.Report.RecentLimit,
		location:      loc,
		now:           time.Now,
		locker:        locker,
		lockKey:       cfg.Database.AdvisoryLockKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recentLimit <= 0 {
		s.recentLimit = 50
	}
	return s, nil
}

// Ingest validates raw, judges it against history strictly before its
// timestamp, persists it and enqueues a notification for high-severity
// anomalies on alertable statuses.
func (s *Service) Ingest(ctx context.Context, raw RawEvent) (IngestResult, error) {
	ev, err := ValidateEvent(raw)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			metrics.EventsRejected.WithLabelValues(verr.Reason).Inc()
		}
		s.logger.Debug().Err(err).Str("status", raw.Status).Msg("event rejected")
		return IngestResult{}, err
	}

	started := time.Now()
	assessment, err := s.assessAndPersist(ctx, ev)
	metrics.IngestDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		s.logger.Error().Err(err).
			Str("status", ev.Status).
			Str("timestamp", storage.FormatTimestamp(ev.Timestamp)).
			Msg("failed to ingest event")
		return IngestResult{}, err
	}

	metrics.EventsIngested.WithLabelValues(ev.Status).Inc()
	logEvent := s.logger.Debug()
	if assessment.Alert {
		metrics.Anomalies.WithLabelValues(ev.Status, string(assessment.Severity)).Inc()
		logEvent = s.logger.Info()
	}
	logEvent.Str("status", ev.Status).
		Str("timestamp", storage.FormatTimestamp(ev.Timestamp)).
		Int64("count", ev.Count).
		Bool("alert", assessment.Alert).
		Str("severity", string(assessment.Severity)).
		Str("source", string(assessment.Source)).
		Msg("event recorded")

	if s.shouldNotify(ev.Status, assessment) {
		s.notify(ev)
	}

	return buildResult(ev.Status, assessment), nil
}

func (s *Service) assessAndPersist(ctx context.Context, ev Event) (anomaly.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return anomaly.Assessment{}, err
	}
	if unlock != nil {
		defer unlock()
	}

	qctx, cancel := s.queryContext(ctx)
	assessment, err := s.detector.Assess(qctx, ev.Status, ev.Timestamp, ev.Count)
	cancel()
	if err != nil {
		return anomaly.Assessment{}, &StoreError{Op: "assess", Err: err}
	}

	qctx, cancel = s.queryContext(ctx)
	defer cancel()
	if err := s.store.Insert(qctx, ev.Record()); err != nil {
		return anomaly.Assessment{}, &StoreError{Op: "insert", Err: err}
	}
	return assessment, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, nil
	}
	lctx, cancel := s.queryContext(ctx)
	defer cancel()
	unlock, err := s.locker.AdvisoryLock(lctx, s.lockKey)
	if err != nil {
		return nil, &StoreError{Op: "advisory lock", Err: fmt.Errorf("acquire advisory lock: %w", err)}
	}
	return unlock, nil
}

func (s *Service) shouldNotify(status string, a anomaly.Assessment) bool {
	return a.Alert && a.Severity == anomaly.SeverityHigh && slices.Contains(s.alertStatuses, status)
}

func (s *Service) notify(ev Event) {
	if s.alerts == nil {
		return
	}
	note := alerting.NewNotification(ev.Status, storage.FormatTimestamp(ev.Timestamp), ev.Count)
	if err := s.alerts.Enqueue(note); err != nil {
		s.logger.Warn().Err(err).Str("notification_id", note.ID).Msg("alert not queued")
		return
	}
	s.logger.Info().Str("notification_id", note.ID).
		Str("status", note.Status).
		Str("detected_at", note.DetectedAt).
		Int64("count", note.Count).
		Msg("alert queued")
}

func (s *Service) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

func buildResult(status string, a anomaly.Assessment) IngestResult {
	res := IngestResult{
		Alert:    a.Alert,
		Status:   status,
		Severity: a.Severity,
		Message:  "Transaction within normal range",
	}
	if a.Alert {
		res.Message = fmt.Sprintf("🚨 Anomaly detected (severity: %s)", a.Severity)
	}
	if a.HasEstimate() {
		res.ExpectedRange = &ExpectedRange{
			Mean:           round2(a.Baseline.Mean),
			Std:            round2(a.Baseline.Std),
			MaxNormalValue: round2(a.Baseline.Threshold),
		}
	}
	return res
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
