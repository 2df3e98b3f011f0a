// Package metrics exposes the Prometheus instruments shared by the ingest path,
// the notification dispatcher and the report refresher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "txwatcher"

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Transaction count events accepted and persisted",
		},
		[]string{"status"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Transaction count events rejected before persistence",
		},
		[]string{"reason"},
	)

	Anomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Events whose count exceeded the bucket threshold",
		},
		[]string{"status", "severity"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery attempts by channel and result",
		},
		[]string{"channel", "result"},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications discarded because the dispatch queue was full",
		},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent assessing and persisting one event",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	BucketThreshold = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bucket_threshold",
			Help:      "Max normal value of the most recent hourly bucket per status",
		},
		[]string{"status"},
	)

	BucketMean = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bucket_mean",
			Help:      "Mean count of the most recent hourly bucket per status",
		},
		[]string{"status"},
	)
)

// Notification results.
const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)
