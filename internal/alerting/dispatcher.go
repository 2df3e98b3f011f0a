package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"txn-anomaly-alerts/internal/metrics"
)

// ErrQueueFull is returned by Enqueue when the dispatch buffer is saturated.
var ErrQueueFull = errors.New("alerting: notification queue full")

// DispatcherOptions tunes the asynchronous delivery pool.
type DispatcherOptions struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

// Dispatcher fans notifications out to every channel off the ingest path.
// A failing channel never blocks or fails the others.
type Dispatcher struct {
	notifiers []Notifier
	queue     chan Notification
	workers   int
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewDispatcher builds a dispatcher over the given channels.
func NewDispatcher(notifiers []Notifier, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		notifiers: notifiers,
		queue:     make(chan Notification, opts.QueueSize),
		workers:   opts.Workers,
		timeout:   opts.Timeout,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Channels lists the configured channel names.
func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		out = append(out, n.Channel())
	}
	return out
}

// Enqueue hands note to the worker pool without blocking.
func (d *Dispatcher) Enqueue(note Notification) error {
	select {
	case d.queue <- note:
		return nil
	default:
		metrics.NotificationsDropped.Inc()
		d.logger.Warn().Str("notification_id", note.ID).
			Str("status", note.Status).
			Str("detected_at", note.DetectedAt).
			Msg("notification queue full, dropping alert")
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled. Queued
// notifications are delivered before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Int("workers", d.workers).Strs("channels", d.Channels()).Msg("dispatcher started")

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	wg.Wait()

	d.logger.Info().Msg("dispatcher stopped")
	return nil
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain(ctx)
			return
		case note := <-d.queue:
			_ = d.Deliver(ctx, note)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case note := <-d.queue:
			_ = d.Deliver(ctx, note)
		default:
			return
		}
	}
}

// Deliver sends note to every channel concurrently and waits for all of them.
// Each channel gets its own timeout detached from ctx cancellation so shutdown
// still flushes in-flight alerts. The returned error joins the per-channel failures.
func (d *Dispatcher) Deliver(ctx context.Context, note Notification) error {
	errs := make([]error, len(d.notifiers))
	var wg sync.WaitGroup
	for i, n := range d.notifiers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = d.deliverOne(ctx, n, note)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (d *Dispatcher) deliverOne(ctx context.Context, n Notifier, note Notification) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := n.Notify(sendCtx, note); err != nil {
		metrics.Notifications.WithLabelValues(n.Channel(), metrics.ResultFailed).Inc()
		d.logger.Error().Err(err).
			Str("channel", n.Channel()).
			Str("notification_id", note.ID).
			Str("status", note.Status).
			Msg("notification delivery failed")
		return fmt.Errorf("%s: %w", n.Channel(), err)
	}
	metrics.Notifications.WithLabelValues(n.Channel(), metrics.ResultSent).Inc()
	return nil
}
