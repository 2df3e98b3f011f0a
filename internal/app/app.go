package app

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"txn-anomaly-alerts/internal/alerting"
	"txn-anomaly-alerts/internal/config"
	"txn-anomaly-alerts/internal/service"
	"txn-anomaly-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newNotifiers() []alerting.Notifier {
	var notifiers []alerting.Notifier
	if tg := a.Config.Alerting.Telegram; tg.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, a.Config.Alerting.NotifyTimeout, a.Logger))
	}
	if a.Config.Alerting.Email.Enabled {
		notifiers = append(notifiers, alerting.NewEmailNotifier(a.Config.Alerting.Email, nil, a.Logger))
	}
	return notifiers
}

func (a *App) newDispatcher() *alerting.Dispatcher {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	notifiers := a.newNotifiers()
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewDispatcher(notifiers, alerting.DispatcherOptions{
		QueueSize: a.Config.Alerting.QueueSize,
		Workers:   a.Config.Alerting.Workers,
		Timeout:   a.Config.Alerting.NotifyTimeout,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.RecordStore, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close store")
		}
	}
	return store, closer, nil
}

func (a *App) newService(store storage.RecordStore, dispatcher *alerting.Dispatcher) (*service.Service, error) {
	var queue service.AlertQueue
	if dispatcher != nil {
		queue = dispatcher
	}
	return service.New(a.Config, store, queue, a.Logger)
}

// ExportOptions hold parameters for exporting hourly metrics.
type ExportOptions struct {
	WindowHours int
	PNGPath     string
	CSVPath     string
	MaxPoints   int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// DashboardOptions configure reading a running server's report.
type DashboardOptions struct {
	BaseURL     string
	WindowHours int
	Timeout     time.Duration
}

// ImportOptions configure the CSV bootstrap.
type ImportOptions struct {
	Path   string
	DryRun bool
	Strict bool
}

// ReplayOptions configure streaming events to a running server.
type ReplayOptions struct {
	Path      string
	Synthetic bool
	Seed      uint64
	BaseURL   string
	Interval  time.Duration
	Timeout   time.Duration
}

// SimulateOptions describe the test notification.
type SimulateOptions struct {
	Status string
	Count  int64
}
