package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"txn-anomaly-alerts/internal/api"
	"txn-anomaly-alerts/internal/scheduler"
	"txn-anomaly-alerts/internal/storage"
)

const badgerGCInterval = 10 * time.Minute

// Run executes the long-running ingest service until SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	dispatcher := a.newDispatcher()
	if dispatcher == nil {
		a.Logger.Warn().Msg("no alert channel enabled; anomalies will only be logged")
	}

	svc, err := a.newService(store, dispatcher)
	if err != nil {
		return err
	}

	server := api.NewServer(a.Config.HTTP, svc, a.Config.Report.WindowHours, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	if dispatcher != nil {
		g.Go(func() error {
			return dispatcher.Run(gctx)
		})
	}
	if interval := a.Config.Report.RefreshInterval; interval > 0 {
		refresher := scheduler.New(scheduler.Options{
			Name:       "report_refresh",
			Interval:   interval,
			RunOnStart: true,
		}, a.Logger)
		g.Go(func() error {
			return refresher.Run(gctx, svc.RefreshGauges)
		})
	}
	if bs, ok := store.(*storage.BadgerStore); ok {
		gc := scheduler.New(scheduler.Options{Name: "badger_gc", Interval: badgerGCInterval}, a.Logger)
		g.Go(func() error {
			return gc.Run(gctx, func(context.Context, time.Time) error {
				return bs.RunGC(0.5)
			})
		})
	}

	a.Logger.Info().
		Str("driver", a.Config.Database.Driver).
		Str("addr", a.Config.HTTP.Addr).
		Msg("starting transaction monitor")

	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("transaction monitor stopped")
	return nil
}
