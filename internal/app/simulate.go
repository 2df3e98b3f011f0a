package app

import (
	"context"
	"errors"
	"time"

	"txn-anomaly-alerts/internal/alerting"
	"txn-anomaly-alerts/internal/config"
	"txn-anomaly-alerts/internal/storage"
)

// SimulateAlert pushes one synthetic anomaly through every configured channel.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}
	if !config.IsKnownStatus(opts.Status) {
		return errors.New("unsupported status " + opts.Status)
	}

	dispatcher := a.newDispatcher()
	if dispatcher == nil {
		return errors.New("no alert channel configured")
	}

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}
	note := alerting.NewNotification(opts.Status, storage.FormatTimestamp(storage.Naive(time.Now().In(loc))), opts.Count)

	a.Logger.Info().
		Str("notification_id", note.ID).
		Strs("channels", dispatcher.Channels()).
		Msg("sending simulated alert")
	return dispatcher.Deliver(ctx, note)
}
