package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"txn-anomaly-alerts/internal/client"
	"txn-anomaly-alerts/internal/config"
	"txn-anomaly-alerts/internal/storage"
)

// ReplaySummary counts what a replay produced.
type ReplaySummary struct {
	Sent   int
	Alerts int
	Failed int
}

var (
	scenarioHour    = time.Date(2025, 7, 22, 21, 0, 0, 0, time.UTC)
	scenarioSpike   = storage.Record{Timestamp: time.Date(2025, 7, 22, 21, 6, 0, 0, time.UTC), Status: config.StatusDenied, Count: 5000}
	scenarioMinutes = 30
	scenarioLead    = 15 * time.Minute
	noiseStatuses   = []string{config.StatusFailed, config.StatusDenied, config.StatusReversed}
)

// SyntheticScenario builds a half-hour of traffic around 21:00: approved
// volume every fifth minute, light noise on the other statuses, then a
// denied spike that should trip a high-severity alert.
func SyntheticScenario(seed uint64) []storage.Record {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	start := scenarioHour.Add(-scenarioLead)
	records := make([]storage.Record, 0, scenarioMinutes+1)
	for i := 0; i < scenarioMinutes; i++ {
		ts := start.Add(time.Duration(i) * time.Minute)
		if ts.Minute()%5 == 0 {
			records = append(records, storage.Record{Timestamp: ts, Status: config.StatusApproved, Count: 100 + rng.Int64N(51)})
			continue
		}
		status := noiseStatuses[rng.IntN(len(noiseStatuses))]
		records = append(records, storage.Record{Timestamp: ts, Status: status, Count: 1 + rng.Int64N(5)})
	}
	return append(records, scenarioSpike)
}

// Replay streams events to a running server at a fixed pace.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) (ReplaySummary, error) {
	records, err := a.replayRecords(opts)
	if err != nil {
		return ReplaySummary{}, err
	}
	if len(records) == 0 {
		return ReplaySummary{}, errors.New("nothing to replay")
	}

	c := client.New(client.Options{BaseURL: opts.BaseURL, Timeout: opts.Timeout, UserAgent: "txwatcher-replay"}, a.Logger)

	var summary ReplaySummary
	for i, rec := range records {
		if i > 0 && opts.Interval > 0 {
			timer := time.NewTimer(opts.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return summary, ctx.Err()
			case <-timer.C:
			}
		}

		ev := client.Event{Timestamp: storage.FormatTimestamp(rec.Timestamp), Status: rec.Status, Count: rec.Count}
		result, err := c.Send(ctx, ev)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed++
			a.Logger.Warn().Err(err).Str("timestamp", ev.Timestamp).Str("status", ev.Status).Msg("event rejected")
			fmt.Fprintf(a.Out, "%s %-8s %6d  error: %v\n", ev.Timestamp, ev.Status, ev.Count, err)
			continue
		}

		summary.Sent++
		if result.Alert {
			summary.Alerts++
		}
		fmt.Fprintf(a.Out, "%s %-8s %6d  %s\n", ev.Timestamp, ev.Status, ev.Count, result.Message)
	}

	a.Logger.Info().
		Int("sent", summary.Sent).
		Int("alerts", summary.Alerts).
		Int("failed", summary.Failed).
		Msg("replay completed")
	return summary, nil
}

func (a *App) replayRecords(opts ReplayOptions) ([]storage.Record, error) {
	switch {
	case opts.Synthetic && opts.Path != "":
		return nil, errors.New("--file and --synthetic are mutually exclusive")
	case opts.Synthetic:
		seed := opts.Seed
		if seed == 0 {
			seed = rand.Uint64()
		}
		a.Logger.Info().Uint64("seed", seed).Msg("generating synthetic scenario")
		return SyntheticScenario(seed), nil
	case opts.Path != "":
		file, err := os.Open(opts.Path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		records, _, err := readRecordsCSV(file, false, func(line int, err error) {
			a.Logger.Warn().Err(err).Int("line", line).Msg("skipping invalid row")
		})
		return records, err
	default:
		return nil, errors.New("one of --file or --synthetic is required")
	}
}
