package cli

import (
	"time"

	"github.com/spf13/cobra"

	"txn-anomaly-alerts/internal/app"
)

var (
	replayFile      string
	replaySynthetic bool
	replaySeed      uint64
	replayURL       string
	replayInterval  time.Duration
	replayTimeout   time.Duration
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Stream events from a CSV or a synthetic scenario to a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ReplayOptions{
			Path:      replayFile,
			Synthetic: replaySynthetic,
			Seed:      replaySeed,
			BaseURL:   replayURL,
			Interval:  replayInterval,
			Timeout:   replayTimeout,
		}

		_, err := getApp().Replay(cmd.Context(), opts)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayFile, "file", "", "CSV file with timestamp,status,count rows")
	replayCmd.Flags().BoolVar(&replaySynthetic, "synthetic", false, "Generate the built-in spike scenario")
	replayCmd.Flags().Uint64Var(&replaySeed, "seed", 0, "Random seed for --synthetic (0 picks one)")
	replayCmd.Flags().StringVar(&replayURL, "url", "http://127.0.0.1:5000", "Base URL of the ingest server")
	replayCmd.Flags().DurationVar(&replayInterval, "interval", 500*time.Millisecond, "Delay between events")
	replayCmd.Flags().DurationVar(&replayTimeout, "timeout", 5*time.Second, "Per-request timeout")
}
