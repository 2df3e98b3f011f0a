package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"txn-anomaly-alerts/internal/app"
	"txn-anomaly-alerts/internal/config"
)

var (
	dashboardURL         string
	dashboardWindowHours int
	dashboardTimeout     time.Duration
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Print the hourly metrics and recent verdicts of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dashboardWindowHours < 0 || dashboardWindowHours > config.MaxWindowHours {
			return fmt.Errorf("--window-hours must be between 1 and %d", config.MaxWindowHours)
		}

		return getApp().Dashboard(cmd.Context(), app.DashboardOptions{
			BaseURL:     dashboardURL,
			WindowHours: dashboardWindowHours,
			Timeout:     dashboardTimeout,
		})
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardURL, "url", "http://127.0.0.1:5000", "Base URL of the running server")
	dashboardCmd.Flags().IntVar(&dashboardWindowHours, "window-hours", 0, "Hours of history to aggregate (defaults to config)")
	dashboardCmd.Flags().DurationVar(&dashboardTimeout, "timeout", 5*time.Second, "Request timeout")
}
