package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"txn-anomaly-alerts/internal/app"
	"txn-anomaly-alerts/internal/config"
)

var (
	exportWindowHours int
	exportPNGPath     string
	exportCSVPath     string
	exportMaxPoints   int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export hourly metrics as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportWindowHours < 0 || exportWindowHours > config.MaxWindowHours {
			return fmt.Errorf("--window-hours must be between 1 and %d", config.MaxWindowHours)
		}

		opts := app.ExportOptions{
			WindowHours: exportWindowHours,
			PNGPath:     exportPNGPath,
			CSVPath:     exportCSVPath,
			MaxPoints:   exportMaxPoints,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportWindowHours, "window-hours", 0, "Hours of history to aggregate (defaults to config)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 500, "Maximum points per chart series")
}
