package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"txn-anomaly-alerts/internal/app"
)

var (
	simulateStatus string
	simulateCount  int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a test anomaly notification through every enabled channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateCount < 0 {
			return errors.New("--count must not be negative")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Status: simulateStatus,
			Count:  simulateCount,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateStatus, "status", "denied", "Transaction status to report")
	simulateCmd.Flags().Int64Var(&simulateCount, "count", 5000, "Observed count to report")
}
