package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"txn-anomaly-alerts/internal/app"
)

var (
	importFile   string
	importDryRun bool
	importStrict bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load historical counts from a timestamp,status,count CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ImportOptions{
			Path:   importFile,
			DryRun: importDryRun,
			Strict: importStrict,
		}

		summary, err := getApp().Import(cmd.Context(), opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "inserted: %d\nskipped: %d\n", summary.Inserted, summary.Skipped)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "CSV file to import")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate rows without writing to storage")
	importCmd.Flags().BoolVar(&importStrict, "strict", false, "Abort on the first invalid row")
}
