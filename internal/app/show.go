package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"txn-anomaly-alerts/internal/client"
	"txn-anomaly-alerts/internal/service"
)

// Show prints the most recent records with their recomputed verdicts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store, nil)
	if err != nil {
		return err
	}

	recent, err := svc.Recent(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		fmt.Fprintln(a.Out, "no transactions found")
		return nil
	}

	return writeRecent(a.Out, recent)
}

// Dashboard fetches the report of a running server and prints it.
func (a *App) Dashboard(ctx context.Context, opts DashboardOptions) error {
	if opts.WindowHours <= 0 {
		opts.WindowHours = a.Config.Report.WindowHours
	}

	c := client.New(client.Options{BaseURL: opts.BaseURL, Timeout: opts.Timeout, UserAgent: "txwatcher-dashboard"}, a.Logger)
	report, err := c.Dashboard(ctx, opts.WindowHours)
	if err != nil {
		return err
	}

	if len(report.MetricsByHourStatus) == 0 {
		fmt.Fprintf(a.Out, "no hourly metrics in the last %d hours\n", opts.WindowHours)
	} else if err := writeHourly(a.Out, report.MetricsByHourStatus); err != nil {
		return err
	}

	fmt.Fprintln(a.Out)
	if len(report.RecentTransactions) == 0 {
		fmt.Fprintln(a.Out, "no transactions found")
		return nil
	}
	return writeRecent(a.Out, report.RecentTransactions)
}

func writeRecent(out io.Writer, recent []service.RecentTransaction) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Timestamp\tStatus\tCount\tAlert\tSeverity")
	for _, tx := range recent {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\n",
			tx.Timestamp,
			tx.Status,
			tx.Count,
			strconv.FormatBool(tx.Alert),
			tx.Severity,
		)
	}

	return writer.Flush()
}

func writeHourly(out io.Writer, metrics []service.HourStatusMetric) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Hour\tStatus\tMean\tStd\tMax Normal\tPoints")
	for _, m := range metrics {
		fmt.Fprintf(writer, "%s\t%s\t%.2f\t%.2f\t%.2f\t%d\n",
			m.HourWindow,
			m.Status,
			m.MeanCount,
			m.StdCount,
			m.MaxNormalValue,
			m.NumPoints,
		)
	}

	return writer.Flush()
}
