package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"txn-anomaly-alerts/internal/service"
	"txn-anomaly-alerts/internal/storage"
)

// Export renders hourly metrics as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.WindowHours <= 0 {
		opts.WindowHours = a.Config.Report.WindowHours
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store, nil)
	if err != nil {
		return err
	}

	metrics, err := svc.HourlyMetrics(ctx, opts.WindowHours)
	if err != nil {
		return err
	}
	if len(metrics) == 0 {
		a.Logger.Info().Int("window_hours", opts.WindowHours).Msg("no records found for export window")
		return nil
	}
	a.Logger.Info().Int("groups", len(metrics)).Msg("exporting hourly metrics")

	if opts.CSVPath != "" {
		if err := writeMetricsCSV(opts.CSVPath, metrics); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeMetricsPNG(opts.PNGPath, metrics, opts.MaxPoints); err != nil {
			return err
		}
	}

	return nil
}

func downsample[T any](items []T, max int) []T {
	if max <= 1 || len(items) <= max {
		return items
	}

	result := make([]T, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(items) {
			idx = len(items) - 1
		}
		result = append(result, items[idx])
	}
	return result
}

func writeMetricsCSV(path string, metrics []service.HourStatusMetric) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"hour_window", "status", "mean_count", "std_count", "max_normal_value", "num_points"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, m := range metrics {
		record := []string{
			m.HourWindow,
			m.Status,
			strconv.FormatFloat(m.MeanCount, 'f', 2, 64),
			strconv.FormatFloat(m.StdCount, 'f', 2, 64),
			strconv.FormatFloat(m.MaxNormalValue, 'f', 2, 64),
			strconv.Itoa(m.NumPoints),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

type statusSeries struct {
	x         []time.Time
	mean      []float64
	threshold []float64
}

func writeMetricsPNG(path string, metrics []service.HourStatusMetric, maxPoints int) error {
	byStatus := make(map[string]*statusSeries)
	for _, m := range metrics {
		hour, err := time.Parse(storage.TimestampLayout, m.HourWindow)
		if err != nil {
			return err
		}
		s, ok := byStatus[m.Status]
		if !ok {
			s = &statusSeries{}
			byStatus[m.Status] = s
		}
		s.x = append(s.x, hour)
		s.mean = append(s.mean, m.MeanCount)
		s.threshold = append(s.threshold, m.MaxNormalValue)
	}

	statuses := make([]string, 0, len(byStatus))
	for status, s := range byStatus {
		// a line needs two points
		if len(s.x) >= 2 {
			statuses = append(statuses, status)
		}
	}
	if len(statuses) == 0 {
		return errors.New("not enough hourly buckets to render a chart")
	}
	sort.Strings(statuses)

	var series []chart.Series
	for _, status := range statuses {
		s := byStatus[status]
		series = append(series,
			chart.TimeSeries{
				Name:    status + " mean",
				XValues: downsample(s.x, maxPoints),
				YValues: downsample(s.mean, maxPoints),
			},
			chart.TimeSeries{
				Name:    status + " threshold",
				Style:   chart.Style{StrokeDashArray: []float64{5.0, 5.0}},
				XValues: downsample(s.x, maxPoints),
				YValues: downsample(s.threshold, maxPoints),
			},
		)
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Transactions per minute",
			ValueFormatter: countFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
