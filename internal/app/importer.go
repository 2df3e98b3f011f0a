package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"txn-anomaly-alerts/internal/config"
	"txn-anomaly-alerts/internal/service"
	"txn-anomaly-alerts/internal/storage"
)

// ImportSummary reports the outcome of a CSV bootstrap.
type ImportSummary struct {
	Inserted int
	Skipped  int
}

var importColumns = []string{"timestamp", "status", "count"}

// Import loads historical records from a timestamp,status,count CSV file
// straight into the store. Rows are not assessed.
func (a *App) Import(ctx context.Context, opts ImportOptions) (ImportSummary, error) {
	if opts.Path == "" {
		return ImportSummary{}, errors.New("--file is required")
	}

	file, err := os.Open(opts.Path)
	if err != nil {
		return ImportSummary{}, err
	}
	defer file.Close()

	records, skipped, err := readRecordsCSV(file, opts.Strict, func(line int, err error) {
		a.Logger.Warn().Err(err).Int("line", line).Msg("skipping invalid row")
	})
	if err != nil {
		return ImportSummary{}, err
	}

	summary := ImportSummary{Skipped: skipped}
	if opts.DryRun {
		a.Logger.Info().Int("valid", len(records)).Int("skipped", skipped).Msg("dry run; nothing written")
		return summary, nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return summary, err
	}
	defer closeStore()

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := store.Insert(ctx, rec); err != nil {
			return summary, fmt.Errorf("insert %s %s: %w", storage.FormatTimestamp(rec.Timestamp), rec.Status, err)
		}
		summary.Inserted++
	}

	a.Logger.Info().
		Str("file", opts.Path).
		Int("inserted", summary.Inserted).
		Int("skipped", summary.Skipped).
		Msg("import completed")
	return summary, nil
}

// readRecordsCSV parses a CSV with a timestamp,status,count header.
// Invalid rows are reported to onSkip, or abort the read when strict.
func readRecordsCSV(r io.Reader, strict bool, onSkip func(line int, err error)) ([]storage.Record, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, errors.New("csv file is empty")
		}
		return nil, 0, err
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, 0, err
	}

	var (
		records []storage.Record
		skipped int
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, err
		}
		line, _ := reader.FieldPos(0)

		rec, err := parseRow(row, index)
		if err != nil {
			if strict {
				return nil, skipped, fmt.Errorf("line %d: %w", line, err)
			}
			skipped++
			if onSkip != nil {
				onSkip(line, err)
			}
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range importColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("csv header missing %q column", col)
		}
	}
	return index, nil
}

func parseRow(row []string, index map[string]int) (storage.Record, error) {
	field := func(name string) string {
		i := index[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	ts, err := service.ParseTimestamp(field("timestamp"))
	if err != nil {
		return storage.Record{}, err
	}
	status := field("status")
	if !config.IsKnownStatus(status) {
		return storage.Record{}, fmt.Errorf("unsupported status %q", status)
	}
	count, err := service.ParseCount(field("count"))
	if err != nil {
		return storage.Record{}, err
	}
	return storage.Record{Timestamp: ts, Status: status, Count: count}, nil
}
