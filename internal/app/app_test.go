package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txn-anomaly-alerts/internal/api"
	"txn-anomaly-alerts/internal/config"
	"txn-anomaly-alerts/internal/service"
	"txn-anomaly-alerts/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{Name: "txwatcher", Timezone: "UTC"},
		Database: config.DatabaseConfig{
			Driver:       config.DriverSQLite,
			Path:         filepath.Join(t.TempDir(), "tx.db"),
			MaxOpenConns: 1,
			QueryTimeout: 5 * time.Second,
		},
		Detection: config.DetectionConfig{
			StdMultiplier:    3,
			HistoryLimit:     7,
			MinHistoryPoints: 3,
			FallbackDays:     7,
			AlertStatuses:    []string{config.StatusFailed, config.StatusDenied, config.StatusReversed},
		},
		Report: config.ReportConfig{WindowHours: 24, RecentLimit: 50},
	}
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	a := NewApp(testConfig(t), zerolog.Nop())
	a.Out = out
	return a, out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func storedRecords(t *testing.T, cfg *config.Config) []storage.Record {
	t.Helper()
	store, err := storage.Open(context.Background(), cfg.Database)
	require.NoError(t, err)
	defer store.Close()

	recs, err := store.Recent(context.Background(), 100)
	require.NoError(t, err)
	return recs
}

const historyCSV = `timestamp,status,count
2025-07-22 20:00:00,denied,4
2025-07-22T20:01:00,denied,6
2025-07-22T20:02:00,lost,3
2025-07-22T20:03:00,failed,2
not-a-time,failed,2
2025-07-22T20:04:00,approved,-1
`

func TestImportSkipsInvalidRows(t *testing.T) {
	a, _ := newTestApp(t)
	path := writeFile(t, "history.csv", historyCSV)

	summary, err := a.Import(context.Background(), ImportOptions{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Inserted)
	assert.Equal(t, 3, summary.Skipped)

	recs := storedRecords(t, a.Config)
	require.Len(t, recs, 3)
	assert.Equal(t, "2025-07-22T20:03:00", storage.FormatTimestamp(recs[0].Timestamp))
	assert.Equal(t, config.StatusFailed, recs[0].Status)
}

func TestImportStrictAbortsOnBadRow(t *testing.T) {
	a, _ := newTestApp(t)
	path := writeFile(t, "history.csv", historyCSV)

	_, err := a.Import(context.Background(), ImportOptions{Path: path, Strict: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 4")
	assert.Empty(t, storedRecords(t, a.Config))
}

func TestImportDryRunWritesNothing(t *testing.T) {
	a, _ := newTestApp(t)
	path := writeFile(t, "history.csv", historyCSV)

	summary, err := a.Import(context.Background(), ImportOptions{Path: path, DryRun: true})
	require.NoError(t, err)
	assert.Zero(t, summary.Inserted)
	assert.Equal(t, 3, summary.Skipped)
	assert.NoFileExists(t, a.Config.Database.Path)
}

func TestReadRecordsCSVHeader(t *testing.T) {
	_, _, err := readRecordsCSV(strings.NewReader("time,status,count\n"), false, nil)
	assert.ErrorContains(t, err, `"timestamp"`)

	_, _, err = readRecordsCSV(strings.NewReader(""), false, nil)
	assert.Error(t, err)

	recs, skipped, err := readRecordsCSV(strings.NewReader("Count, Status, Timestamp\n7,reversed,2025-07-22T21:00:00\n"), true, nil)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(7), recs[0].Count)
	assert.Equal(t, config.StatusReversed, recs[0].Status)
}

func TestSyntheticScenario(t *testing.T) {
	recs := SyntheticScenario(42)
	require.Len(t, recs, 31)
	assert.Equal(t, recs, SyntheticScenario(42))

	assert.Equal(t, "2025-07-22T20:45:00", storage.FormatTimestamp(recs[0].Timestamp))
	for _, rec := range recs[:30] {
		if rec.Timestamp.Minute()%5 == 0 {
			assert.Equal(t, config.StatusApproved, rec.Status)
			assert.GreaterOrEqual(t, rec.Count, int64(100))
			assert.LessOrEqual(t, rec.Count, int64(150))
			continue
		}
		assert.Contains(t, noiseStatuses, rec.Status)
		assert.GreaterOrEqual(t, rec.Count, int64(1))
		assert.LessOrEqual(t, rec.Count, int64(5))
	}

	spike := recs[30]
	assert.Equal(t, "2025-07-22T21:06:00", storage.FormatTimestamp(spike.Timestamp))
	assert.Equal(t, config.StatusDenied, spike.Status)
	assert.Equal(t, int64(5000), spike.Count)
}

func TestReplaySyntheticAgainstServer(t *testing.T) {
	a, out := newTestApp(t)
	store := storage.NewMemoryStore()
	svc, err := service.New(a.Config, store, nil, zerolog.Nop())
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(svc, 24, 1<<20, zerolog.Nop()), zerolog.Nop()))
	defer srv.Close()

	summary, err := a.Replay(context.Background(), ReplayOptions{Synthetic: true, Seed: 7, BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 31, summary.Sent)
	assert.Zero(t, summary.Failed)

	recs, err := store.Recent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, recs, 31)
	assert.Contains(t, out.String(), "2025-07-22T21:06:00 denied")
}

func TestReplayCountsRejectedEvents(t *testing.T) {
	a, out := newTestApp(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Database error","status":"Internal Server Error"}`))
	}))
	defer srv.Close()

	path := writeFile(t, "replay.csv", "timestamp,status,count\n2025-07-22T21:00:00,failed,3\n2025-07-22T21:01:00,denied,4\n")
	summary, err := a.Replay(context.Background(), ReplayOptions{Path: path, BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Zero(t, summary.Sent)
	assert.Equal(t, 2, summary.Failed)
	assert.Contains(t, out.String(), "error:")
}

func TestReplayRequiresSource(t *testing.T) {
	a, _ := newTestApp(t)

	_, err := a.Replay(context.Background(), ReplayOptions{})
	assert.Error(t, err)

	_, err = a.Replay(context.Background(), ReplayOptions{Synthetic: true, Path: "x.csv"})
	assert.Error(t, err)
}

func TestReplayStopsOnCancel(t *testing.T) {
	a, _ := newTestApp(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"alert":false,"status":"approved","severity":"unknown","expected_range":null,"message":"Transaction within normal range"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	summary, err := a.Replay(ctx, ReplayOptions{Synthetic: true, Seed: 1, BaseURL: srv.URL, Interval: time.Hour})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, summary.Sent)
}

func seedRecent(t *testing.T, cfg *config.Config) time.Time {
	t.Helper()
	store, err := storage.Open(context.Background(), cfg.Database)
	require.NoError(t, err)
	defer store.Close()

	now := storage.Naive(time.Now().UTC())
	for i, count := range []int64{10, 25, 40} {
		rec := storage.Record{Timestamp: now.Add(-time.Duration(3-i) * time.Hour), Status: config.StatusFailed, Count: count}
		require.NoError(t, store.Insert(context.Background(), rec))
	}
	return now
}

func TestExportCSVAndPNG(t *testing.T) {
	a, _ := newTestApp(t)
	seedRecent(t, a.Config)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "metrics.csv")
	pngPath := filepath.Join(dir, "out", "metrics.png")
	require.NoError(t, a.Export(context.Background(), ExportOptions{CSVPath: csvPath, PNGPath: pngPath}))

	file, err := os.Open(csvPath)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"hour_window", "status", "mean_count", "std_count", "max_normal_value", "num_points"}, rows[0])
	assert.Equal(t, "failed", rows[1][1])
	assert.Equal(t, "10.00", rows[1][2])
	assert.Equal(t, "1", rows[1][5])

	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestExportRequiresTarget(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func TestShowPrintsTable(t *testing.T) {
	a, out := newTestApp(t)
	seedRecent(t, a.Config)

	require.NoError(t, a.Show(context.Background(), ShowOptions{Limit: 2}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Severity")
	assert.Contains(t, lines[1], "40")
	assert.Contains(t, lines[1], "failed")
}

func TestShowEmptyStore(t *testing.T) {
	a, out := newTestApp(t)
	require.NoError(t, a.Show(context.Background(), ShowOptions{Limit: 5}))
	assert.Contains(t, out.String(), "no transactions found")
}

func TestDownsample(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.Equal(t, []int{0, 3, 6, 9}, downsample(items, 4))
	assert.Equal(t, items, downsample(items, 0))
	assert.Equal(t, items, downsample(items, 20))
}

func TestSimulateAlertRequiresChannels(t *testing.T) {
	a, _ := newTestApp(t)
	err := a.SimulateAlert(context.Background(), SimulateOptions{Status: config.StatusDenied, Count: 5000})
	assert.ErrorContains(t, err, "disabled")

	a.Config.Alerting.Enabled = true
	err = a.SimulateAlert(context.Background(), SimulateOptions{Status: config.StatusDenied, Count: 5000})
	assert.ErrorContains(t, err, "no alert channel")

	err = a.SimulateAlert(context.Background(), SimulateOptions{Status: "lost", Count: 1})
	assert.ErrorContains(t, err, "unsupported status")
}

func TestSimulateAlertDeliversToTelegram(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		body = buf.String()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	a, _ := newTestApp(t)
	a.Config.Alerting = config.AlertingConfig{
		Enabled:       true,
		QueueSize:     1,
		Workers:       1,
		NotifyTimeout: 2 * time.Second,
		Telegram:      config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "42", APIBase: srv.URL},
	}

	require.NoError(t, a.SimulateAlert(context.Background(), SimulateOptions{Status: config.StatusDenied, Count: 5000}))
	assert.Contains(t, body, "DENIED")
	assert.Contains(t, body, "5000")
}

func TestDashboardPrintsServerReport(t *testing.T) {
	a, out := newTestApp(t)
	store := storage.NewMemoryStore()
	svc, err := service.New(a.Config, store, nil, zerolog.Nop())
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(svc, 24, 1<<20, zerolog.Nop()), zerolog.Nop()))
	defer srv.Close()

	now := storage.Naive(time.Now().UTC())
	require.NoError(t, store.Insert(context.Background(), storage.Record{Timestamp: now.Add(-time.Minute), Status: config.StatusReversed, Count: 12}))

	require.NoError(t, a.Dashboard(context.Background(), DashboardOptions{BaseURL: srv.URL, WindowHours: 6}))
	text := out.String()
	assert.Contains(t, text, "Max Normal")
	assert.Contains(t, text, "reversed")
	assert.Contains(t, text, "12.00")
	assert.Contains(t, text, "Severity")
}

func TestDashboardSurfacesServerError(t *testing.T) {
	a, _ := newTestApp(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"window_hours must be between 1 and 2160","status":"Bad Request"}`))
	}))
	defer srv.Close()

	err := a.Dashboard(context.Background(), DashboardOptions{BaseURL: srv.URL, WindowHours: 3})
	assert.ErrorContains(t, err, "window_hours must be between 1 and 2160")
}
