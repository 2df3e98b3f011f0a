package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, DriverSQLite, cfg.Database.Driver)
	require.Equal(t, 3.0, cfg.Detection.StdMultiplier)
	require.Equal(t, 7, cfg.Detection.HistoryLimit)
	require.Equal(t, 3, cfg.Detection.MinHistoryPoints)
	require.Equal(t, 7, cfg.Detection.FallbackDays)
	require.ElementsMatch(t, []string{StatusFailed, StatusDenied, StatusReversed}, cfg.Detection.AlertStatuses)
	require.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	require.Equal(t, 24, cfg.Report.WindowHours)
	require.Equal(t, 50, cfg.Report.RecentLimit)
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("STD_MULTIPLIER", "2.5")
	t.Setenv("HISTORY_LIMIT", "10")
	t.Setenv("MIN_HISTORY_POINTS", "4")
	t.Setenv("FALLBACK_DAYS", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 2.5, cfg.Detection.StdMultiplier)
	require.Equal(t, 10, cfg.Detection.HistoryLimit)
	require.Equal(t, 4, cfg.Detection.MinHistoryPoints)
	require.Equal(t, 3, cfg.Detection.FallbackDays)
}

func TestLoadPrefixedEnvironmentAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
database:
  driver: memory
detection:
  alert_statuses: [denied]
report:
  recent_limit: 20
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("TXWATCHER_DETECTION_HISTORY_LIMIT", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.Database.Driver)
	require.Equal(t, []string{StatusDenied}, cfg.Detection.AlertStatuses)
	require.Equal(t, 20, cfg.Report.RecentLimit)
	require.Equal(t, 9, cfg.Detection.HistoryLimit)
}

func TestLoadEnvironmentOnlyKeys(t *testing.T) {
	t.Setenv("TXWATCHER_DATABASE_DRIVER", DriverPostgres)
	t.Setenv("TXWATCHER_DATABASE_DSN", "postgres://txwatcher@localhost:5432/txwatcher")
	t.Setenv("TXWATCHER_ALERTING_EMAIL_ENABLED", "true")
	t.Setenv("TXWATCHER_ALERTING_EMAIL_SMTP_HOST", "smtp.example.com")
	t.Setenv("TXWATCHER_ALERTING_EMAIL_USERNAME", "alerts")
	t.Setenv("TXWATCHER_ALERTING_EMAIL_PASSWORD", "secret")
	t.Setenv("TXWATCHER_ALERTING_EMAIL_FROM", "alerts@example.com")
	t.Setenv("TXWATCHER_ALERTING_EMAIL_TO", "ops@example.com,oncall@example.com")
	t.Setenv("TXWATCHER_LOGGING_FILE_PATH", "logs/txwatcher.log")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres://txwatcher@localhost:5432/txwatcher", cfg.Database.DSN)
	require.True(t, cfg.Alerting.Email.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Alerting.Email.SMTPHost)
	require.Equal(t, "alerts", cfg.Alerting.Email.Username)
	require.Equal(t, "secret", cfg.Alerting.Email.Password)
	require.Equal(t, "alerts@example.com", cfg.Alerting.Email.From)
	require.Equal(t, []string{"ops@example.com", "oncall@example.com"}, cfg.Alerting.Email.To)
	require.Equal(t, "logs/txwatcher.log", cfg.Logging.File.Path)
}

func TestDetectionValidate(t *testing.T) {
	base := DetectionConfig{StdMultiplier: 3, HistoryLimit: 7, MinHistoryPoints: 3, FallbackDays: 7}

	cases := map[string]func(d *DetectionConfig){
		"approved is never alert eligible": func(d *DetectionConfig) { d.AlertStatuses = []string{StatusApproved} },
		"unknown status":                   func(d *DetectionConfig) { d.AlertStatuses = []string{"chargeback"} },
		"min above limit":                  func(d *DetectionConfig) { d.MinHistoryPoints = 8 },
		"zero limit":                       func(d *DetectionConfig) { d.HistoryLimit = 0 },
		"negative multiplier":              func(d *DetectionConfig) { d.StdMultiplier = -1 },
		"zero fallback days":               func(d *DetectionConfig) { d.FallbackDays = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := base
			mutate(&d)
			require.Error(t, d.Validate())
		})
	}

	require.NoError(t, base.Validate())
}

func TestValidateDriverRequirements(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Database.Driver = DriverPostgres
	cfg.Database.DSN = ""
	require.Error(t, cfg.Validate())

	cfg.Database.Driver = "oracle"
	require.Error(t, cfg.Validate())

	cfg.Database.Driver = DriverMemory
	require.NoError(t, cfg.Validate())
}

func TestLocation(t *testing.T) {
	cfg := &Config{App: AppConfig{Timezone: "America/Sao_Paulo"}}
	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "America/Sao_Paulo", loc.String())

	cfg.App.Timezone = "Nowhere/Special"
	_, err = cfg.Location()
	require.Error(t, err)
}
