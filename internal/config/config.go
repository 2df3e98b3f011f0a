package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"txn-anomaly-alerts/internal/logging"
)

// Transaction statuses accepted by the ingest boundary.
const (
	StatusApproved = "approved"
	StatusFailed   = "failed"
	StatusDenied   = "denied"
	StatusReversed = "reversed"
)

// KnownStatuses lists every status a record may carry.
var KnownStatuses = []string{StatusApproved, StatusFailed, StatusDenied, StatusReversed}

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
	DriverMemory   = "memory"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Detection DetectionConfig `mapstructure:"detection"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Report    ReportConfig    `mapstructure:"report"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// DatabaseConfig selects and tunes the event store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	MaxMemoryMB     int64         `mapstructure:"max_memory_mb"`
}

// DetectionConfig holds the anomaly baseline parameters.
type DetectionConfig struct {
	StdMultiplier    float64  `mapstructure:"std_multiplier"`
	HistoryLimit     int      `mapstructure:"history_limit"`
	MinHistoryPoints int      `mapstructure:"min_history_points"`
	FallbackDays     int      `mapstructure:"fallback_days"`
	AlertStatuses    []string `mapstructure:"alert_statuses"`
}

// HTTPConfig configures the ingest/report listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	QueueSize     int            `mapstructure:"queue_size"`
	Workers       int            `mapstructure:"workers"`
	NotifyTimeout time.Duration  `mapstructure:"notify_timeout"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
	Email         EmailConfig    `mapstructure:"email"`
}

// TelegramConfig describes the Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// EmailConfig describes the SMTP channel.
type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// ReportConfig tunes the dashboard aggregation.
type ReportConfig struct {
	WindowHours     int           `mapstructure:"window_hours"`
	RecentLimit     int           `mapstructure:"recent_limit"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// MaxWindowHours bounds report windows.
const MaxWindowHours = 24 * 90

// legacyEnv maps config keys to the bare environment names the service has always honoured.
var legacyEnv = map[string]string{
	"detection.std_multiplier":     "STD_MULTIPLIER",
	"detection.history_limit":      "HISTORY_LIMIT",
	"detection.min_history_points": "MIN_HISTORY_POINTS",
	"detection.fallback_days":      "FALLBACK_DAYS",
	"alerting.telegram.bot_token":  "TELEGRAM_BOT_TOKEN",
	"alerting.telegram.chat_id":    "TELEGRAM_CHAT_ID",
}

const envPrefix = "TXWATCHER"

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "txwatcher")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Local")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.pretty", false)
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.compress", false)
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age_days", 28)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.path", "data/transactions.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.query_timeout", "5s")
	v.SetDefault("database.advisory_lock_key", int64(0x74787761))
	v.SetDefault("database.max_memory_mb", 48)

	v.SetDefault("detection.std_multiplier", 3.0)
	v.SetDefault("detection.history_limit", 7)
	v.SetDefault("detection.min_history_points", 3)
	v.SetDefault("detection.fallback_days", 7)
	v.SetDefault("detection.alert_statuses", []string{StatusFailed, StatusDenied, StatusReversed})

	v.SetDefault("http.addr", ":5000")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.max_body_bytes", int64(1<<20))
	v.SetDefault("http.cors_origins", []string{})

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.queue_size", 256)
	v.SetDefault("alerting.workers", 2)
	v.SetDefault("alerting.notify_timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.email.enabled", false)
	v.SetDefault("alerting.email.smtp_host", "")
	v.SetDefault("alerting.email.smtp_port", 587)
	v.SetDefault("alerting.email.username", "")
	v.SetDefault("alerting.email.password", "")
	v.SetDefault("alerting.email.from", "")
	v.SetDefault("alerting.email.to", []string{})

	v.SetDefault("report.window_hours", 24)
	v.SetDefault("report.recent_limit", 50)
	v.SetDefault("report.refresh_interval", "1m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverBadger:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for driver %q", c.Database.Driver)
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("database.query_timeout must be greater than zero")
	}

	if err := c.Detection.Validate(); err != nil {
		return err
	}

	if c.Alerting.QueueSize <= 0 {
		return fmt.Errorf("alerting.queue_size must be greater than zero")
	}
	if c.Alerting.Workers <= 0 {
		return fmt.Errorf("alerting.workers must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.SMTPHost == "" || c.Alerting.Email.From == "" || len(c.Alerting.Email.To) == 0 {
			return fmt.Errorf("alerting.email requires smtp_host, from and at least one recipient")
		}
	}

	if c.Report.WindowHours <= 0 || c.Report.WindowHours > MaxWindowHours {
		return fmt.Errorf("report.window_hours must be within 1..%d", MaxWindowHours)
	}
	if c.Report.RecentLimit <= 0 {
		return fmt.Errorf("report.recent_limit must be greater than zero")
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Validate checks detection parameters.
func (d DetectionConfig) Validate() error {
	if d.StdMultiplier < 0 {
		return fmt.Errorf("detection.std_multiplier cannot be negative")
	}
	if d.HistoryLimit <= 0 {
		return fmt.Errorf("detection.history_limit must be greater than zero")
	}
	if d.MinHistoryPoints <= 0 {
		return fmt.Errorf("detection.min_history_points must be greater than zero")
	}
	if d.MinHistoryPoints > d.HistoryLimit {
		return fmt.Errorf("detection.min_history_points (%d) cannot exceed detection.history_limit (%d)", d.MinHistoryPoints, d.HistoryLimit)
	}
	if d.FallbackDays <= 0 {
		return fmt.Errorf("detection.fallback_days must be greater than zero")
	}
	for _, status := range d.AlertStatuses {
		if status == StatusApproved {
			return fmt.Errorf("detection.alert_statuses must not include %q", StatusApproved)
		}
		if !IsKnownStatus(status) {
			return fmt.Errorf("detection.alert_statuses contains unknown status %q", status)
		}
	}
	return nil
}

// Location resolves app.timezone; naive timestamps are interpreted in it.
func (c *Config) Location() (*time.Location, error) {
	name := c.App.Timezone
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("app.timezone: %w", err)
	}
	return loc, nil
}

// IsKnownStatus reports whether status belongs to the fixed status set.
func IsKnownStatus(status string) bool {
	return slices.Contains(KnownStatuses, status)
}
