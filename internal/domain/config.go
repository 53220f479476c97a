package domain

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config holds the complete quotawatch configuration. It is built once at
// startup and passed to every component.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Audit    AuditConfig    `yaml:"audit"`
	Store    StoreConfig    `yaml:"store"`
	Cache    CacheConfig    `yaml:"cache"`
	EventBus EventBusConfig `yaml:"event_bus"`
	Server   ServerConfig   `yaml:"server"`
	Publish  PublishConfig  `yaml:"publish"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// PathsConfig locates the downloader's output, the flagged stores and
// the report artifacts.
type PathsConfig struct {
	DataDir    string `yaml:"data_dir"`
	ReportsDir string `yaml:"reports_dir"`
}

// RawDir is where the downloader writes entity lists and expense files.
func (p PathsConfig) RawDir() string {
	return filepath.Join(p.DataDir, "raw")
}

// ProcessedDir is the root of the csv flagged store and run history.
func (p PathsConfig) ProcessedDir() string {
	return filepath.Join(p.DataDir, "processed")
}

// AuditConfig holds detector and scoring settings.
type AuditConfig struct {
	HistoryMonths     int            `yaml:"history_months"`
	CriticalThreshold int            `yaml:"critical_threshold"`
	Weights           map[string]int `yaml:"weights"`

	// Workers bounds how many detectors classify an entity concurrently.
	Workers int `yaml:"workers"`
}

// FlagWeights validates and converts the configured weight map.
func (a AuditConfig) FlagWeights() (Weights, error) {
	return WeightsFromMap(a.Weights)
}

// StoreConfig selects the flagged-record store.
type StoreConfig struct {
	// Driver is "csv", "sqlite" or "postgres".
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     int    `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

// PublishConfig enables mirroring report artifacts to a GCS bucket.
type PublishConfig struct {
	GCSBucket string `yaml:"gcs_bucket"`
	GCSPrefix string `yaml:"gcs_prefix"`

	// GCSCredentialsFile is a service account JSON key. Empty means
	// application default credentials.
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`   // truncated each run; empty disables
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// DefaultConfig returns the configuration used when no file or
// environment override is present.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:    "./data",
			ReportsDir: "./reports",
		},
		Audit: AuditConfig{
			HistoryMonths:     12,
			CriticalThreshold: 5,
			Weights:           DefaultWeightMap(),
			Workers:           1,
		},
		Store: StoreConfig{
			Driver:     "csv",
			SQLitePath: "./data/processed/quotawatch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   "pipeline.log",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "quotawatch",
		},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Audit.FlagWeights(); err != nil {
		return err
	}
	if c.Audit.CriticalThreshold < 0 {
		return fmt.Errorf("%w: critical_threshold must not be negative, got %d", ErrInvalidConfiguration, c.Audit.CriticalThreshold)
	}
	if c.Audit.HistoryMonths < 1 {
		return fmt.Errorf("%w: history_months must be at least 1, got %d", ErrInvalidConfiguration, c.Audit.HistoryMonths)
	}
	if c.Paths.DataDir == "" || c.Paths.ReportsDir == "" {
		return fmt.Errorf("%w: data_dir and reports_dir are required", ErrInvalidConfiguration)
	}
	switch c.Store.Driver {
	case "csv", "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unsupported store driver %q", ErrInvalidConfiguration, c.Store.Driver)
	}
	return nil
}
