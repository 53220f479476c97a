// Package config assembles domain.Config from defaults, an optional YAML
// file, a .env file and QUOTAWATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "quotawatch.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "QUOTAWATCH_"

// Load builds the configuration. An explicit path must exist; an empty
// path falls back to DefaultPath when present.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	file := path
	if file == "" {
		file = DefaultPath
	}
	if err := loadFile(cfg, file); err != nil {
		if path != "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays the YAML file on cfg. A weights map in the file
// replaces the default map as a whole.
func loadFile(cfg *domain.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	defaults := cfg.Audit.Weights
	cfg.Audit.Weights = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", domain.ErrInvalidConfiguration, path, err)
	}
	if cfg.Audit.Weights == nil {
		cfg.Audit.Weights = defaults
	}
	return nil
}

// Save writes cfg as YAML.
func Save(path string, cfg *domain.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func applyEnv(cfg *domain.Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s%s: %q is not an integer", domain.ErrInvalidConfiguration, EnvPrefix, key, v))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s%s: %q is not a boolean", domain.ErrInvalidConfiguration, EnvPrefix, key, v))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s%s: %q is not a duration", domain.ErrInvalidConfiguration, EnvPrefix, key, v))
				return
			}
			*dst = d
		}
	}

	// Paths
	str("DATA_DIR", &cfg.Paths.DataDir)
	str("REPORTS_DIR", &cfg.Paths.ReportsDir)

	// Audit
	num("HISTORY_MONTHS", &cfg.Audit.HistoryMonths)
	num("CRITICAL_THRESHOLD", &cfg.Audit.CriticalThreshold)
	num("WORKERS", &cfg.Audit.Workers)

	// Store
	str("STORE_DRIVER", &cfg.Store.Driver)
	str("SQLITE_PATH", &cfg.Store.SQLitePath)
	str("POSTGRES_HOST", &cfg.Store.PostgresHost)
	num("POSTGRES_PORT", &cfg.Store.PostgresPort)
	str("POSTGRES_USER", &cfg.Store.PostgresUser)
	str("POSTGRES_PASSWORD", &cfg.Store.PostgresPassword)
	str("POSTGRES_DB", &cfg.Store.PostgresDB)
	str("POSTGRES_SSLMODE", &cfg.Store.PostgresSSLMode)

	// Cache
	str("CACHE_TYPE", &cfg.Cache.Type)
	num("CACHE_MAX_SIZE", &cfg.Cache.LocalMaxSize)
	dur("CACHE_TTL", &cfg.Cache.LocalTTL)
	str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	num("REDIS_DB", &cfg.Cache.RedisDB)
	flag("CACHE_TWO_PHASE", &cfg.Cache.EnableTwoPhase)

	// Event bus
	str("EVENT_BUS", &cfg.EventBus.Type)
	str("NATS_URL", &cfg.EventBus.NATSUrl)
	str("NATS_TOKEN", &cfg.EventBus.NATSToken)

	// Server
	str("HOST", &cfg.Server.Host)
	num("PORT", &cfg.Server.Port)

	// Publishing
	str("GCS_BUCKET", &cfg.Publish.GCSBucket)
	str("GCS_PREFIX", &cfg.Publish.GCSPrefix)
	str("GCS_CREDENTIALS_FILE", &cfg.Publish.GCSCredentialsFile)

	// Observability
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	str("LOG_FILE", &cfg.Logging.File)
	flag("TRACING_ENABLED", &cfg.Tracing.Enabled)

	return errors.Join(errs...)
}

// lookup reports a set variable. Set-but-empty counts as set so that
// QUOTAWATCH_LOG_FILE= can disable the log file.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	return strings.TrimSpace(v), ok
}
