package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. GATED_QPS.
const EnvPrefix = "GATED"

// Config holds the application configuration.
type Config struct {
	AllowAutomation bool   `mapstructure:"allow_automation"`
	BatchID         string `mapstructure:"batch_id"`
	Mode            string `mapstructure:"mode"`
	Listen          string `mapstructure:"listen"`

	QPS           float64       `mapstructure:"qps"`
	Concurrency   int           `mapstructure:"concurrency"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	Retries       int           `mapstructure:"retries"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	NavTimeout    time.Duration `mapstructure:"nav_timeout"`
	ProgressEvery int           `mapstructure:"progress_every"`
	FlushRetries  int           `mapstructure:"flush_retries"`
	FlushBackoff  time.Duration `mapstructure:"flush_backoff"`
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`
	DrainGrace    time.Duration `mapstructure:"drain_grace"`

	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Targets TargetsConfig `mapstructure:"targets"`
	Fetcher FetcherConfig `mapstructure:"fetcher"`
	Session SessionConfig `mapstructure:"session"`
	Extract ExtractConfig `mapstructure:"extract"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects where records (and, for sqlite/postgres/redis, targets) live.
type StoreConfig struct {
	Driver           string `mapstructure:"driver"` // sqlite, postgres, redis
	SQLitePath       string `mapstructure:"sqlite_path"`
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	PostgresMaxConns int32  `mapstructure:"postgres_max_conns"`
	RedisAddr        string `mapstructure:"redis_addr"`
	RedisPassword    string `mapstructure:"redis_password"`
	RedisDB          int    `mapstructure:"redis_db"`
}

type TargetsConfig struct {
	Source  string `mapstructure:"source"` // store, file
	File    string `mapstructure:"file"`
	BaseURL string `mapstructure:"base_url"`
}

type FetcherConfig struct {
	Driver   string `mapstructure:"driver"` // http, chromedp
	Headless bool   `mapstructure:"headless"`
}

type SessionConfig struct {
	File     string `mapstructure:"file"`
	Identity string `mapstructure:"identity"`
}

// ExtractConfig maps output field names to CSS selectors. A selector of the
// form "css@attr" reads an attribute instead of the text content.
type ExtractConfig struct {
	Kind    string            `mapstructure:"kind"`
	Version int               `mapstructure:"version"`
	Ready   string            `mapstructure:"ready"`
	Fields  map[string]string `mapstructure:"fields"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("allow_automation", false)
	v.SetDefault("batch_id", "")
	v.SetDefault("mode", "all")
	v.SetDefault("listen", "")

	v.SetDefault("qps", 0.7)
	v.SetDefault("concurrency", 3)
	v.SetDefault("max_workers", 8)
	v.SetDefault("batch_size", 100)
	v.SetDefault("retries", 3)
	v.SetDefault("base_delay", 800*time.Millisecond)
	v.SetDefault("backoff_factor", 1.8)
	v.SetDefault("nav_timeout", 25*time.Second)
	v.SetDefault("progress_every", 50)
	v.SetDefault("flush_retries", 3)
	v.SetDefault("flush_backoff", 200*time.Millisecond)
	v.SetDefault("flush_timeout", 30*time.Second)
	v.SetDefault("drain_grace", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "collector.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.postgres_max_conns", 4)
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)

	v.SetDefault("targets.source", "store")
	v.SetDefault("targets.file", "")
	v.SetDefault("targets.base_url", "")

	v.SetDefault("fetcher.driver", "http")
	v.SetDefault("fetcher.headless", true)

	v.SetDefault("session.file", "session.json")
	v.SetDefault("session.identity", "")

	v.SetDefault("extract.kind", "page")
	v.SetDefault("extract.version", 1)
	v.SetDefault("extract.ready", "body")
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"batch":            "batch_id",
	"mode":             "mode",
	"qps":              "qps",
	"concurrency":      "concurrency",
	"retries":          "retries",
	"batch-size":       "batch_size",
	"listen":           "listen",
	"log-level":        "log.level",
	"store":            "store.driver",
	"db":               "store.sqlite_path",
	"targets-file":     "targets.file",
	"base-url":         "targets.base_url",
	"fetcher":          "fetcher.driver",
	"session":          "session.file",
	"allow-automation": "allow_automation",
	"headless":         "fetcher.headless",
}

// Load reads configuration from defaults, an optional config file, GATED_*
// environment variables and flags, in increasing precedence. An empty path
// skips the file; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Legacy names for the sqlite file and the flush size.
	if err := v.BindEnv("store.sqlite_path", EnvPrefix+"_STORE_SQLITE_PATH", EnvPrefix+"_DB_PATH"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("batch_size", EnvPrefix+"_BATCH_SIZE", EnvPrefix+"_BATCH"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// A map default would be merged key by key into the file's map.
	if len(cfg.Extract.Fields) == 0 {
		cfg.Extract.Fields = map[string]string{"title": "title"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// secondsToDurationHook reads a bare number such as "0.8" as seconds.
// Strings with a unit are left to StringToTimeDurationHookFunc.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(f, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		secs, err := strconv.ParseFloat(strings.TrimSpace(data.(string)), 64)
		if err != nil {
			return data, nil
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.QPS <= 0 {
		errs = append(errs, fmt.Errorf("qps must be > 0, got %v", c.QPS))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency))
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("max_workers must be >= 1, got %d", c.MaxWorkers))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be >= 1, got %d", c.BatchSize))
	}
	if c.Retries < 1 {
		errs = append(errs, fmt.Errorf("retries must be >= 1, got %d", c.Retries))
	}
	if c.BackoffFactor < 1 {
		errs = append(errs, fmt.Errorf("backoff_factor must be >= 1, got %v", c.BackoffFactor))
	}
	if c.NavTimeout <= 0 {
		errs = append(errs, errors.New("nav_timeout must be positive"))
	}
	if c.FlushRetries < 1 {
		errs = append(errs, fmt.Errorf("flush_retries must be >= 1, got %d", c.FlushRetries))
	}
	switch c.Mode {
	case "all", "missing":
	default:
		errs = append(errs, fmt.Errorf("mode must be all or missing, got %q", c.Mode))
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for sqlite"))
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for postgres"))
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	switch c.Targets.Source {
	case "store":
	case "file":
		if c.Targets.File == "" {
			errs = append(errs, errors.New("targets.file is required when targets.source is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown targets.source %q", c.Targets.Source))
	}
	switch c.Fetcher.Driver {
	case "http", "chromedp":
	default:
		errs = append(errs, fmt.Errorf("unknown fetcher.driver %q", c.Fetcher.Driver))
	}
	if len(c.Extract.Fields) == 0 {
		errs = append(errs, errors.New("extract.fields must declare at least one field"))
	}
	return errors.Join(errs...)
}
