// Package config loads and validates mirror configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/novelmirror/internal/adapters/selector"
	"github.com/JakeFAU/novelmirror/internal/fetch"
	"github.com/JakeFAU/novelmirror/internal/logging"
	"github.com/JakeFAU/novelmirror/internal/ratelimit"
	"github.com/JakeFAU/novelmirror/internal/source"
	"github.com/JakeFAU/novelmirror/internal/syncer"
	"github.com/JakeFAU/novelmirror/internal/telemetry"
)

// SearchPaths are tried for novelmirror.{yaml,toml,json} when Load gets no
// explicit path.
var SearchPaths = []string{".", "$HOME/.novelmirror", "/etc/novelmirror"}

// EnvPrefix namespaces environment overrides (NOVELMIRROR_STORAGE_DSN).
const EnvPrefix = "NOVELMIRROR"

// Storage drivers.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Archive and notify drivers.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverLocal  = "local"
	DriverGCS    = "gcs"
	DriverPubSub = "pubsub"
)

// Fetcher kinds a site can use.
const (
	FetcherColly    = "colly"
	FetcherResty    = "resty"
	FetcherHeadless = "headless"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging logging.Config   `mapstructure:"logging"`
	Storage StorageConfig    `mapstructure:"storage"`
	Archive ArchiveConfig    `mapstructure:"archive"`
	Notify  NotifyConfig     `mapstructure:"notify"`
	Metrics MetricsConfig    `mapstructure:"metrics"`
	Tracing telemetry.Config `mapstructure:"tracing"`
	Sync    SyncConfig       `mapstructure:"sync"`
	HTTP    HTTPConfig       `mapstructure:"http"`
	Limits  ratelimit.Config `mapstructure:"limits"`
	Sites   []SiteConfig     `mapstructure:"sites"`
}

// StorageConfig selects the mirror store.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ArchiveConfig selects where raw chapter bodies are kept.
type ArchiveConfig struct {
	Driver  string `mapstructure:"driver"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// NotifyConfig selects where update events go.
type NotifyConfig struct {
	Driver    string `mapstructure:"driver"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SyncConfig tunes the engine and the catch-up dispatcher.
type SyncConfig struct {
	AutoBookSplit int `mapstructure:"auto_book_split"`
	Concurrency   int `mapstructure:"concurrency"`
}

// HTTPConfig holds fetch defaults shared by every site.
type HTTPConfig struct {
	UserAgent         string                `mapstructure:"user_agent"`
	Timeout           time.Duration         `mapstructure:"timeout"`
	NavigationTimeout time.Duration         `mapstructure:"navigation_timeout"`
	RespectRobots     bool                  `mapstructure:"respect_robots"`
	Retry             ratelimit.RetryPolicy `mapstructure:",squash"`
}

// SiteConfig binds a root domain to a fetcher and extraction rules.
type SiteConfig struct {
	Domain       string            `mapstructure:"domain"`
	Fetcher      string            `mapstructure:"fetcher"`
	UserAgent    string            `mapstructure:"user_agent"`
	Headers      map[string]string `mapstructure:"headers"`
	WaitSelector string            `mapstructure:"wait_selector"`
	// Limits overrides the top-level limits for this host.
	Limits *ratelimit.Config `mapstructure:"limits"`
	Rules  selector.Rules    `mapstructure:",squash"`
}

// EffectiveLimits returns the site override or defaults.
func (s SiteConfig) EffectiveLimits(defaults ratelimit.Config) ratelimit.Config {
	if s.Limits != nil {
		return *s.Limits
	}
	return defaults
}

// Load builds a Config from defaults, the config file and NOVELMIRROR_*
// environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("novelmirror")
		for _, dir := range SearchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("storage.driver", StorageSQLite)
	v.SetDefault("storage.dsn", "novelmirror.db")
	v.SetDefault("storage.max_conns", 4)
	v.SetDefault("storage.max_conn_lifetime", time.Hour)
	v.SetDefault("archive.driver", DriverNone)
	v.SetDefault("archive.base_dir", "archive")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("notify.driver", DriverNone)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "series-updates")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.service_name", "novelmirror")
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("sync.auto_book_split", syncer.AutoBookSplit)
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("http.user_agent", fetch.DefaultUserAgent)
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.navigation_timeout", 45*time.Second)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.max_attempts", ratelimit.DefaultMaxAttempts)
	v.SetDefault("http.retry_delay_min", 2*time.Second)
	v.SetDefault("http.retry_delay_max", 10*time.Second)
	v.SetDefault("limits.pause_min", 10)
	v.SetDefault("limits.pause_max", 30)
	v.SetDefault("limits.delay_min", 5*time.Second)
	v.SetDefault("limits.delay_max", 20*time.Second)
	v.SetDefault("limits.min_interval", 0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageSQLite, StoragePostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for the %s driver", c.Storage.Driver)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.driver must be sqlite, postgres or memory, got %q", c.Storage.Driver)
	}
	switch c.Archive.Driver {
	case DriverNone, DriverMemory:
	case DriverLocal:
		if strings.TrimSpace(c.Archive.BaseDir) == "" {
			return fmt.Errorf("archive.base_dir is required for the local driver")
		}
	case DriverGCS:
		if strings.TrimSpace(c.Archive.Bucket) == "" {
			return fmt.Errorf("archive.bucket is required for the gcs driver")
		}
	default:
		return fmt.Errorf("archive.driver must be none, memory, local or gcs, got %q", c.Archive.Driver)
	}
	switch c.Notify.Driver {
	case DriverNone, DriverMemory:
	case DriverPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic are required for the pubsub driver")
		}
	default:
		return fmt.Errorf("notify.driver must be none, memory or pubsub, got %q", c.Notify.Driver)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Sync.AutoBookSplit <= 0 {
		return fmt.Errorf("sync.auto_book_split must be > 0")
	}
	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("sync.concurrency must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.Retry.DelayMin < 0 || c.HTTP.Retry.DelayMin > c.HTTP.Retry.DelayMax {
		return fmt.Errorf("http.retry_delay_min must be between 0 and http.retry_delay_max")
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Sites))
	for i, site := range c.Sites {
		if err := site.validate(); err != nil {
			return fmt.Errorf("sites[%d]: %w", i, err)
		}
		root, err := source.RootDomain(site.Domain)
		if err != nil {
			return fmt.Errorf("sites[%d]: %w", i, err)
		}
		if _, dup := seen[root]; dup {
			return fmt.Errorf("sites[%d]: domain %s configured twice", i, root)
		}
		seen[root] = struct{}{}
	}
	return nil
}

func (s SiteConfig) validate() error {
	if strings.TrimSpace(s.Domain) == "" {
		return fmt.Errorf("domain is required")
	}
	switch s.Fetcher {
	case "", FetcherColly, FetcherResty, FetcherHeadless:
	default:
		return fmt.Errorf("fetcher must be colly, resty or headless, got %q", s.Fetcher)
	}
	if s.Limits != nil {
		if err := s.Limits.Validate(); err != nil {
			return fmt.Errorf("limits: %w", err)
		}
	}
	if err := s.Rules.Validate(); err != nil {
		return fmt.Errorf("%s: %w", s.Domain, err)
	}
	return nil
}
