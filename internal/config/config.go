package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Stats    StatsConfig    `yaml:"stats" mapstructure:"stats"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Snapshot SnapshotConfig `yaml:"snapshot" mapstructure:"snapshot"`
}

// StoreConfig configures where the dataset is loaded from. Driver "file"
// reads a YAML fixture instead of a database.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	FixturePath string     `yaml:"fixture_path" mapstructure:"fixture_path"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`

	// ConnectAttempts bounds retries while the database is unreachable at startup.
	ConnectAttempts int `yaml:"connect_attempts" mapstructure:"connect_attempts"`
}

// PoolConfig holds optional Postgres pool sizing.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst   int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AdminToken  string   `yaml:"admin_token" mapstructure:"admin_token"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SearchConfig configures zone name search.
type SearchConfig struct {
	MaxResults int `yaml:"max_results" mapstructure:"max_results"`
}

// StatsConfig holds defaults for statistics queries.
type StatsConfig struct {
	EvolutionFrom int `yaml:"evolution_from" mapstructure:"evolution_from"`
	EvolutionTo   int `yaml:"evolution_to" mapstructure:"evolution_to"`
	TopProducts   int `yaml:"top_products" mapstructure:"top_products"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	RedisURL   string `yaml:"redis_url" mapstructure:"redis_url"`
	MaxEntries int    `yaml:"max_entries" mapstructure:"max_entries"`
	TTLSecs    int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

// SnapshotConfig configures snapshot reloads.
type SnapshotConfig struct {
	WatchFixture bool `yaml:"watch_fixture" mapstructure:"watch_fixture"`
	// ReloadTimeoutSecs bounds one dataset load.
	ReloadTimeoutSecs int `yaml:"reload_timeout_secs" mapstructure:"reload_timeout_secs"`
}

// Load reads configuration from .env, config.yaml and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AGRISTAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.fixture_path", "")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("store.connect_attempts", 5)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.admin_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("stats.evolution_from", 2021)
	v.SetDefault("stats.evolution_to", 2024)
	v.SetDefault("stats.top_products", 5)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.max_entries", 2048)
	v.SetDefault("cache.ttl_secs", 300)
	v.SetDefault("snapshot.watch_fixture", true)
	v.SetDefault("snapshot.reload_timeout_secs", 120)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: serve,
// query, migrate.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve", "query":
		errs = append(errs, c.validateSource()...)
		if c.Search.MaxResults < 1 {
			errs = append(errs, "search.max_results must be >= 1")
		}
		if c.Stats.EvolutionFrom <= 0 || c.Stats.EvolutionTo < c.Stats.EvolutionFrom {
			errs = append(errs, fmt.Sprintf("stats evolution window %d-%d is invalid", c.Stats.EvolutionFrom, c.Stats.EvolutionTo))
		}
		if mode == "serve" {
			if c.Server.Port <= 0 || c.Server.Port > 65535 {
				errs = append(errs, "server.port must be > 0 and <= 65535")
			}
			if c.Server.RateLimit < 0 {
				errs = append(errs, "server.rate_limit must be >= 0")
			}
			switch c.Cache.Driver {
			case "memory", "redis", "none":
			default:
				errs = append(errs, fmt.Sprintf("cache.driver %q is not one of memory, redis, none", c.Cache.Driver))
			}
		}
	case "migrate":
		if c.Store.Driver == "file" {
			errs = append(errs, "store.driver file has no schema to migrate")
		} else {
			errs = append(errs, c.validateSource()...)
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSource() []string {
	switch c.Store.Driver {
	case "postgres", "sqlite":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "file":
		if c.Store.FixturePath == "" {
			return []string{"store.fixture_path is required"}
		}
	default:
		return []string{fmt.Sprintf("store.driver %q is not one of postgres, sqlite, file", c.Store.Driver)}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
