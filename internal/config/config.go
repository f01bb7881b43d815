// Package config loads collector settings from defaults, an optional TOML
// file and the environment (including an optional .env file), in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/gh-contrib-collector/pkg/cache"
	"github.com/Sternrassler/gh-contrib-collector/pkg/collector"
	"github.com/Sternrassler/gh-contrib-collector/pkg/logging"
	"github.com/Sternrassler/gh-contrib-collector/pkg/workerpool"
)

// Ledger backends.
const (
	LedgerNone  = "none"
	LedgerFile  = "file"
	LedgerRedis = "redis"
)

// Config holds all configuration for the collector.
type Config struct {
	GitHub   GitHubConfig   `toml:"github"`
	Cache    CacheConfig    `toml:"cache"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Pool     PoolConfig     `toml:"pool"`
	Redis    RedisConfig    `toml:"redis"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Log      LogConfig      `toml:"log"`
}

// GitHubConfig holds the API settings.
type GitHubConfig struct {
	Org      string `toml:"org"`
	Token    string `toml:"token"`
	APIURL   string `toml:"api_url"`
	RepoType string `toml:"repo_type"`
}

// CacheConfig holds the disk cache settings.
type CacheConfig struct {
	Dir    string `toml:"dir"`
	Ledger string `toml:"ledger"`
}

// DispatchConfig selects which requests are queued per repository.
type DispatchConfig struct {
	FetchLanguages bool `toml:"fetch_languages"`
}

// PoolConfig holds the worker pool settings.
type PoolConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

// RedisConfig holds the Redis connection, used by the redis ledger and the
// shared rate limit state.
type RedisConfig struct {
	URL string `toml:"url"`
}

// MetricsConfig holds the metrics server settings.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		GitHub: GitHubConfig{
			APIURL:   collector.DefaultAPIURL,
			RepoType: collector.DefaultRepoType,
		},
		Cache: CacheConfig{
			Dir:    cache.DefaultDir,
			Ledger: LedgerNone,
		},
		Pool: PoolConfig{
			Workers:   workerpool.DefaultWorkers,
			QueueSize: workerpool.DefaultQueueSize,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load builds the configuration. path names an optional TOML file; an
// empty path skips it. A .env file in the working directory is loaded when
// present. The result is not validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.GitHub.Org = getEnv("GITHUB_ORG", cfg.GitHub.Org)
	cfg.GitHub.Token = getEnv("GITHUB_TOKEN", cfg.GitHub.Token)
	cfg.GitHub.APIURL = getEnv("GITHUB_API_URL", cfg.GitHub.APIURL)
	cfg.GitHub.RepoType = getEnv("GITHUB_REPO_TYPE", cfg.GitHub.RepoType)
	cfg.Cache.Dir = getEnv("CACHE_DIR", cfg.Cache.Dir)
	cfg.Cache.Ledger = getEnv("LEDGER", cfg.Cache.Ledger)
	cfg.Pool.Workers = getEnvAsInt("WORKERS", cfg.Pool.Workers)
	cfg.Pool.QueueSize = getEnvAsInt("QUEUE_SIZE", cfg.Pool.QueueSize)
	cfg.Dispatch.FetchLanguages = getEnvAsBool("FETCH_LANGUAGES", cfg.Dispatch.FetchLanguages)
	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Metrics.Addr = getEnv("METRICS_ADDR", cfg.Metrics.Addr)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.GitHub.Org == "" {
		return fmt.Errorf("GITHUB_ORG is required")
	}
	if c.GitHub.Token == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Pool.Workers)
	}
	if c.Pool.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.Pool.QueueSize)
	}

	switch c.Cache.Ledger {
	case LedgerNone, LedgerFile:
	case LedgerRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("ledger %q requires REDIS_URL", LedgerRedis)
		}
	default:
		return fmt.Errorf("unknown ledger %q (want %s, %s or %s)", c.Cache.Ledger, LedgerNone, LedgerFile, LedgerRedis)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// RedisOptions returns client options for the configured URL. Both
// redis:// URLs and bare host:port addresses are accepted.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.Redis.URL == "" {
		return nil, errors.New("redis url is not set")
	}
	if strings.Contains(c.Redis.URL, "://") {
		opts, err := redis.ParseURL(c.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.Redis.URL}, nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt gets an environment variable as integer with a fallback value
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getEnvAsBool gets an environment variable as bool with a fallback value
func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}
