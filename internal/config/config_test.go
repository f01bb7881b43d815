package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GITHUB_ORG", "GITHUB_TOKEN", "GITHUB_API_URL", "GITHUB_REPO_TYPE",
		"CACHE_DIR", "LEDGER", "WORKERS", "QUEUE_SIZE", "FETCH_LANGUAGES",
		"REDIS_URL", "METRICS_ADDR", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func validConfig() Config {
	cfg := Default()
	cfg.GitHub.Org = "acme"
	cfg.GitHub.Token = "ghp_test"
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIURL)
	assert.Equal(t, "private", cfg.GitHub.RepoType)
	assert.Equal(t, ".cache", cfg.Cache.Dir)
	assert.Equal(t, 5, cfg.Pool.Workers)
	assert.Equal(t, 100, cfg.Pool.QueueSize)
	assert.False(t, cfg.Dispatch.FetchLanguages)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_ORG", "acme")
	t.Setenv("GITHUB_TOKEN", "ghp_env")
	t.Setenv("WORKERS", "8")
	t.Setenv("QUEUE_SIZE", "not-a-number")
	t.Setenv("FETCH_LANGUAGES", "true")
	t.Setenv("LEDGER", "file")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.GitHub.Org)
	assert.Equal(t, "ghp_env", cfg.GitHub.Token)
	assert.Equal(t, 8, cfg.Pool.Workers)
	assert.Equal(t, 100, cfg.Pool.QueueSize, "invalid values fall back")
	assert.True(t, cfg.Dispatch.FetchLanguages)
	assert.Equal(t, LedgerFile, cfg.Cache.Ledger)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_env")

	path := filepath.Join(t.TempDir(), "collector.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[github]
org = "from-file"
token = "ghp_file"
repo_type = "all"

[cache]
dir = "/var/cache/ghcc"
ledger = "redis"

[dispatch]
fetch_languages = true

[pool]
workers = 2

[redis]
url = "redis://localhost:6379/3"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.GitHub.Org)
	assert.Equal(t, "ghp_env", cfg.GitHub.Token, "environment wins over the file")
	assert.Equal(t, "all", cfg.GitHub.RepoType)
	assert.Equal(t, "/var/cache/ghcc", cfg.Cache.Dir)
	assert.Equal(t, 2, cfg.Pool.Workers)
	assert.Equal(t, 100, cfg.Pool.QueueSize, "unset keys keep defaults")
	assert.True(t, cfg.Dispatch.FetchLanguages)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BadFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[github\norg ="), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing org", func(c *Config) { c.GitHub.Org = "" }, "GITHUB_ORG"},
		{"missing token", func(c *Config) { c.GitHub.Token = "" }, "GITHUB_TOKEN"},
		{"zero workers", func(c *Config) { c.Pool.Workers = 0 }, "workers"},
		{"zero queue", func(c *Config) { c.Pool.QueueSize = 0 }, "queue size"},
		{"unknown ledger", func(c *Config) { c.Cache.Ledger = "s3" }, "unknown ledger"},
		{"redis ledger without url", func(c *Config) { c.Cache.Ledger = LedgerRedis }, "REDIS_URL"},
		{"redis ledger", func(c *Config) { c.Cache.Ledger = LedgerRedis; c.Redis.URL = "localhost:6379" }, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedisOptions(t *testing.T) {
	cfg := validConfig()

	_, err := cfg.RedisOptions()
	assert.Error(t, err)

	cfg.Redis.URL = "cache.internal:6380"
	opts, err := cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)

	cfg.Redis.URL = "redis://:secret@localhost:6379/2"
	opts, err = cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
}
