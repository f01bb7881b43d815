package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/gh-contrib-collector/internal/config"
	"github.com/Sternrassler/gh-contrib-collector/pkg/cache"
	"github.com/Sternrassler/gh-contrib-collector/pkg/client"
	"github.com/Sternrassler/gh-contrib-collector/pkg/collector"
	"github.com/Sternrassler/gh-contrib-collector/pkg/dispatch"
	"github.com/Sternrassler/gh-contrib-collector/pkg/logging"
	"github.com/Sternrassler/gh-contrib-collector/pkg/metrics"
	"github.com/Sternrassler/gh-contrib-collector/pkg/pagination"
	"github.com/Sternrassler/gh-contrib-collector/pkg/ratelimit"
	"github.com/Sternrassler/gh-contrib-collector/pkg/workerpool"
)

var collectFlags struct {
	org       string
	apiURL    string
	repoType  string
	cacheDir  string
	ledger    string
	redisURL  string
	metrics   string
	workers   int
	queueSize int
	languages bool
	jsonOut   bool
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect contributors of an organization",
	Long: `Lists the organization's repositories and fetches the contributors of
every repository that is neither a fork nor empty. The token is read from
GITHUB_TOKEN (or the config file).`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	f := collectCmd.Flags()
	f.StringVar(&collectFlags.org, "org", "", "organization to scan (env GITHUB_ORG)")
	f.StringVar(&collectFlags.apiURL, "api-url", "", "GitHub REST base URL (env GITHUB_API_URL)")
	f.StringVar(&collectFlags.repoType, "repo-type", "", "repository type filter of the listing (env GITHUB_REPO_TYPE)")
	f.StringVar(&collectFlags.cacheDir, "cache-dir", "", "cache directory (env CACHE_DIR)")
	f.StringVar(&collectFlags.ledger, "ledger", "", "completion ledger: none, file or redis (env LEDGER)")
	f.StringVar(&collectFlags.redisURL, "redis-url", "", "Redis for the ledger and rate limit state (env REDIS_URL)")
	f.StringVar(&collectFlags.metrics, "metrics-addr", "", "serve /metrics and /health on this address (env METRICS_ADDR)")
	f.IntVar(&collectFlags.workers, "workers", 0, "concurrent fetchers (env WORKERS)")
	f.IntVar(&collectFlags.queueSize, "queue-size", 0, "request queue capacity (env QUEUE_SIZE)")
	f.BoolVar(&collectFlags.languages, "languages", false, "also fetch repository languages (env FETCH_LANGUAGES)")
	f.BoolVar(&collectFlags.jsonOut, "json", false, "print the summary as JSON")

	rootCmd.AddCommand(collectCmd)
}

// loadConfig merges the config file, the environment and the flags that
// were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("org", func() { cfg.GitHub.Org = collectFlags.org })
	set("api-url", func() { cfg.GitHub.APIURL = collectFlags.apiURL })
	set("repo-type", func() { cfg.GitHub.RepoType = collectFlags.repoType })
	set("cache-dir", func() { cfg.Cache.Dir = collectFlags.cacheDir })
	set("ledger", func() { cfg.Cache.Ledger = collectFlags.ledger })
	set("redis-url", func() { cfg.Redis.URL = collectFlags.redisURL })
	set("metrics-addr", func() { cfg.Metrics.Addr = collectFlags.metrics })
	set("workers", func() { cfg.Pool.Workers = collectFlags.workers })
	set("queue-size", func() { cfg.Pool.QueueSize = collectFlags.queueSize })
	set("languages", func() { cfg.Dispatch.FetchLanguages = collectFlags.languages })
	set("log-level", func() { cfg.Log.Level = logLevel })
	set("pretty", func() { cfg.Log.Pretty = prettyLogs })

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func runCollect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	logger := logging.NewLogger("cli")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := cfg.RedisOptions()
		if err != nil {
			return err
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	tracker := ratelimit.NewTracker(rdb, logging.NewLogger("ratelimit"))
	if state, err := tracker.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to load shared rate limit state")
	} else if state != nil {
		logger.Info().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Shared rate limit state")
	}

	ghClient, err := client.New(client.Config{
		Token:      cfg.GitHub.Token,
		UserAgent:  client.DefaultUserAgent + "/" + version,
		Timeout:    client.DefaultTimeout,
		RateLimits: tracker,
	})
	if err != nil {
		return fmt.Errorf("create GitHub client: %w", err)
	}

	ledger, err := newLedger(cfg, rdb)
	if err != nil {
		return err
	}

	store, err := cache.NewStore(
		pagination.New(ghClient, pagination.DefaultConfig()),
		cache.Config{Dir: cfg.Cache.Dir, Ledger: ledger},
	)
	if err != nil {
		return err
	}

	col, err := collector.New(store, collector.Config{
		APIURL:   cfg.GitHub.APIURL,
		Org:      cfg.GitHub.Org,
		RepoType: cfg.GitHub.RepoType,
		Dispatch: dispatch.Config{FetchLanguages: cfg.Dispatch.FetchLanguages},
		Pool:     workerpool.Config{Workers: cfg.Pool.Workers, QueueSize: cfg.Pool.QueueSize},
	})
	if err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Listen(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Serve(ctx); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	summary, err := col.Run(ctx)
	return finishRun(cmd, cfg.GitHub.Org, summary, err)
}

// finishRun prints the summary of a run and returns its error. A run whose
// handlers panicked still completed, so its summary is printed before the
// error is returned; an aborted run prints nothing.
func finishRun(cmd *cobra.Command, org string, summary collector.Summary, runErr error) error {
	if runErr != nil && !errors.Is(runErr, workerpool.ErrHandlerPanic) {
		return fmt.Errorf("collect %s: %w", org, runErr)
	}

	if collectFlags.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		printSummary(cmd, summary)
	}

	if runErr != nil {
		return fmt.Errorf("collect %s: %w", org, runErr)
	}
	return nil
}

// newLedger returns the configured completion ledger, or nil for none.
func newLedger(cfg *config.Config, rdb *redis.Client) (cache.Ledger, error) {
	switch cfg.Cache.Ledger {
	case config.LedgerFile:
		ledger, err := cache.NewFileLedger(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		return ledger, nil
	case config.LedgerRedis:
		if rdb == nil {
			return nil, errors.New("redis ledger requires a redis connection")
		}
		return cache.NewRedisLedger(rdb, cache.DefaultLedgerKey), nil
	default:
		return nil, nil
	}
}

func printSummary(cmd *cobra.Command, s collector.Summary) {
	cmd.Printf("Run %s\n", s.RunID)
	cmd.Printf("Repositories: %d (forks: %d, empty: %d)\n", s.Report.Total, s.Report.Forks, len(s.Report.SkippedEmpty))
	if len(s.Report.SkippedEmpty) > 0 {
		cmd.Printf("Empty repositories: %s\n", strings.Join(s.Report.SkippedEmpty, ", "))
	}
	cmd.Printf("Requests: %d processed, %d failed\n", s.Stats.Processed, s.Stats.Failed)

	if len(s.Contributors) == 0 {
		return
	}
	cmd.Println("Contributors:")
	for _, t := range s.Contributors {
		cmd.Printf("  %-24s %6d commits in %d repos\n", t.Login, t.Contributions, t.Repos)
	}
}
