// Package collector runs one organization scan: it lists the repositories,
// dispatches fetch requests for the qualifying ones to a worker pool and
// aggregates what the workers bring back.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/gh-contrib-collector/pkg/dispatch"
	"github.com/Sternrassler/gh-contrib-collector/pkg/github"
	"github.com/Sternrassler/gh-contrib-collector/pkg/logging"
	"github.com/Sternrassler/gh-contrib-collector/pkg/workerpool"
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"

	// DefaultRepoType is the repository type listed by default.
	DefaultRepoType = "private"
)

// Fetcher returns the items of a collection URL. *cache.Store implements it.
type Fetcher interface {
	FetchOrReplay(ctx context.Context, url string) iter.Seq2[json.RawMessage, error]
}

// Config holds collector configuration.
type Config struct {
	// APIURL is the GitHub REST base URL.
	APIURL string

	// Org is the organization to scan (REQUIRED).
	Org string

	// RepoType is the type filter of the listing ("all", "public",
	// "private", ...). Empty lists without a filter.
	RepoType string

	Dispatch dispatch.Config
	Pool     workerpool.Config
}

// DefaultConfig returns the default configuration for org.
func DefaultConfig(org string) Config {
	return Config{
		APIURL:   DefaultAPIURL,
		Org:      org,
		RepoType: DefaultRepoType,
		Pool:     workerpool.DefaultConfig(),
	}
}

// Summary is the outcome of one run.
type Summary struct {
	RunID        string                      `json:"run_id"`
	Report       dispatch.Report             `json:"report"`
	Stats        workerpool.Stats            `json:"stats"`
	Contributors []LoginTotal                `json:"contributors"`
	Languages    map[string]map[string]int64 `json:"languages,omitempty"`
	Duration     time.Duration               `json:"duration"`
}

// Collector scans one organization.
type Collector struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a collector reading every collection through fetcher.
func New(fetcher Fetcher, cfg Config) (*Collector, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.Org == "" {
		return nil, errors.New("organization is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}

	return &Collector{
		fetcher: fetcher,
		config:  cfg,
		logger:  logging.NewLogger("collector"),
	}, nil
}

// ListingURL returns the repository listing URL of the organization.
func (c *Collector) ListingURL() string {
	u := strings.TrimRight(c.config.APIURL, "/") + "/orgs/" + url.PathEscape(c.config.Org) + "/repos"
	if c.config.RepoType != "" {
		u += "?type=" + url.QueryEscape(c.config.RepoType)
	}
	return u
}

// Run scans the organization. Workers are started before the listing is
// dispatched and Run returns only after every dispatched request has been
// handled. A listing failure aborts the run; failures of single requests
// are counted in the summary.
func (c *Collector) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: uuid.NewString()}
	logger := c.logger.With().Str("run_id", summary.RunID).Str("org", c.config.Org).Logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	agg := NewAggregator()
	pool := workerpool.New(c.handler(agg), c.config.Pool)
	pool.Start(ctx)

	listingURL := c.ListingURL()
	logger.Info().Str("url", listingURL).Msg("Listing repositories")

	report, err := dispatch.New(c.config.Dispatch).Dispatch(ctx, c.fetcher.FetchOrReplay(ctx, listingURL), pool)
	summary.Report = report
	if err != nil {
		cancel()
		pool.Drain()
		_ = pool.Shutdown()
		summary.Stats = pool.Stats()
		logger.Error().Err(err).Msg("Run aborted")
		return summary, err
	}

	pool.Drain()
	shutdownErr := pool.Shutdown()

	summary.Stats = pool.Stats()
	summary.Contributors = agg.Totals()
	if c.config.Dispatch.FetchLanguages {
		summary.Languages = agg.Languages()
	}
	summary.Duration = time.Since(start)

	logger.Info().
		Int("repositories", report.Total).
		Int("requests", report.Enqueued).
		Int64("processed", summary.Stats.Processed).
		Int64("failed", summary.Stats.Failed).
		Int("contributors", len(summary.Contributors)).
		Dur("duration", summary.Duration).
		Msg("Run complete")

	if shutdownErr != nil {
		return summary, fmt.Errorf("worker pool: %w", shutdownErr)
	}
	return summary, nil
}

// handler drains one request's collection and feeds the decoded items to
// agg. A decode failure does not stop the drain, so the cache file is still
// completed; the first one is returned afterwards.
func (c *Collector) handler(agg *Aggregator) workerpool.Handler {
	return func(ctx context.Context, req github.FetchRequest) error {
		var decodeErr error
		items := 0

		for item, err := range c.fetcher.FetchOrReplay(ctx, req.URL) {
			if err != nil {
				return fmt.Errorf("fetch %s of %s: %w", req.Kind, req.Repo, err)
			}
			items++
			if decodeErr != nil {
				continue
			}

			switch req.Kind {
			case github.KindContributors:
				contrib, err := github.DecodeContribution(req.Repo, item)
				if err != nil {
					decodeErr = err
					continue
				}
				agg.AddContribution(contrib)
			case github.KindLanguages:
				langs, err := github.DecodeLanguages(item)
				if err != nil {
					decodeErr = err
					continue
				}
				agg.AddLanguages(req.Repo, langs)
			default:
				decodeErr = fmt.Errorf("unknown request kind %s", req.Kind)
			}
		}

		c.logger.Debug().
			Str("repo", req.Repo).
			Str("kind", req.Kind.String()).
			Int("items", items).
			Msg("Request drained")

		if decodeErr != nil {
			return fmt.Errorf("%s of %s: %w", req.Kind, req.Repo, decodeErr)
		}
		return nil
	}
}
