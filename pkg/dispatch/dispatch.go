// Package dispatch turns an organization's repository listing into fetch
// requests for the worker pool.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/gh-contrib-collector/pkg/github"
	"github.com/Sternrassler/gh-contrib-collector/pkg/logging"
)

var reposTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ghcc_repositories_total",
	Help: "Repositories seen in organization listings by outcome",
}, []string{"outcome"}) // "fork", "empty", "dispatched"

// Queue accepts fetch requests. Submit blocks while the queue is full.
type Queue interface {
	Submit(ctx context.Context, req github.FetchRequest) error
}

// Config holds dispatcher configuration.
type Config struct {
	// FetchLanguages additionally enqueues a languages request per repository.
	FetchLanguages bool
}

// Report summarizes one pass over the listing.
type Report struct {
	// Total is the number of repositories in the listing.
	Total int `json:"total"`

	// Forks is the number of forked repositories skipped.
	Forks int `json:"forks"`

	// SkippedEmpty lists the names of empty repositories, in listing order.
	SkippedEmpty []string `json:"skipped_empty"`

	// Enqueued is the number of fetch requests submitted.
	Enqueued int `json:"enqueued"`
}

// Dispatcher filters repositories and produces fetch requests.
type Dispatcher struct {
	config Config
	logger zerolog.Logger
}

// New creates a new dispatcher.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		config: cfg,
		logger: logging.NewLogger("dispatch"),
	}
}

// Requests returns the fetch requests for one repository, and the reason it
// was skipped when there are none.
func (d *Dispatcher) Requests(repo github.RepositoryDescriptor) ([]github.FetchRequest, string) {
	if repo.Fork {
		return nil, "fork"
	}
	if repo.IsEmpty() {
		return nil, "empty"
	}

	reqs := []github.FetchRequest{{
		Repo: repo.Name,
		URL:  repo.ContributorsURL,
		Kind: github.KindContributors,
	}}
	if d.config.FetchLanguages {
		reqs = append(reqs, github.FetchRequest{
			Repo: repo.Name,
			URL:  repo.LanguagesURL,
			Kind: github.KindLanguages,
		})
	}
	return reqs, ""
}

// Dispatch consumes the whole listing and submits the requests of every
// qualifying repository to queue. A listing error or a rejected submit
// aborts dispatch; the partial report is returned with the error.
func (d *Dispatcher) Dispatch(ctx context.Context, listing iter.Seq2[json.RawMessage, error], queue Queue) (Report, error) {
	report := Report{SkippedEmpty: []string{}}

	for item, err := range listing {
		if err != nil {
			return report, fmt.Errorf("list repositories: %w", err)
		}

		repo, err := github.DecodeRepository(item)
		if err != nil {
			return report, fmt.Errorf("list repositories: %w", err)
		}
		report.Total++

		reqs, skip := d.Requests(repo)
		switch skip {
		case "fork":
			report.Forks++
			reposTotal.WithLabelValues("fork").Inc()
			d.logger.Info().Str("repo", repo.Name).Msg("Repository is a fork, ignoring")
			continue
		case "empty":
			report.SkippedEmpty = append(report.SkippedEmpty, repo.Name)
			reposTotal.WithLabelValues("empty").Inc()
			d.logger.Info().Str("repo", repo.Name).Msg("Repository is empty, ignoring")
			continue
		}

		for _, req := range reqs {
			if err := queue.Submit(ctx, req); err != nil {
				return report, fmt.Errorf("enqueue %s request for %s: %w", req.Kind, req.Repo, err)
			}
			report.Enqueued++
		}
		reposTotal.WithLabelValues("dispatched").Inc()
	}

	d.logger.Info().
		Int("total", report.Total).
		Int("forks", report.Forks).
		Int("enqueued", report.Enqueued).
		Int("empty_count", len(report.SkippedEmpty)).
		Strs("empty", report.SkippedEmpty).
		Msg("Repository listing dispatched")

	return report, nil
}
