package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/gh-contrib-collector/pkg/logging"
)

// DefaultPerPage is the page size GitHub allows at most for REST collections.
const DefaultPerPage = 100

var pagesFetched = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ghcc_pages_fetched_total",
	Help: "Total number of collection pages fetched from the API",
})

// Config holds paginator configuration
type Config struct {
	// PerPage is appended to the first request as per_page
	PerPage int
}

// DefaultConfig returns the configuration used against api.github.com
func DefaultConfig() Config {
	return Config{
		PerPage: DefaultPerPage,
	}
}

// Page is one decoded response of a paginated collection.
type Page struct {
	// Items are the elements of the page in response order.
	Items []json.RawMessage

	// Link is the raw Link header of the response.
	Link string
}

// PageFetcher fetches a single page by absolute URL.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (Page, error)
}

// Paginator follows "next" relations across the pages of a collection.
type Paginator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a new paginator
func New(fetcher PageFetcher, config Config) *Paginator {
	if config.PerPage <= 0 {
		config.PerPage = DefaultPerPage
	}

	return &Paginator{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("pagination"),
	}
}

// FirstPageURL appends the per_page parameter to baseURL, keeping any
// query the URL already carries.
func FirstPageURL(baseURL string, perPage int) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + "per_page=" + strconv.Itoa(perPage)
}

// Paginate returns a lazy sequence over all items of the collection at
// baseURL. A failed page yields one error and ends the sequence.
// Every call re-issues all requests.
func (p *Paginator) Paginate(ctx context.Context, baseURL string) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		start := time.Now()
		next := FirstPageURL(baseURL, p.config.PerPage)
		pages, items := 0, 0

		for next != "" {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := p.fetcher.FetchPage(ctx, next)
			if err != nil {
				yield(nil, fmt.Errorf("fetch page %d of %s: %w", pages+1, baseURL, err))
				return
			}
			pages++
			pagesFetched.Inc()

			for _, item := range page.Items {
				items++
				if !yield(item, nil) {
					p.logger.Debug().
						Str("url", baseURL).
						Int("pages", pages).
						Msg("Pagination stopped by consumer")
					return
				}
			}

			next = ParseLinks(page.Link).Next()
		}

		p.logger.Debug().
			Str("url", baseURL).
			Int("pages", pages).
			Int("items", items).
			Dur("duration", time.Since(start)).
			Msg("Pagination complete")
	}
}
