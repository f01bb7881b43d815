// Package client provides the GitHub REST session shared by every fetcher:
// bearer token authentication, page decoding and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/Sternrassler/gh-contrib-collector/pkg/logging"
	"github.com/Sternrassler/gh-contrib-collector/pkg/pagination"
	"github.com/Sternrassler/gh-contrib-collector/pkg/ratelimit"
)

// Prometheus metrics for GitHub requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghcc_requests_total",
		Help: "Total GitHub API requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ghcc_request_duration_seconds",
		Help:    "GitHub API request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghcc_errors_total",
		Help: "Total GitHub API errors by class",
	}, []string{"class"})
)

const (
	// DefaultUserAgent identifies the collector to GitHub.
	DefaultUserAgent = "gh-contrib-collector"

	// DefaultTimeout bounds a single request including the body read.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of a failed response is kept for diagnostics.
	maxErrorBody = 2048
)

// Config holds the client configuration.
type Config struct {
	// Token is sent as a bearer token on every request (REQUIRED).
	Token string

	// UserAgent header (GitHub rejects requests without one).
	UserAgent string

	// Timeout per request.
	Timeout time.Duration

	// Transport is the underlying round tripper (default: http.DefaultTransport).
	Transport http.RoundTripper

	// RateLimits observes X-RateLimit-* headers when set.
	RateLimits *ratelimit.Tracker
}

// DefaultConfig returns a default configuration for token.
func DefaultConfig(token string) Config {
	return Config{
		Token:     token,
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
	}
}

// Client is a GitHub REST session. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	rateLimits *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// New creates a new GitHub client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	base := &http.Client{Transport: cfg.Transport}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	httpClient.Timeout = cfg.Timeout

	return &Client{
		httpClient: httpClient,
		rateLimits: cfg.RateLimits,
		config:     cfg,
		logger:     logging.NewLogger("github-client"),
	}, nil
}

// FetchPage performs a GET on url and decodes the body as one page of a
// collection. A JSON array yields its elements; a JSON object (as served by
// the languages endpoint) yields itself as a single item; an empty body or
// 204 yields no items.
func (c *Client) FetchPage(ctx context.Context, url string) (pagination.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pagination.Page{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		return pagination.Page{}, &APIError{
			URL:        url,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer drainAndClose(resp.Body)

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if c.rateLimits != nil {
		if err := c.rateLimits.Observe(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record rate limit state")
		}
	}

	c.logger.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("GitHub response")

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp)
		errorsTotal.WithLabelValues(string(class)).Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return pagination.Page{}, &APIError{
			URL:        url,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    string(bytes.TrimSpace(body)),
		}
	}

	page := pagination.Page{Link: resp.Header.Get("Link")}
	if resp.StatusCode == http.StatusNoContent {
		return page, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return pagination.Page{}, &APIError{
			URL:        url,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	page.Items, err = decodeItems(body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return pagination.Page{}, &APIError{
			URL:        url,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode body",
			Err:        err,
		}
	}

	return page, nil
}

// decodeItems splits a collection body into its items.
func decodeItems(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		return items, nil
	case '{':
		if !json.Valid(body) {
			return nil, fmt.Errorf("%w: invalid JSON object", ErrUnexpectedBody)
		}
		return []json.RawMessage{json.RawMessage(body)}, nil
	default:
		return nil, fmt.Errorf("%w: starts with %q", ErrUnexpectedBody, body[0])
	}
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
