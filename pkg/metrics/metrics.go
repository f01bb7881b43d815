// Package metrics exposes the collector's Prometheus metrics.
// All metrics are defined in their respective packages (client, cache,
// pagination, ratelimit, dispatch, workerpool) and registered via promauto
// on the default registry.
//
// Request Metrics (pkg/client):
//   - ghcc_requests_total{status} (Counter): GitHub requests by HTTP status
//   - ghcc_request_duration_seconds (Histogram): GitHub request duration
//   - ghcc_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Pagination Metrics (pkg/pagination):
//   - ghcc_pages_fetched_total (Counter): Pages fetched while following Link headers
//
// Cache Metrics (pkg/cache):
//   - ghcc_cache_hits_total (Counter): Collections replayed from disk
//   - ghcc_cache_misses_total (Counter): Collections fetched from GitHub
//   - ghcc_cache_records_written_total (Counter): Records appended to cache files
//   - ghcc_cache_records_replayed_total (Counter): Records read back from cache files
//   - ghcc_cache_incomplete_total (Counter): Cache files found without a completion mark
//   - ghcc_cache_errors_total{operation} (Counter): Cache I/O and ledger errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - ghcc_rate_limit_remaining (Gauge): Requests left in the current window
//   - ghcc_rate_limit_reset_seconds (Gauge): Seconds until the window resets
//   - ghcc_rate_limit_low_total (Counter): Responses seen below the warning threshold
//
// Pipeline Metrics (pkg/dispatch, pkg/workerpool):
//   - ghcc_repositories_total{outcome} (Counter): Listed repositories (fork, empty, dispatched)
//   - ghcc_queue_depth (Gauge): Requests waiting in the worker queue
//   - ghcc_worker_requests_total{kind, outcome} (Counter): Handled requests (ok, error, panic, cancelled)
//   - ghcc_worker_handler_duration_seconds{kind} (Histogram): Time to drain one request
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	sum(rate(ghcc_cache_hits_total[5m])) /
//	(sum(rate(ghcc_cache_hits_total[5m])) + sum(rate(ghcc_cache_misses_total[5m])))
//
//	# Failed requests per run
//	sum(ghcc_worker_requests_total{outcome=~"error|panic"})
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sternrassler/gh-contrib-collector/pkg/logging"
)

// Registry is the Prometheus registerer all collector metrics live in.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Server serves Handler on a listener until its context is cancelled.
type Server struct {
	srv      *http.Server
	listener net.Listener
}

// Listen binds addr. The server does not accept connections before Serve.
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &Server{
		srv: &http.Server{
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is cancelled, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	logger := logging.NewLogger("metrics")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.listener)
	}()
	logger.Info().Str("addr", s.Addr()).Msg("Metrics server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	logger.Debug().Msg("Metrics server stopped")
	return nil
}
