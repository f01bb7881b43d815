// Package workerpool runs fetch requests on a fixed number of goroutines fed
// by one bounded queue.
//
// A failing or panicking request never stops its worker: the error is logged
// with the repository it belongs to, the request is acknowledged and the
// worker moves on. Drain waits until every submitted request has been
// acknowledged.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/gh-contrib-collector/pkg/github"
	"github.com/Sternrassler/gh-contrib-collector/pkg/logging"
)

const (
	// DefaultWorkers is the number of concurrent fetchers.
	DefaultWorkers = 5

	// DefaultQueueSize is the capacity of the request queue.
	DefaultQueueSize = 100
)

var (
	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("worker pool closed")

	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("handler panicked")
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ghcc_queue_depth",
		Help: "Fetch requests waiting in the worker pool queue",
	})

	requestsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghcc_worker_requests_total",
		Help: "Fetch requests handled by workers by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome: "ok", "error", "panic", "cancelled"

	handlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghcc_worker_handler_duration_seconds",
		Help:    "Time spent draining one fetch request",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
)

// Handler processes one fetch request.
type Handler func(ctx context.Context, req github.FetchRequest) error

// Config holds worker pool configuration.
type Config struct {
	// Workers is the number of worker goroutines.
	Workers int

	// QueueSize is the capacity of the queue; Submit blocks while it is full.
	QueueSize int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Workers:   DefaultWorkers,
		QueueSize: DefaultQueueSize,
	}
}

// Stats counts handled requests.
type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
	Cancelled int64 `json:"cancelled"`
}

// Pool is a fixed-size worker pool.
type Pool struct {
	config  Config
	handler Handler
	queue   chan github.FetchRequest
	logger  zerolog.Logger

	pending    sync.WaitGroup // submitted, not yet acknowledged
	workers    sync.WaitGroup
	submitters sync.WaitGroup // Submit calls between the closed check and the send

	mu      sync.RWMutex
	started bool
	closed  bool
	done    chan struct{} // closed by Shutdown; unblocks pending Submits

	panicsMu sync.Mutex
	panics   []error

	processed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
	cancelled atomic.Int64
}

// New creates a pool that runs handler for every submitted request.
func New(handler Handler, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	return &Pool{
		config:  cfg,
		handler: handler,
		queue:   make(chan github.FetchRequest, cfg.QueueSize),
		done:    make(chan struct{}),
		logger:  logging.NewLogger("workerpool"),
	}
}

// Start launches the workers. Requests dequeued after ctx is cancelled are
// acknowledged without running the handler. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.config.Workers; i++ {
		p.workers.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Debug().
		Int("workers", p.config.Workers).
		Int("queue_size", p.config.QueueSize).
		Msg("Worker pool started")
}

// Submit enqueues req, blocking while the queue is full. It returns
// ErrClosed once Shutdown has been called, including while blocked.
func (p *Pool) Submit(ctx context.Context, req github.FetchRequest) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	p.submitters.Add(1)
	p.pending.Add(1)
	p.mu.RUnlock()
	defer p.submitters.Done()

	select {
	case p.queue <- req:
		queueDepth.Set(float64(len(p.queue)))
		return nil
	case <-p.done:
		p.pending.Done()
		return ErrClosed
	case <-ctx.Done():
		p.pending.Done()
		return ctx.Err()
	}
}

// Drain blocks until every submitted request has been acknowledged.
// The pool must have been started.
func (p *Pool) Drain() {
	p.pending.Wait()
}

// Shutdown closes the queue, waits for the workers to exit and returns the
// panics recovered during the pool's lifetime, if any. Submits blocked on a
// full queue return ErrClosed.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	first := !p.closed
	p.closed = true
	p.mu.Unlock()

	if first {
		close(p.done)
		p.submitters.Wait()
		close(p.queue)
	}

	p.workers.Wait()

	p.panicsMu.Lock()
	defer p.panicsMu.Unlock()
	return errors.Join(p.panics...)
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panicked.Load(),
		Cancelled: p.cancelled.Load(),
	}
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	defer p.workers.Done()
	handled := 0

	for req := range p.queue {
		p.process(ctx, workerID, req)
		handled++
	}

	p.logger.Debug().
		Int("worker_id", workerID).
		Int("requests_handled", handled).
		Msg("Worker stopped")
}

// process runs the handler for one request and always acknowledges it.
func (p *Pool) process(ctx context.Context, workerID int, req github.FetchRequest) {
	defer p.pending.Done()

	depth := len(p.queue)
	queueDepth.Set(float64(depth))
	p.logger.Info().
		Int("worker_id", workerID).
		Int("queue_depth", depth).
		Str("repo", req.Repo).
		Str("kind", req.Kind.String()).
		Msg("Processing request")

	if ctx.Err() != nil {
		p.cancelled.Add(1)
		requestsProcessed.WithLabelValues(req.Kind.String(), "cancelled").Inc()
		return
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %s %s: %v", ErrHandlerPanic, req.Repo, req.Kind, r)
			p.panicked.Add(1)
			p.failed.Add(1)
			requestsProcessed.WithLabelValues(req.Kind.String(), "panic").Inc()

			p.panicsMu.Lock()
			p.panics = append(p.panics, err)
			p.panicsMu.Unlock()

			p.logger.Error().
				Str("repo", req.Repo).
				Str("url", req.URL).
				Interface("panic", r).
				Msg("Request handler panicked")
		}
	}()

	start := time.Now()
	err := p.handler(ctx, req)
	handlerDuration.WithLabelValues(req.Kind.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		p.failed.Add(1)
		requestsProcessed.WithLabelValues(req.Kind.String(), "error").Inc()
		p.logger.Error().
			Err(err).
			Str("repo", req.Repo).
			Str("url", req.URL).
			Msg("Request failed")
		return
	}

	p.processed.Add(1)
	requestsProcessed.WithLabelValues(req.Kind.String(), "ok").Inc()
}
