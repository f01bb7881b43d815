package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ghcc_rate_limit_remaining",
		Help: "Requests remaining in the current GitHub rate limit window",
	})

	rateLimitResetSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ghcc_rate_limit_reset_seconds",
		Help: "Seconds until the GitHub rate limit window resets",
	})

	rateLimitLowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ghcc_rate_limit_low_total",
		Help: "Responses observed while remaining quota was below the warning threshold",
	})
)

// Tracker keeps the latest observed rate limit state.
// It is safe for concurrent use by all workers sharing one HTTP client.
type Tracker struct {
	redis  *redis.Client // optional, shares state across processes
	logger zerolog.Logger

	mu    sync.RWMutex
	state *State
}

// NewTracker creates a new rate limit tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// State returns a copy of the most recently observed state, or nil if no
// response with rate limit headers has been seen yet.
func (t *Tracker) State() *State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state == nil {
		return nil
	}
	s := *t.state
	return &s
}

// Observe records the rate limit state carried by response headers.
// Responses without rate limit headers are ignored.
func (t *Tracker) Observe(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	t.mu.Lock()
	t.state = &state
	t.mu.Unlock()

	rateLimitRemaining.Set(float64(state.Remaining))
	rateLimitResetSeconds.Set(state.TimeUntilReset().Seconds())

	if t.redis != nil {
		if err := t.store(ctx, state); err != nil {
			return err
		}
	}

	if state.IsLow() {
		rateLimitLowTotal.Inc()
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Time("reset_at", state.ResetAt).
			Msg("GitHub rate limit running low")
	} else {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("GitHub rate limit state updated")
	}

	return nil
}

// store writes state to Redis, expiring with the rate limit window.
func (t *Tracker) store(ctx context.Context, state State) error {
	ttl := state.TimeUntilReset()
	if ttl <= 0 {
		ttl = time.Hour
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, ttl)
	pipe.Set(ctx, RedisKeyLimit, state.Limit, ttl)
	pipe.Set(ctx, RedisKeyReset, state.ResetAt.Unix(), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

// Load reads the state last stored in Redis by any process.
// Returns nil without error if Redis holds no state or no client is set.
func (t *Tracker) Load(ctx context.Context) (*State, error) {
	if t.redis == nil {
		return nil, nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	limit, err := t.redis.Get(ctx, RedisKeyLimit).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get limit: %w", err)
	}

	reset, err := t.redis.Get(ctx, RedisKeyReset).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	return &State{
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Unix(reset, 0),
	}, nil
}
