// Package ratelimit observes GitHub's primary rate limit as reported by the
// X-RateLimit-* response headers. It never delays requests; it only keeps
// the latest state, exports it as metrics and warns when quota runs low.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Response headers carrying rate limit state.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderUsed      = "X-RateLimit-Used"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderResource  = "X-RateLimit-Resource"
)

// Redis keys for shared rate limit state.
const (
	RedisKeyRemaining = "ghcc:rate_limit:remaining"
	RedisKeyLimit     = "ghcc:rate_limit:limit"
	RedisKeyReset     = "ghcc:rate_limit:reset_timestamp"
)

// WarnThreshold is the remaining quota below which every update is logged
// as a warning.
const WarnThreshold = 100

// State is the rate limit state reported by the most recent response.
type State struct {
	// Limit is the request quota of the current window.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// Used is the number of requests spent in the current window.
	Used int `json:"used"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// Resource is the quota bucket ("core", "search", ...).
	Resource string `json:"resource"`

	// LastUpdate is when this state was observed.
	LastUpdate time.Time `json:"last_update"`
}

// IsLow returns true if fewer than WarnThreshold requests remain.
func (s *State) IsLow() bool {
	return s.Remaining < WarnThreshold
}

// IsExhausted returns true if no requests remain in the current window.
func (s *State) IsExhausted() bool {
	return s.Remaining <= 0
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// ParseHeaders extracts rate limit state from response headers.
// ok is false when the response carries no rate limit headers at all.
func ParseHeaders(h http.Header) (state State, ok bool, err error) {
	remainStr := h.Get(HeaderRemaining)
	if remainStr == "" {
		return State{}, false, nil
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return State{}, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	state = State{
		Remaining:  remaining,
		Resource:   h.Get(HeaderResource),
		LastUpdate: time.Now(),
	}

	if v := h.Get(HeaderLimit); v != "" {
		if state.Limit, err = strconv.Atoi(v); err != nil {
			return State{}, false, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	if v := h.Get(HeaderUsed); v != "" {
		if state.Used, err = strconv.Atoi(v); err != nil {
			return State{}, false, fmt.Errorf("parse %s header: %w", HeaderUsed, err)
		}
	}

	if v := h.Get(HeaderReset); v != "" {
		epoch, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return State{}, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
		}
		state.ResetAt = time.Unix(epoch, 0)
	}

	return state, true, nil
}
