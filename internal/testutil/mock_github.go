// Package testutil provides testing utilities for the GitHub collector.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGitHub is a configurable mock GitHub REST server for testing.
type MockGitHub struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	requestCount int
	pathCounts   map[string]int
	lastAuth     string
}

// NewMockGitHub creates a new mock GitHub server.
func NewMockGitHub() *MockGitHub {
	mock := &MockGitHub{
		handlers:   make(map[string]http.HandlerFunc),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastAuth = r.Header.Get("Authorization")
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "4999")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if exists {
			handler(w, r)
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockGitHub) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGitHub) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGitHub) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastAuth = ""
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGitHub) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockGitHub) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPages serves a paginated collection at path. Page N is selected with
// the page query parameter (default 1); every page but the last carries a
// Link header with a "next" relation.
func (m *MockGitHub) SetPages(path string, pages ...string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		n := 1
		if v := r.URL.Query().Get("page"); v != "" {
			n, _ = strconv.Atoi(v)
		}
		if n < 1 || n > len(pages) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[]`))
			return
		}

		if n < len(pages) {
			pageURL := func(p int) string {
				return fmt.Sprintf("%s%s?per_page=100&page=%d", m.server.URL, path, p)
			}
			w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next", <%s>; rel="last"`, pageURL(n+1), pageURL(len(pages))))
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(pages[n-1]))
	})
}

// SetJSONPages is SetPages with pages given as Go values.
func (m *MockGitHub) SetJSONPages(path string, pages ...any) {
	bodies := make([]string, len(pages))
	for i, p := range pages {
		b, err := json.Marshal(p)
		if err != nil {
			panic(fmt.Sprintf("marshal page %d: %v", i+1, err))
		}
		bodies[i] = string(b)
	}
	m.SetPages(path, bodies...)
}

// RequestCount returns the number of requests made to the server.
func (m *MockGitHub) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made to path.
func (m *MockGitHub) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastAuthorization returns the Authorization header of the last request.
func (m *MockGitHub) LastAuthorization() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastAuth
}

// Repo builds a repository listing item the way the orgs/{org}/repos
// endpoint returns it, with URLs pointing at the mock server.
func (m *MockGitHub) Repo(org, name string, fork bool, size int) map[string]any {
	base := fmt.Sprintf("%s/repos/%s/%s", m.server.URL, org, name)
	return map[string]any{
		"name":             name,
		"full_name":        org + "/" + name,
		"fork":             fork,
		"size":             size,
		"contributors_url": base + "/contributors",
		"languages_url":    base + "/languages",
	}
}

// Contributor builds a contributors item.
func Contributor(login string, contributions int) map[string]any {
	return map[string]any{
		"login":         login,
		"type":          "User",
		"contributions": contributions,
	}
}

// NewNotFoundResponse creates a 404 response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"message":"Not Found"}`,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message":"Server Error"}`,
	}
}

// NewRateLimitResponse creates a 403 response with an exhausted quota.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message":"API rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
		},
	}
}
