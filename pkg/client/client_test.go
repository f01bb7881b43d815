package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/gh-contrib-collector/internal/testutil"
	"github.com/Sternrassler/gh-contrib-collector/pkg/ratelimit"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Equal(t, "token is required", err.Error())

	c, err := New(Config{Token: "t"})
	require.NoError(t, err)
	assert.Equal(t, DefaultUserAgent, c.config.UserAgent)
	assert.Equal(t, DefaultTimeout, c.config.Timeout)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("secret")

	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestFetchPage_SendsHeaders(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()

	var ua, accept string
	mock.SetHandler("/orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
		w.Write([]byte(`[]`))
	})

	c, err := New(Config{Token: "secret-token", UserAgent: "test/1.0"})
	require.NoError(t, err)

	_, err = c.FetchPage(context.Background(), mock.URL()+"/orgs/acme/repos?per_page=100")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", mock.LastAuthorization())
	assert.Equal(t, "test/1.0", ua)
	assert.Equal(t, "application/vnd.github+json", accept)
}

func TestFetchPage_DecodesArrayAndLink(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()

	mock.SetPages("/repos/acme/api/contributors",
		`[{"login":"a","contributions":3}, {"login":"b","contributions":1}]`,
		`[{"login":"c","contributions":9}]`,
	)

	c, err := New(DefaultConfig("t"))
	require.NoError(t, err)

	page, err := c.FetchPage(context.Background(), mock.URL()+"/repos/acme/api/contributors?per_page=100")
	require.NoError(t, err)

	require.Len(t, page.Items, 2)
	assert.JSONEq(t, `{"login":"a","contributions":3}`, string(page.Items[0]))
	assert.Contains(t, page.Link, `rel="next"`)
}

func TestFetchPage_ObjectBodyIsSingleItem(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()

	mock.SetResponse("/repos/acme/api/languages", okResponse(`{"Go": 1200, "Shell": 30}`))

	c, err := New(DefaultConfig("t"))
	require.NoError(t, err)

	page, err := c.FetchPage(context.Background(), mock.URL()+"/repos/acme/api/languages")
	require.NoError(t, err)

	require.Len(t, page.Items, 1)
	assert.JSONEq(t, `{"Go": 1200, "Shell": 30}`, string(page.Items[0]))
}

func TestFetchPage_NoContent(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()

	mock.SetResponse("/repos/acme/empty/contributors", testutil.MockResponse{StatusCode: http.StatusNoContent})

	c, err := New(DefaultConfig("t"))
	require.NoError(t, err)

	page, err := c.FetchPage(context.Background(), mock.URL()+"/repos/acme/empty/contributors")
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestFetchPage_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		resp   testutil.MockResponse
		status int
		class  ErrorClass
	}{
		{"not found", testutil.NewNotFoundResponse(), 404, ErrorClassClient},
		{"server error", testutil.NewServerErrorResponse(), 500, ErrorClassServer},
		{"quota exhausted", testutil.NewRateLimitResponse(), 403, ErrorClassRateLimit},
		{"too many requests", testutil.MockResponse{StatusCode: http.StatusTooManyRequests}, 429, ErrorClassRateLimit},
		{"not json", okResponse(`<html>`), 200, ErrorClassDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockGitHub()
			defer mock.Close()
			mock.SetResponse("/x", tt.resp)

			c, err := New(DefaultConfig("t"))
			require.NoError(t, err)

			_, err = c.FetchPage(context.Background(), mock.URL()+"/x")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.class, apiErr.ErrorClass)

			class, ok := ClassOf(err)
			assert.True(t, ok)
			assert.Equal(t, tt.class, class)
		})
	}
}

func TestFetchPage_NetworkError(t *testing.T) {
	mock := testutil.NewMockGitHub()
	url := mock.URL() + "/x"
	mock.Close()

	c, err := New(DefaultConfig("t"))
	require.NoError(t, err)

	_, err = c.FetchPage(context.Background(), url)
	require.Error(t, err)

	class, ok := ClassOf(err)
	assert.True(t, ok)
	assert.Equal(t, ErrorClassNetwork, class)
}

func TestFetchPage_ObservesRateLimits(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()
	mock.SetResponse("/x", okResponse(`[]`))

	tracker := ratelimit.NewTracker(nil, zerolog.Nop())
	cfg := DefaultConfig("t")
	cfg.RateLimits = tracker

	c, err := New(cfg)
	require.NoError(t, err)

	_, err = c.FetchPage(context.Background(), mock.URL()+"/x")
	require.NoError(t, err)

	state := tracker.State()
	require.NotNil(t, state)
	assert.Equal(t, 4999, state.Remaining)
	assert.Equal(t, 5000, state.Limit)
}

func TestDecodeItems(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"whitespace", " \n", 0, false},
		{"empty array", "[]", 0, false},
		{"array", `[1, {"a":2}, "x"]`, 3, false},
		{"object", `{"Go": 1}`, 1, false},
		{"broken object", `{"Go": `, 0, true},
		{"broken array", `[1,`, 0, true},
		{"scalar", `42`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := decodeItems([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	withCause := &APIError{URL: "u", StatusCode: 0, ErrorClass: ErrorClassNetwork, Message: "request failed", Err: errors.New("dial tcp")}
	assert.Equal(t, "github network error (status 0) for u: request failed: dial tcp", withCause.Error())

	plain := &APIError{URL: "u", StatusCode: 404, ErrorClass: ErrorClassClient, Message: "Not Found"}
	assert.Equal(t, "github client error (status 404) for u: Not Found", plain.Error())

	_, ok := ClassOf(errors.New("other"))
	assert.False(t, ok)
}

// okResponse is a 200 response with body.
func okResponse(body string) testutil.MockResponse {
	return testutil.MockResponse{StatusCode: http.StatusOK, Body: body}
}
