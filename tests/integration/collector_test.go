//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/gh-contrib-collector/internal/testutil"
	"github.com/Sternrassler/gh-contrib-collector/pkg/cache"
	"github.com/Sternrassler/gh-contrib-collector/pkg/client"
	"github.com/Sternrassler/gh-contrib-collector/pkg/collector"
	"github.com/Sternrassler/gh-contrib-collector/pkg/logging"
	"github.com/Sternrassler/gh-contrib-collector/pkg/pagination"
	"github.com/Sternrassler/gh-contrib-collector/pkg/ratelimit"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// newCollector wires the full stack against mock with a Redis ledger and
// Redis-backed rate limit state.
func newCollector(t *testing.T, mock *testutil.MockGitHub, redisClient *redis.Client, dir string) (*collector.Collector, *ratelimit.Tracker) {
	t.Helper()

	tracker := ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))
	cfg := client.DefaultConfig("integration-token")
	cfg.RateLimits = tracker

	ghClient, err := client.New(cfg)
	require.NoError(t, err)

	store, err := cache.NewStore(
		pagination.New(ghClient, pagination.DefaultConfig()),
		cache.Config{Dir: dir, Ledger: cache.NewRedisLedger(redisClient, "")},
	)
	require.NoError(t, err)

	colCfg := collector.DefaultConfig("acme")
	colCfg.APIURL = mock.URL()
	col, err := collector.New(store, colCfg)
	require.NoError(t, err)

	return col, tracker
}

// TestFullRunFlow tests listing → dispatch → workers → cache → ledger, then
// a second, fully offline run.
func TestFullRunFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGitHub()
	defer mock.Close()

	mock.SetJSONPages("/orgs/acme/repos", []any{
		mock.Repo("acme", "A", false, 10),
		mock.Repo("acme", "B", true, 5),
		mock.Repo("acme", "C", false, 0),
	})
	mock.SetJSONPages("/repos/acme/A/contributors",
		[]any{testutil.Contributor("alice", 5)},
		[]any{testutil.Contributor("bob", 2)},
	)

	ctx := context.Background()
	dir := t.TempDir()
	col, tracker := newCollector(t, mock, redisClient, dir)

	summary, err := col.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"C"}, summary.Report.SkippedEmpty)
	assert.Equal(t, []collector.LoginTotal{
		{Login: "alice", Contributions: 5, Repos: 1},
		{Login: "bob", Contributions: 2, Repos: 1},
	}, summary.Contributors)
	assert.Equal(t, 3, mock.RequestCount(), "one listing page and two contributor pages")

	members, err := redisClient.SMembers(ctx, cache.DefaultLedgerKey).Result()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		cache.KeyFor(col.ListingURL()).String(),
		cache.KeyFor(mock.URL() + "/repos/acme/A/contributors").String(),
	}, members)

	shared, err := tracker.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, shared)
	assert.Equal(t, 4999, shared.Remaining)

	mock.Reset()
	again, err := col.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, mock.RequestCount())
	assert.Equal(t, summary.Contributors, again.Contributors)
}

// TestInterruptedFetchIsRepeated verifies that a collection that failed
// mid-run is fetched again while completed ones are replayed.
func TestInterruptedFetchIsRepeated(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockGitHub()
	defer mock.Close()

	mock.SetJSONPages("/orgs/acme/repos", []any{mock.Repo("acme", "A", false, 10)})
	mock.SetResponse("/repos/acme/A/contributors", testutil.NewServerErrorResponse())

	ctx := context.Background()
	col, _ := newCollector(t, mock, redisClient, t.TempDir())

	summary, err := col.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Stats.Failed)

	mock.SetJSONPages("/repos/acme/A/contributors", []any{testutil.Contributor("alice", 1)})
	mock.Reset()

	summary, err = col.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(0), summary.Stats.Failed)
	assert.Equal(t, 0, mock.PathCount("/orgs/acme/repos"), "listing replayed")
	assert.Equal(t, 1, mock.PathCount("/repos/acme/A/contributors"), "contributors fetched again")
	assert.Equal(t, []collector.LoginTotal{{Login: "alice", Contributions: 1, Repos: 1}}, summary.Contributors)
}
