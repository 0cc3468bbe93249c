//go:build integration

// Integration tests for the redis-backed completion cache and document lock.
// Tests require Docker and are gated behind the "integration" build tag.
package integration_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aman-ankur/labextract/internal/config"
	"github.com/aman-ankur/labextract/internal/infrastructure/database/redis"
	"github.com/aman-ankur/labextract/internal/infrastructure/llm"
	"github.com/aman-ankur/labextract/internal/testutil"
)

// startRedis launches a redis 7 container and returns a connected client.
func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	cfg := &config.RedisConfig{
		Enabled:      true,
		Addr:         host + ":" + port.Port(),
		DB:           0,
		KeyPrefix:    "labextract-test",
		DefaultTTL:   time.Minute,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	client, err := redis.NewClient(cfg, testutil.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(ctx))
	return client
}

// countingClient records how many completions reach the real transport.
type countingClient struct {
	calls atomic.Int64
	text  string
}

func (c *countingClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.calls.Add(1)
	return llm.CompletionResponse{Text: c.text, Model: c.Model(), InputTokens: 10, OutputTokens: 5}, nil
}

func (c *countingClient) Model() string { return "counting-model" }

func TestCache_SetGetDelete(t *testing.T) {
	client := startRedis(t)
	cache := redis.NewCache(client, testutil.NewMockLogger(), redis.WithPrefix("cache"), redis.WithDefaultTTL(time.Minute))
	ctx := context.Background()

	type payload struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}

	require.NoError(t, cache.Set(ctx, "glucose", payload{Name: "Glucose", Value: 95}, time.Minute))

	var got payload
	require.NoError(t, cache.Get(ctx, "glucose", &got))
	assert.Equal(t, "Glucose", got.Name)
	assert.Equal(t, 95.0, got.Value)

	ok, err := cache.Exists(ctx, "glucose")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cache.Delete(ctx, "glucose"))
	ok, err = cache.Exists(ctx, "glucose")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_GetOrSetLoadsOnce(t *testing.T) {
	client := startRedis(t)
	cache := redis.NewCache(client, testutil.NewMockLogger(), redis.WithPrefix("loader"))
	ctx := context.Background()

	var loads atomic.Int64
	loader := func(ctx context.Context) (interface{}, error) {
		loads.Add(1)
		return "loaded", nil
	}

	for i := 0; i < 3; i++ {
		var got string
		require.NoError(t, cache.GetOrSet(ctx, "once", &got, time.Minute, loader))
		assert.Equal(t, "loaded", got)
	}
	assert.Equal(t, int64(1), loads.Load())
}

func TestCachedClient_SecondCallHitsCache(t *testing.T) {
	client := startRedis(t)
	cache := redis.NewCache(client, testutil.NewMockLogger(), redis.WithPrefix("llm"))

	inner := &countingClient{text: `{"biomarkers": []}`}
	cached := llm.NewCachedClient(inner, cache, time.Minute, testutil.NewMockLogger(), nil)

	ctx := context.Background()
	req := llm.CompletionRequest{
		System:    "extract biomarkers",
		Prompt:    "Glucose: 95 mg/dL",
		MaxTokens: 256,
	}

	first, err := cached.Complete(ctx, req)
	require.NoError(t, err)
	second, err := cached.Complete(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, int64(1), inner.calls.Load(), "second call must be served from cache")

	// A different prompt is a different cache key.
	req.Prompt = "Cholesterol: 210 mg/dL"
	_, err = cached.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestDocumentLock_MutualExclusion(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	first := redis.NewDocumentLock(client, "doc-42", testutil.NewMockLogger(), redis.WithWatchdog(false))
	second := redis.NewDocumentLock(client, "doc-42", testutil.NewMockLogger(),
		redis.WithWatchdog(false), redis.WithRetryCount(1), redis.WithRetryDelay(10*time.Millisecond))

	require.NoError(t, first.Lock(ctx))

	ok, err := second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not acquire a held lock")

	// Only the holder can release.
	assert.Error(t, second.Unlock(ctx))
	require.NoError(t, first.Unlock(ctx))

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock(ctx))
}

func TestDocumentLock_Extend(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	lock := redis.NewDocumentLock(client, "doc-ttl", testutil.NewMockLogger(),
		redis.WithWatchdog(false), redis.WithLockTTL(2*time.Second))
	require.NoError(t, lock.Lock(ctx))
	defer func() { _ = lock.Unlock(ctx) }()

	ok, err := lock.Extend(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := lock.TTL(ctx)
	require.NoError(t, err)
	assert.Greater(t, ttl, 2*time.Second)
}
