package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aman-ankur/labextract/internal/extraction/common"
	"github.com/aman-ankur/labextract/internal/infrastructure/database/redis"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
)

// cachedClient serves identical completion requests from redis. Lab
// reports get re-submitted often (retries, reprocessing runs), and a
// temperature-zero completion for the same prompt is stable, so replaying
// it is safe and skips the billed call.
type cachedClient struct {
	inner   Client
	cache   redis.Cache
	ttl     time.Duration
	logger  logging.Logger
	metrics common.Metrics
}

var _ Client = (*cachedClient)(nil)

// NewCachedClient wraps inner with a redis lookaside cache. Cache failures
// degrade to the uncached path, never to a request failure.
func NewCachedClient(inner Client, cache redis.Cache, ttl time.Duration, logger logging.Logger, metrics common.Metrics) Client {
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}
	return &cachedClient{
		inner:   inner,
		cache:   cache,
		ttl:     ttl,
		logger:  logging.OrNop(logger).Named("llmcache"),
		metrics: metrics,
	}
}

func (c *cachedClient) Model() string { return c.inner.Model() }

func (c *cachedClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	key := completionKey(c.inner.Model(), req)

	var cached CompletionResponse
	err := c.cache.Get(ctx, key, &cached)
	if err == nil {
		c.metrics.RecordCacheAccess(ctx, true)
		return cached, nil
	}
	if err != redis.ErrCacheMiss {
		c.logger.Warn("completion cache unavailable, calling service directly", logging.Err(err))
	}
	c.metrics.RecordCacheAccess(ctx, false)

	resp, err := c.inner.Complete(ctx, req)
	if err != nil {
		return CompletionResponse{}, err
	}
	if setErr := c.cache.Set(ctx, key, resp, c.ttl); setErr != nil {
		c.logger.Warn("completion cache write failed", logging.Err(setErr))
	}
	return resp, nil
}

// completionKey hashes everything that shapes the response. Any prompt or
// parameter change must produce a new key.
func completionKey(model string, req CompletionRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d\x00%g", model, req.System, req.Prompt, req.MaxTokens, req.Temperature)
	return "completion:" + hex.EncodeToString(h.Sum(nil))
}
