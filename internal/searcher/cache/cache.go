package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix     = "search:"
	generationKey = "search-generation"
)

// QueryCache stores search results in Redis under {namespace}search:{hash}
// and collapses concurrent misses for the same query into one computation.
// Any index mutation makes cached results stale; Invalidate drops them all.
//
// Every key hashes in the cache generation, which Invalidate increments. A
// result computed before an invalidation is stored under the old generation
// and is never served.
type QueryCache struct {
	client *pkgredis.Client
	prefix string
	genKey string
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(client *pkgredis.Client, namespace string, ttl time.Duration) *QueryCache {
	return &QueryCache{
		client: client,
		prefix: namespace + keyPrefix,
		genKey: namespace + generationKey,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get returns a cached result. TookMs is zeroed on a hit: the cached value
// measured a computation this request did not run.
func (c *QueryCache) Get(ctx context.Context, query string, partial bool, limit int) (*executor.SearchResult, bool) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Error("cache generation read failed", "error", err)
		c.misses.Add(1)
		return nil, false
	}
	return c.get(ctx, c.buildKey(gen, query, partial, limit), query)
}

func (c *QueryCache) get(ctx context.Context, key, query string) (*executor.SearchResult, bool) {
	data, found, err := c.client.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if !found {
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	result.TookMs = 0
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", query, "key", key)
	return &result, true
}

// Set stores result under the current generation. The caller must have
// computed it against the current index.
func (c *QueryCache) Set(ctx context.Context, query string, partial bool, limit int, result *executor.SearchResult) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Error("cache generation read failed", "error", err)
		return
	}
	c.set(ctx, c.buildKey(gen, query, partial, limit), result)
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs computeFn once per key
// across concurrent callers. The boolean reports a cache hit. When the cache
// generation cannot be read the result is computed and not stored.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	partial bool,
	limit int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Error("cache generation read failed", "error", err)
		c.misses.Add(1)
		result, err := computeFn()
		return result, false, err
	}
	key := c.buildKey(gen, query, partial, limit)
	if result, ok := c.get(ctx, key, query); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate moves the cache to a new generation and deletes the entries of
// earlier ones.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	gen, err := c.client.Incr(ctx, c.genKey)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	deleted, err := c.client.FlushByPattern(ctx, c.prefix)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "generation", gen, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// generation reads the current cache generation; a missing counter is 0.
func (c *QueryCache) generation(ctx context.Context) (int64, error) {
	val, found, err := c.client.Get(ctx, c.genKey)
	if err != nil || !found {
		return 0, err
	}
	gen, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cache generation %q: %w", val, err)
	}
	return gen, nil
}

func (c *QueryCache) buildKey(gen int64, query string, partial bool, limit int) string {
	raw := fmt.Sprintf("%d|%s|partial=%t|limit=%d", gen, normalizeQuery(query), partial, limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", c.prefix, hash[:16])
}

// normalizeQuery folds case and whitespace only. Term order is kept because
// results carry the query tokens in order.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
