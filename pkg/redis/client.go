// Package redis adapts go-redis/v9 to the index store contract: string
// values, sets, counters, prefix scans and MULTI/EXEC batches. It also keeps
// the TTL get/set and pattern flush helpers used by the query cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/redis-fulltext/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	scanCount = 500
	delChunk  = 500
)

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// Batch records the writes of one Atomic call.
type Batch interface {
	Set(key, value string)
	Del(key string)
	Incr(key string)
	Decr(key string)
	SAdd(key, member string)
	SRem(key, member string)
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, apperrors.StoreUnavailable("ping", err)
	}
	return &Client{rdb: rdb}, nil
}

// New wraps an already configured go-redis client.
func New(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, apperrors.StoreUnavailable("exists "+key, err)
	}
	return n > 0, nil
}

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.StoreUnavailable("get "+key, err)
	}
	return val, true, nil
}

func (c *Client) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperrors.StoreUnavailable(fmt.Sprintf("mget %d keys", len(keys)), err)
	}
	for i, val := range vals {
		if s, ok := val.(string); ok {
			result[keys[i]] = s
		}
	}
	return result, nil
}

func (c *Client) SetMembersMany(ctx context.Context, keys ...string) ([][]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.StringSliceCmd, len(keys))
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.SMembers(ctx, key)
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, apperrors.StoreUnavailable(fmt.Sprintf("smembers %d keys", len(keys)), err)
	}
	members := make([][]string, len(keys))
	for i, cmd := range cmds {
		members[i] = cmd.Val()
	}
	return members, nil
}

func (c *Client) SetCardMany(ctx context.Context, keys ...string) ([]int64, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.IntCmd, len(keys))
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.SCard(ctx, key)
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, apperrors.StoreUnavailable(fmt.Sprintf("scard %d keys", len(keys)), err)
	}
	cards := make([]int64, len(keys))
	for i, cmd := range cmds {
		cards[i] = cmd.Val()
	}
	return cards, nil
}

// ScanPrefix collects every key starting with prefix using SCAN, so large
// keyspaces do not block the server the way KEYS would.
func (c *Client) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(prefix) + "*"
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.StoreUnavailable("scan "+pattern, err)
	}
	return keys, nil
}

// Del deletes keys in chunks.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	for start := 0; start < len(keys); start += delChunk {
		end := min(start+delChunk, len(keys))
		if err := c.rdb.Del(ctx, keys[start:end]...).Err(); err != nil {
			return apperrors.StoreUnavailable(fmt.Sprintf("del %d keys", end-start), err)
		}
	}
	return nil
}

// Atomic runs the batch inside MULTI/EXEC. Redis does not roll back the
// other commands of a transaction when one of them fails, so an error reply
// (WRONGTYPE, a non-integer counter) is reported as errors.ErrCorruptIndex:
// the keys it touched no longer hold what the index expects. Callers validate
// what they can before queueing writes.
func (c *Client) Atomic(ctx context.Context, fn func(b Batch)) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(&txBatch{ctx: ctx, pipe: pipe})
		return nil
	})
	if err == nil {
		return nil
	}
	if isReplyError(err) {
		return apperrors.CorruptIndex(err, "exec batch")
	}
	return apperrors.StoreUnavailable("exec batch", err)
}

// Incr increments key and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, apperrors.StoreUnavailable("incr "+key, err)
	}
	return n, nil
}

// SetWithTTL stores a value with the given TTL.
func (c *Client) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperrors.StoreUnavailable("set "+key, err)
	}
	return nil
}

// FlushByPattern scans for keys under prefix and deletes them, returning the
// number of keys removed.
func (c *Client) FlushByPattern(ctx context.Context, prefix string) (int64, error) {
	keys, err := c.ScanPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if err := c.Del(ctx, keys...); err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return apperrors.StoreUnavailable("ping", err)
	}
	return nil
}

type txBatch struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (b *txBatch) Set(key, value string)   { b.pipe.Set(b.ctx, key, value, 0) }
func (b *txBatch) Del(key string)          { b.pipe.Del(b.ctx, key) }
func (b *txBatch) Incr(key string)         { b.pipe.Incr(b.ctx, key) }
func (b *txBatch) Decr(key string)         { b.pipe.Decr(b.ctx, key) }
func (b *txBatch) SAdd(key, member string) { b.pipe.SAdd(b.ctx, key, member) }
func (b *txBatch) SRem(key, member string) { b.pipe.SRem(b.ctx, key, member) }

// isReplyError reports whether err is an error reply sent by the server, as
// opposed to a connection or protocol failure.
func isReplyError(err error) bool {
	if errors.Is(err, redis.Nil) {
		return false
	}
	var replyErr redis.Error
	return errors.As(err, &replyErr)
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
