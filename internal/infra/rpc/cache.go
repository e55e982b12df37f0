package rpc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/paulpham157/neptune-fetcher/internal/metrics"
)

// PageCache stores encoded responses by key.
type PageCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Purge deletes every key starting with prefix.
	Purge(ctx context.Context, prefix string) (int, error)
}

// CacheConfig configures a CachingQuerier.
type CacheConfig struct {
	TTL    time.Duration
	Prefix string
}

// cachedPage is the msgpack envelope stored in the cache.
type cachedPage struct {
	Operation string    `msgpack:"op"`
	Body      []byte    `msgpack:"body"`
	FetchedAt time.Time `msgpack:"fetched_at"`
}

// CachingQuerier serves repeated identical queries from a PageCache.
// Only successful responses are cached. Cache failures are logged and
// bypassed; they never fail a query.
type CachingQuerier struct {
	next  Querier
	cache PageCache
	cfg   CacheConfig
}

// NewCachingQuerier wraps next with a response cache.
func NewCachingQuerier(next Querier, cache PageCache, cfg CacheConfig) *CachingQuerier {
	if cfg.Prefix == "" {
		cfg.Prefix = "fetcher"
	}
	return &CachingQuerier{next: next, cache: cache, cfg: cfg}
}

func (c *CachingQuerier) Query(ctx context.Context, op Operation, out any) error {
	key, err := CacheKey(c.cfg.Prefix, op)
	if err != nil {
		return c.next.Query(ctx, op, out)
	}

	data, found, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		slog.Warn("Page cache lookup failed", "operation", op.Name, "error", err)
	case found:
		var page cachedPage
		if err := msgpack.Unmarshal(data, &page); err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return json.Unmarshal(page.Body, out)
		}
		metrics.CacheLookups.WithLabelValues("error").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	var raw json.RawMessage
	if err := c.next.Query(ctx, op, &raw); err != nil {
		return err
	}

	encoded, err := msgpack.Marshal(cachedPage{Operation: op.Name, Body: raw, FetchedAt: time.Now().UTC()})
	if err == nil {
		if err := c.cache.Set(ctx, key, encoded, c.cfg.TTL); err != nil {
			slog.Warn("Page cache store failed", "operation", op.Name, "error", err)
		}
	}

	return json.Unmarshal(raw, out)
}

// Purge drops every page cached under the configured prefix.
func (c *CachingQuerier) Purge(ctx context.Context) (int, error) {
	n, err := c.cache.Purge(ctx, c.cfg.Prefix+":page:")
	if err != nil {
		return n, fmt.Errorf("purge page cache: %w", err)
	}
	return n, nil
}

// CacheKey derives a stable key from the operation path and body.
func CacheKey(prefix string, op Operation) (string, error) {
	body, err := json.Marshal(op.Body)
	if err != nil {
		return "", fmt.Errorf("marshal cache key: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(op.Path))
	h.Write([]byte{0})
	h.Write(body)
	return fmt.Sprintf("%s:page:%s", prefix, hex.EncodeToString(h.Sum(nil))), nil
}
