package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelrag/sentinel/internal/retrieval"
)

const queryCachePrefix = "qc"

// QueryCache caches ranked, already-redacted retrieval.Result slices keyed
// by (tenantID, userID, query, k, expandParents), so a repeated question
// from the same user skips C3/C6/C4 entirely. Backed by Redis when
// available, falling back to an in-process map otherwise.
type QueryCache struct {
	mu     sync.RWMutex
	mem    map[string]queryCacheEntry
	redis  *redis.Client
	ttl    time.Duration
	stopCh chan struct{}
}

type queryCacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// New creates an in-process-only QueryCache.
func New(ttl time.Duration) *QueryCache {
	c := &QueryCache{
		mem:    make(map[string]queryCacheEntry),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// NewRedis wraps client as the primary store, falling back to the
// in-process map on any Redis error.
func NewRedis(client *redis.Client, ttl time.Duration) *QueryCache {
	c := New(ttl)
	c.redis = client
	return c
}

// Get returns cached results for the given query shape, if present.
func (c *QueryCache) Get(ctx context.Context, tenantID, userID, query string, k int, expandParents bool) ([]retrieval.Result, bool) {
	key := queryCacheKey(tenantID, userID, query, k, expandParents)

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var results []retrieval.Result
			if jsonErr := json.Unmarshal(data, &results); jsonErr == nil {
				return results, true
			}
			c.redis.Del(ctx, key)
			return nil, false
		case err == redis.Nil:
			return nil, false
		default:
			slog.Warn("query cache redis get failed, falling back to memory", "error", err)
		}
	}

	c.mu.RLock()
	entry, ok := c.mem[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.mem, key)
		c.mu.Unlock()
		return nil, false
	}
	var results []retrieval.Result
	if err := json.Unmarshal(entry.data, &results); err != nil {
		return nil, false
	}
	return results, true
}

// Set stores results for the given query shape.
func (c *QueryCache) Set(ctx context.Context, tenantID, userID, query string, k int, expandParents bool, results []retrieval.Result) {
	key := queryCacheKey(tenantID, userID, query, k, expandParents)
	data, err := json.Marshal(results)
	if err != nil {
		slog.Warn("query cache marshal failed", "error", err)
		return
	}

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err == nil {
			return
		}
		slog.Warn("query cache redis set failed, falling back to memory")
	}

	c.mu.Lock()
	c.mem[key] = queryCacheEntry{data: data, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// InvalidateUser drops every cached result for userID, so that a caller can
// discard answers made stale by an index update. No code path in the server
// calls it; cached results otherwise expire only by TTL.
func (c *QueryCache) InvalidateUser(ctx context.Context, userID string) {
	if c.redis != nil {
		pattern := fmt.Sprintf("%s:*:%s:*", queryCachePrefix, userID)
		var cursor uint64
		for {
			keys, next, err := c.redis.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				break
			}
			if len(keys) > 0 {
				c.redis.Del(ctx, keys...)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}

	needle := ":" + userID + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.mem {
		if strings.Contains(key, needle) {
			delete(c.mem, key)
		}
	}
}

// Len returns the number of in-process entries.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mem)
}

// Stop halts the background cleanup goroutine.
func (c *QueryCache) Stop() {
	close(c.stopCh)
}

func (c *QueryCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.mem {
				if now.After(entry.expiresAt) {
					delete(c.mem, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

// queryCacheKey builds "qc:{tenantID}:{userID}:{k}:{expandParents}:{hash(query)}".
func queryCacheKey(tenantID, userID, query string, k int, expandParents bool) string {
	h := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%s:%s:%s:%d:%v:%s", queryCachePrefix, tenantID, userID, k, expandParents, hex.EncodeToString(h[:8]))
}
