// Package cache provides the query-embedding and query-result caches that
// sit in front of C3 and C9 respectively.
//
// Grounded on Tributary-ai-services-tas-agent-builder's cacheServiceImpl: a
// Redis-backed cache that degrades to an in-process map whenever Redis is
// absent or erroring, rather than failing the request. Unlike that example,
// each cache here is typed (vectors / retrieval results) instead of opaque
// []byte, so callers never marshal by hand.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const embeddingCachePrefix = "ec"

// EmbeddingCache caches query embedding vectors keyed by normalized query
// hash, avoiding a redundant embedding-provider call for repeated or
// near-repeated questions. Thread-safe; entries auto-expire after TTL.
type EmbeddingCache struct {
	mu     sync.RWMutex
	mem    map[string]embeddingEntry
	redis  *redis.Client
	ttl    time.Duration
	stopCh chan struct{}
}

type embeddingEntry struct {
	vec       []float32
	expiresAt time.Time
}

// NewEmbeddingCache creates an in-process-only EmbeddingCache.
func NewEmbeddingCache(ttl time.Duration) *EmbeddingCache {
	c := &EmbeddingCache{
		mem:    make(map[string]embeddingEntry),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// NewEmbeddingCacheRedis wraps client as the primary store, falling back to
// the in-process map on any Redis error (client unreachable, timeout, etc).
func NewEmbeddingCacheRedis(client *redis.Client, ttl time.Duration) *EmbeddingCache {
	c := NewEmbeddingCache(ttl)
	c.redis = client
	return c
}

// Get returns a cached embedding vector for query, if present and unexpired.
func (c *EmbeddingCache) Get(ctx context.Context, query string) ([]float32, bool) {
	key := embeddingQueryHash(query)

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var vec []float32
			if jsonErr := json.Unmarshal(data, &vec); jsonErr == nil {
				return vec, true
			}
			c.redis.Del(ctx, key)
			return nil, false
		case err == redis.Nil:
			return nil, false
		default:
			slog.Warn("embedding cache redis get failed, falling back to memory", "error", err)
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
	return entry.vec, true
}

// Set stores query's embedding vector.
func (c *EmbeddingCache) Set(ctx context.Context, query string, vec []float32) {
	key := embeddingQueryHash(query)

	if c.redis != nil {
		if data, err := json.Marshal(vec); err == nil {
			if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err == nil {
				return
			}
			slog.Warn("embedding cache redis set failed, falling back to memory")
		}
	}

	c.mu.Lock()
	c.mem[key] = embeddingEntry{vec: vec, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Len returns the number of in-process entries (Redis entries are not
// counted; they expire on their own via TTL).
func (c *EmbeddingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mem)
}

// Stop halts the background cleanup goroutine.
func (c *EmbeddingCache) Stop() {
	close(c.stopCh)
}

func (c *EmbeddingCache) cleanup() {
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

// embeddingQueryHash returns a deterministic cache key for a query string,
// normalizing by lowercasing and trimming whitespace before hashing.
func embeddingQueryHash(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s:%x", embeddingCachePrefix, h[:16])
}
