package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PageCache stores fully rendered response bodies for a short fixed TTL,
// keyed by request path plus query string. Redis is preferred when a client
// is provided; otherwise a process-local map with the same expiry semantics
// is used. Entries move absent -> fresh on Put and fresh -> expired once the
// TTL elapses; expired entries read as absent.
type PageCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	mu    sync.RWMutex
	local map[string]pageEntry
}

type pageEntry struct {
	body      []byte
	expiresAt time.Time
}

// NewPageCache creates a PageCache with the given key prefix and TTL.
// client may be nil for a purely in-memory cache.
func NewPageCache(client *redis.Client, prefix string, ttl time.Duration) *PageCache {
	if ttl <= 0 {
		ttl = 20 * time.Second
	}
	return &PageCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// TTL returns the fixed entry lifetime.
func (c *PageCache) TTL() time.Duration { return c.ttl }

// Get returns the cached body for a key when the entry is still fresh.
func (c *PageCache) Get(key string) ([]byte, bool) {
	if c.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		b, err := c.client.Get(ctx, c.prefix+key).Bytes()
		if err != nil {
			return nil, false
		}
		return b, true
	}

	c.mu.RLock()
	entry, ok := c.local[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		// Expired reads as absent; the entry is dropped lazily.
		c.mu.Lock()
		delete(c.local, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.body, true
}

// Put stores a rendered body under the key for the cache TTL. Concurrent
// writers race benignly; last write wins.
func (c *PageCache) Put(key string, body []byte) {
	if c.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.client.Set(ctx, c.prefix+key, body, c.ttl).Err(); err != nil {
			Sugar.Warnf("page cache set failed key=%s err=%v", key, err)
		}
		return
	}

	c.mu.Lock()
	if c.local == nil {
		c.local = make(map[string]pageEntry)
	}
	now := time.Now()
	// Sweep expired entries so per-viewer and query-string keys cannot grow
	// the map beyond the set that is still fresh.
	for k, e := range c.local {
		if now.After(e.expiresAt) {
			delete(c.local, k)
		}
	}
	c.local[key] = pageEntry{body: body, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}

// Clear drops every entry under the cache prefix. Used by administrative
// hooks and tests.
func (c *PageCache) Clear() {
	if c.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		var cursor uint64
		for i := 0; i < 10; i++ { // limit rounds to avoid long loops
			keys, cur, err := c.client.Scan(ctx, cursor, c.prefix+"*", 1000).Result()
			if err != nil {
				break
			}
			cursor = cur
			if len(keys) > 0 {
				pipe := c.client.Pipeline()
				for _, k := range keys {
					pipe.Del(ctx, k)
				}
				_, _ = pipe.Exec(ctx)
			}
			if cursor == 0 {
				break
			}
		}
		return
	}

	c.mu.Lock()
	c.local = nil
	c.mu.Unlock()
}
