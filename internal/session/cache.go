package session

import (
	"context"
	"sync"
	"time"
)

// Cache is a short-TTL lookaside over the session store. It holds only
// session metadata, never key material: the data key is unwrapped per
// request and must not outlive it.
type Cache interface {
	// Get returns the cached session and whether the entry was present
	// and fresh.
	Get(ctx context.Context, tokenHash string) (*Session, bool, error)
	Put(ctx context.Context, sess *Session) error
	Evict(ctx context.Context, tokenHash string) error
	// Reset drops every entry. Fired on bulk invalidation so a rotated-out
	// session cannot be served from cache for up to a TTL.
	Reset(ctx context.Context) error
}

type cacheEntry struct {
	sess     Session
	cachedAt time.Time
}

// MemoryCache is the single-process cache used when Redis is not
// configured. Stale entries are evicted lazily by the Get that finds them.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// MemoryCacheOption adjusts test-facing knobs.
type MemoryCacheOption func(*MemoryCache)

func WithMemoryCacheClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewMemoryCache(ttl time.Duration, opts ...MemoryCacheOption) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, tokenHash string) (*Session, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[tokenHash]
	if !ok {
		return nil, false, nil
	}
	if c.now().Sub(entry.cachedAt) > c.ttl {
		delete(c.entries, tokenHash)
		return nil, false, nil
	}
	copied := entry.sess
	return &copied, true, nil
}

func (c *MemoryCache) Put(_ context.Context, sess *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sess.TokenHash] = cacheEntry{sess: *sess, cachedAt: c.now()}
	return nil
}

func (c *MemoryCache) Evict(_ context.Context, tokenHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tokenHash)
	return nil
}

func (c *MemoryCache) Reset(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	return nil
}
