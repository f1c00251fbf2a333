package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prepmind/prepmind-backend/internal/logger"
)

type memoryEntry struct {
	val       []byte
	expiresAt time.Time
}

type memoryCache struct {
	log *logger.Logger

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryCache(log *logger.Logger) Cache {
	return &memoryCache{
		log:     log.With("service", "MemoryCache"),
		entries: make(map[string]memoryEntry),
	}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, still := c.entries[key]; still && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.val, true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{val: val, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}
