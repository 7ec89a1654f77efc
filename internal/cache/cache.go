// Package cache stores fetched OpenAPI documents so that processes sharing a
// backend download each service schema once.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Static errors for err113 compliance.
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrExpired     = errors.New("entry expired")
)

// Entry is a cached payload.
type Entry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry. A zero ExpiresAt
// never expires.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Cache is implemented by every backend.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Has(ctx context.Context, key string) bool
}

type memoryItem struct {
	entry *Entry
	used  uint64
}

// MemoryCache is a bounded in-process cache. When full, expired entries are
// dropped first, then the least recently used one.
type MemoryCache struct {
	mu      sync.RWMutex
	items   map[string]*memoryItem
	clock   uint64
	maxSize int
}

// NewMemoryCache creates a memory cache holding at most maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1
	}

	return &MemoryCache{
		items:   make(map[string]*memoryItem),
		maxSize: maxSize,
	}
}

// Get returns a copy of the entry stored under key and marks it used.
func (c *MemoryCache) Get(ctx context.Context, key string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return nil, ErrKeyNotFound
	}

	if item.entry.Expired(time.Now()) {
		delete(c.items, key)

		return nil, ErrExpired
	}

	c.clock++
	item.used = c.clock

	entry := *item.entry

	return &entry, nil
}

// Set stores a copy of entry.
func (c *MemoryCache) Set(ctx context.Context, key string, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.dropExpired(time.Now())

		if len(c.items) >= c.maxSize {
			c.evictLeastRecentlyUsed()
		}
	}

	c.clock++
	stored := *entry
	c.items[key] = &memoryItem{entry: &stored, used: c.clock}

	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)

	return nil
}

// Clear removes every entry.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*memoryItem)

	return nil
}

// Has reports whether a live entry exists for key.
func (c *MemoryCache) Has(ctx context.Context, key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]

	return ok && !item.entry.Expired(time.Now())
}

func (c *MemoryCache) dropExpired(now time.Time) {
	for key, item := range c.items {
		if item.entry.Expired(now) {
			delete(c.items, key)
		}
	}
}

func (c *MemoryCache) evictLeastRecentlyUsed() {
	var (
		lruKey  string
		lruUsed uint64
	)

	for key, item := range c.items {
		if lruKey == "" || item.used < lruUsed {
			lruKey = key
			lruUsed = item.used
		}
	}

	delete(c.items, lruKey)
}
