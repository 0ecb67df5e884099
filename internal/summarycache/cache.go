package summarycache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xxxsen/maildigest/internal/model"
)

// Cache maps a content fingerprint to a previously obtained summary. Only
// successful results ever enter the cache; an expired entry is logically
// absent even before the backing store evicts it.
type Cache interface {
	Get(fingerprint string) (*model.SummaryResult, bool)
	Put(fingerprint string, result *model.SummaryResult, ttl time.Duration)
}

type cacheEntry struct {
	result     *model.SummaryResult
	insertedAt time.Time
	expiresAt  time.Time
}

type memoryCache struct {
	lru *expirable.LRU[string, cacheEntry]
	now func() time.Time
}

type MemoryOption func(*memoryCache)

// WithNow injects the clock, for expiry tests.
func WithNow(now func() time.Time) MemoryOption {
	return func(c *memoryCache) { c.now = now }
}

// NewMemory builds the in-process cache. maxEntries bounds the store with
// LRU eviction; maxTTL is the upper bound the backing store enforces on top
// of each entry's own expiry.
func NewMemory(maxEntries int, maxTTL time.Duration, opts ...MemoryOption) Cache {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	c := &memoryCache{
		lru: expirable.NewLRU[string, cacheEntry](maxEntries, nil, maxTTL),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *memoryCache) Get(fingerprint string) (*model.SummaryResult, bool) {
	entry, ok := c.lru.Get(fingerprint)
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.lru.Remove(fingerprint)
		return nil, false
	}
	return entry.result, true
}

func (c *memoryCache) Put(fingerprint string, result *model.SummaryResult, ttl time.Duration) {
	if result == nil || !result.Success || ttl <= 0 {
		return
	}
	now := c.now()
	c.lru.Add(fingerprint, cacheEntry{
		result:     result,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	})
}

type disabledCache struct{}

// Disabled returns a no-op cache for deployments with caching switched off.
func Disabled() Cache {
	return disabledCache{}
}

func (disabledCache) Get(string) (*model.SummaryResult, bool) { return nil, false }

func (disabledCache) Put(string, *model.SummaryResult, time.Duration) {}
