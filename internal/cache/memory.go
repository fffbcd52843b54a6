package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/brandon/otp-fetch/pkg/types"
)

// maxEntries bounds the in-memory cache; one entry per
// (recipient, sender) pair keeps this far below the limit in practice.
const maxEntries = 1024

// MemoryCache is a process-local ResultCache backed by an expirable
// LRU. Suited to embedding the fetch engine in a long-running process.
type MemoryCache struct {
	lru *expirable.LRU[string, types.FetchResult]
}

// NewMemoryCache creates an in-memory cache whose entries expire ttl
// after being written.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		lru: expirable.NewLRU[string, types.FetchResult](maxEntries, nil, ttl),
	}
}

// Get returns the cached result for key, if present and unexpired
func (c *MemoryCache) Get(key string) (types.FetchResult, bool) {
	return c.lru.Get(key)
}

// Put stores result under key, replacing any existing entry
func (c *MemoryCache) Put(key string, result types.FetchResult) {
	c.lru.Add(key, result)
}

// Close is a no-op for the in-memory backend
func (c *MemoryCache) Close() error {
	return nil
}
