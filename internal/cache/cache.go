package cache

import "github.com/brandon/otp-fetch/pkg/types"

// ResultCache stores the last successful fetch result per
// (target recipient, sender filter) key, bounded by a TTL configured at
// construction. Expired entries behave as absent on read.
type ResultCache interface {
	// Get returns the cached result for key, if present and unexpired.
	Get(key string) (types.FetchResult, bool)
	// Put stores result under key, replacing any existing entry.
	Put(key string, result types.FetchResult)
	// Close releases any resources held by the backend.
	Close() error
}
