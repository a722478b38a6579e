// Package seencache deduplicates certificate fingerprints within a bounded
// time window so a sink never indexes the same leaf twice because a
// fetcher retried an overlapping range.
package seencache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is safe for concurrent use by multiple per-log monitors sharing one
// fingerprint space.
type Cache struct {
	mu    sync.Mutex
	inner *expirable.LRU[string, struct{}]
}

// New returns a Cache holding up to size fingerprints, each expiring ttl
// after insertion.
func New(size int, ttl time.Duration) *Cache {
	return &Cache{
		inner: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// CheckAndInsert reports whether fingerprint was already present and, if it
// was not, inserts it. The check and insert happen under a single
// lock so two goroutines racing on the same fingerprint never both see
// "not seen".
func (c *Cache) CheckAndInsert(fingerprint string) (alreadySeen bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, alreadySeen = c.inner.Get(fingerprint)
	if !alreadySeen {
		c.inner.Add(fingerprint, struct{}{})
	}
	return alreadySeen
}

// Len returns the number of fingerprints currently tracked.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
