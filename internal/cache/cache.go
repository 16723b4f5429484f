// Package cache memoizes expensive external calls (product search, LLM
// completions) by request fingerprint, with TTL expiry, a bounded LRU, and
// at-most-one concurrent computation per fingerprint.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	logx "github.com/shoppick/server/pkg/logger"
)

// Fingerprint builds a deterministic cache key from an operation kind and
// its normalized parameters. encoding/json emits map keys in sorted order,
// so equal parameter sets always hash identically.
func Fingerprint(kind string, params map[string]any) string {
	b, err := json.Marshal(params)
	if err != nil {
		// unhashable params fall back to a best-effort representation
		b = []byte(fmt.Sprint(params))
	}
	sum := sha256.Sum256(b)
	return kind + ":" + hex.EncodeToString(sum[:])[:16]
}

type entry struct {
	fingerprint string
	value       any
	expiresAt   time.Time
}

// Cache is a TTL cache with a bounded LRU. Concurrent GetOrCompute calls
// for the same fingerprint share one in-flight computation.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*list.Element // fingerprint -> *entry element
	order      *list.List               // front = most recently used
	maxEntries int
	defaultTTL time.Duration
	group      singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache. maxEntries <= 0 means the default bound of 1024.
func New(defaultTTL time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
	}
}

// GetOrCompute returns the cached value for fingerprint, or runs compute
// exactly once across concurrent callers and caches its result for ttl
// (the default TTL when ttl <= 0). Compute errors are returned unwrapped
// and never cached.
func (c *Cache) GetOrCompute(ctx context.Context, fingerprint string, ttl time.Duration, compute func(context.Context) (any, error)) (any, error) {
	if v, ok := c.get(fingerprint); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	v, err, shared := c.group.Do(fingerprint, func() (any, error) {
		// a concurrent caller may have populated the entry while this
		// goroutine waited on the flight group
		if v, ok := c.get(fingerprint); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.set(fingerprint, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logx.Debug().Str("fingerprint", fingerprint).Msg("Coalesced concurrent cache computation")
	}
	return v, nil
}

// Delete removes an entry. Returns whether it existed.
func (c *Cache) Delete(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[fingerprint]
	if !ok {
		return false
	}
	c.remove(elem)
	return true
}

// EvictExpired removes all expired entries and returns the count.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	evicted := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if e := elem.Value.(*entry); now.After(e.expiresAt) {
			c.remove(elem)
			evicted++
		}
		elem = prev
	}
	return evicted
}

// Len returns the live entry count, including not-yet-swept expired entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats reports cumulative hit/miss counters for health probes.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) get(fingerprint string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.remove(elem)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return e.value, true
}

func (c *Cache) set(fingerprint string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[fingerprint]; ok {
		// entries are immutable once written; refresh replaces wholesale
		c.remove(elem)
	}
	elem := c.order.PushFront(&entry{
		fingerprint: fingerprint,
		value:       value,
		expiresAt:   time.Now().Add(ttl),
	})
	c.entries[fingerprint] = elem

	for len(c.entries) > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest)
	}
}

// remove must be called with c.mu held.
func (c *Cache) remove(elem *list.Element) {
	e := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.entries, e.fingerprint)
}
