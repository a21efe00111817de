// Package cache provides neighbor query caching for rhizome.
//
// The spatial index answers the same radius queries many times within a
// tick (every frontier node looks around itself, branches look again).
// Caching the results avoids re-walking grid cells for identical queries.
//
// Features:
// - LRU eviction for bounded memory
// - Optional TTL expiration
// - Quantized keys so nearly identical queries share an entry
// - Cache hit/miss statistics
//
// The cache never decides when its contents are stale. Owners must call
// Clear on every mutation of the underlying data.
//
// Usage:
//
//	cache := NewQueryCache[[]*graph.Node](1000, 0)
//
//	key := QuantizedKey(pos.X, pos.Y, radius)
//	if hits, ok := cache.Get(key); ok {
//		return hits // Cache hit
//	}
//
//	hits := walkCells(pos, radius)
//	cache.Put(key, hits)
package cache

import (
	"container/list"
	"encoding/binary"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Quantum is the resolution used by QuantizedKey. Positions and radii are
// rounded to the nearest multiple of Quantum before hashing.
const Quantum = 0.1

// QueryCache is a thread-safe LRU cache for query results.
//
// The cache uses:
// - Hash map for O(1) lookups
// - Doubly-linked list for LRU ordering
// - TTL for optional expiration
type QueryCache[V any] struct {
	mu sync.RWMutex

	// Configuration
	maxSize int
	ttl     time.Duration
	enabled bool

	// LRU list and map
	list  *list.List
	items map[uint64]*list.Element

	// Statistics
	hits          uint64
	misses        uint64
	invalidations uint64
}

// cacheEntry holds a cached item with metadata.
type cacheEntry[V any] struct {
	key       uint64
	value     V
	expiresAt time.Time
}

// NewQueryCache creates a new query cache.
//
// Parameters:
//   - maxSize: Maximum number of cached results (LRU eviction when exceeded)
//   - ttl: Time-to-live for cached entries (0 = no expiration)
//
// Example:
//
//	// Cache up to 1000 neighbor sets until the next mutation
//	cache := NewQueryCache[[]*graph.Node](1000, 0)
func NewQueryCache[V any](maxSize int, ttl time.Duration) *QueryCache[V] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &QueryCache[V]{
		maxSize: maxSize,
		ttl:     ttl,
		enabled: true,
		list:    list.New(),
		items:   make(map[uint64]*list.Element, maxSize),
	}
}

// QuantizedKey hashes a (x, y, radius) query after rounding every component
// to Quantum. Queries that differ by less than half a quantum share a key.
func QuantizedKey(x, y, radius float64) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(quantize(x)))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(quantize(y)))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(quantize(radius)))

	h := fnv.New64a()
	h.Write(buf[:])
	return h.Sum64()
}

func quantize(v float64) int64 {
	return int64(math.Round(v / Quantum))
}

// Get retrieves a cached result if present and not expired.
//
// Returns (value, true) on cache hit, (zero, false) on miss.
// Moves the entry to front of LRU list on hit.
func (c *QueryCache[V]) Get(key uint64) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		atomic.AddUint64(&c.misses, 1)
		return zero, false
	}

	elem, ok := c.items[key]
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return zero, false
	}

	entry := elem.Value.(*cacheEntry[V])

	// Check TTL
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		atomic.AddUint64(&c.misses, 1)
		return zero, false
	}

	c.list.MoveToFront(elem)
	atomic.AddUint64(&c.hits, 1)
	return entry.value, true
}

// Put adds a result to the cache.
//
// If the cache is full, the least recently used entry is evicted.
// If the key already exists, the value is updated.
func (c *QueryCache[V]) Put(key uint64, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry[V])
		entry.value = value
		if c.ttl > 0 {
			entry.expiresAt = time.Now().Add(c.ttl)
		}
		c.list.MoveToFront(elem)
		return
	}

	for c.list.Len() >= c.maxSize {
		c.evictOldest()
	}

	entry := &cacheEntry[V]{
		key:   key,
		value: value,
	}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}

	elem := c.list.PushFront(entry)
	c.items[key] = elem
}

// Clear removes all entries from the cache. Counts as one invalidation.
func (c *QueryCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.list.Init()
	c.items = make(map[uint64]*list.Element, c.maxSize)
	atomic.AddUint64(&c.invalidations, 1)
}

// Len returns the number of cached entries.
func (c *QueryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.list.Len()
}

// Stats returns cache statistics.
func (c *QueryCache[V]) Stats() CacheStats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	c.mu.RLock()
	size := c.list.Len()
	c.mu.RUnlock()

	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return CacheStats{
		Size:          size,
		MaxSize:       c.maxSize,
		Hits:          hits,
		Misses:        misses,
		Invalidations: atomic.LoadUint64(&c.invalidations),
		HitRate:       hitRate,
	}
}

// CacheStats holds cache performance statistics.
type CacheStats struct {
	Size          int     // Current number of entries
	MaxSize       int     // Maximum capacity
	Hits          uint64  // Number of cache hits
	Misses        uint64  // Number of cache misses
	Invalidations uint64  // Number of Clear calls
	HitRate       float64 // Hit rate percentage (0-100)
}

// SetEnabled enables or disables the cache. Disabling drops all entries.
func (c *QueryCache[V]) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled

	if !enabled {
		c.list.Init()
		c.items = make(map[uint64]*list.Element, c.maxSize)
	}
}

// evictOldest removes the least recently used entry.
// Caller must hold the lock.
func (c *QueryCache[V]) evictOldest() {
	elem := c.list.Back()
	if elem != nil {
		c.removeElement(elem)
	}
}

// removeElement removes an element from the cache.
// Caller must hold the lock.
func (c *QueryCache[V]) removeElement(elem *list.Element) {
	c.list.Remove(elem)
	entry := elem.Value.(*cacheEntry[V])
	delete(c.items, entry.key)
}
