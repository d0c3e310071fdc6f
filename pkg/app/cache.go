// Package app provides the application services that orchestrate domain
// operations: the command side (validate, mutate, persist, publish) and the
// query side (cached, filtered retrieval). These sit between the API layer
// and the domain layer.
package app

import (
	"sync"
	"time"
)

// Cache partitions. Invalidation targets a partition by name, or
// PartitionAll to drop everything.
const (
	PartitionActivities = "activities" // single entities by id
	PartitionIncidents  = "incidents"  // single incidents by id
	PartitionQueries    = "queries"    // list/search results by serialized filter
	PartitionStats      = "stats"      // aggregate statistics
	PartitionAttention  = "attention"  // requires-attention / overdue sets
	PartitionAll        = "all"
)

// Cache TTLs per partition kind. Attention data decays fastest because
// urgency information is only useful fresh.
const (
	TTLList      = 30 * time.Second
	TTLEntity    = 60 * time.Second
	TTLSearch    = 120 * time.Second
	TTLStats     = 60 * time.Second
	TTLAttention = 10 * time.Second
)

type cacheEntry struct {
	value   interface{}
	expires time.Time
}

// QueryCache is a TTL'd read cache with copy-on-write partition maps:
// every mutation builds a new map rather than editing the shared one, so
// concurrent readers never observe a half-updated partition.
type QueryCache struct {
	mu         sync.RWMutex
	partitions map[string]map[string]cacheEntry
	now        func() time.Time
}

// NewQueryCache creates an empty cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{
		partitions: make(map[string]map[string]cacheEntry),
		now:        time.Now,
	}
}

// Get returns a live cached value, or false when absent or expired.
func (c *QueryCache) Get(partition, key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.partitions[partition][key]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.value, true
}

// Set stores a value with the given TTL, replacing the partition map.
func (c *QueryCache) Set(partition, key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := clonePartition(c.partitions[partition])
	next[key] = cacheEntry{value: value, expires: c.now().Add(ttl)}
	c.partitions[partition] = next
}

// Remove drops one key from a partition.
func (c *QueryCache) Remove(partition, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.partitions[partition]
	if !ok {
		return
	}
	if _, ok := old[key]; !ok {
		return
	}
	next := make(map[string]cacheEntry, len(old))
	for k, v := range old {
		if k != key {
			next[k] = v
		}
	}
	c.partitions[partition] = next
}

// Invalidate drops an entire partition, or everything for PartitionAll.
func (c *QueryCache) Invalidate(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pattern == PartitionAll {
		c.partitions = make(map[string]map[string]cacheEntry)
		return
	}
	next := make(map[string]map[string]cacheEntry, len(c.partitions))
	for name, part := range c.partitions {
		if name != pattern {
			next[name] = part
		}
	}
	c.partitions = next
}

// Len returns the number of live entries in a partition (expired included
// until swept; used by tests and diagnostics).
func (c *QueryCache) Len(partition string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.partitions[partition])
}

func clonePartition(old map[string]cacheEntry) map[string]cacheEntry {
	next := make(map[string]cacheEntry, len(old))
	for k, v := range old {
		next[k] = v
	}
	return next
}
