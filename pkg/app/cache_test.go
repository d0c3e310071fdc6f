package app

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := NewQueryCache()

	c.Set(PartitionActivities, "a", 1, time.Minute)
	got, ok := c.Get(PartitionActivities, "a")
	if !ok || got.(int) != 1 {
		t.Fatalf("Get = %v, %v", got, ok)
	}

	if _, ok := c.Get(PartitionActivities, "missing"); ok {
		t.Error("Get(missing) reported a hit")
	}
	if _, ok := c.Get(PartitionIncidents, "a"); ok {
		t.Error("partitions are not isolated")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewQueryCache()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set(PartitionQueries, "q", "result", 30*time.Second)

	now = now.Add(29 * time.Second)
	if _, ok := c.Get(PartitionQueries, "q"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	now = now.Add(2 * time.Second)
	if _, ok := c.Get(PartitionQueries, "q"); ok {
		t.Fatal("entry survived past its TTL")
	}
}

func TestCacheRemove(t *testing.T) {
	c := NewQueryCache()
	c.Set(PartitionActivities, "a", 1, time.Minute)
	c.Set(PartitionActivities, "b", 2, time.Minute)

	c.Remove(PartitionActivities, "a")
	if _, ok := c.Get(PartitionActivities, "a"); ok {
		t.Error("removed entry still readable")
	}
	if _, ok := c.Get(PartitionActivities, "b"); !ok {
		t.Error("Remove dropped an unrelated key")
	}

	// Removing absent keys is a no-op.
	c.Remove(PartitionActivities, "missing")
	c.Remove("nonexistent", "a")
}

func TestCacheInvalidatePartition(t *testing.T) {
	c := NewQueryCache()
	c.Set(PartitionQueries, "q1", 1, time.Minute)
	c.Set(PartitionQueries, "q2", 2, time.Minute)
	c.Set(PartitionStats, "s1", 3, time.Minute)

	c.Invalidate(PartitionQueries)
	if c.Len(PartitionQueries) != 0 {
		t.Error("Invalidate left entries in the partition")
	}
	if c.Len(PartitionStats) != 1 {
		t.Error("Invalidate touched another partition")
	}

	c.Invalidate(PartitionAll)
	if c.Len(PartitionStats) != 0 {
		t.Error("Invalidate(all) left entries behind")
	}
}
