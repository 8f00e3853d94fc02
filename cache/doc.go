// Package cache provides a bounded, generic, in-memory key/value cache with
// LRU eviction, per-entry TTL, and a full-state snapshot written after
// every mutation and restored on construction.
//
// Design
//
//   - Storage: a map from key to (value, deadline) plus a recency list
//     (policy/lru) holding the same keys MRU→LRU. The list is an arena of
//     nodes addressed by integer handles, so promote, insert, remove and
//     tail eviction are all O(1).
//
//   - Capacity: Options.MaxSize bounds the number of entries. Inserting a
//     new key into a full cache evicts the tail (least recently used) first.
//     Updating an existing key never evicts.
//
//   - TTL: deadlines are absolute UnixNano values. Expiration is lazy:
//     Get and Has remove an expired entry they touch; Len, Keys and Export
//     sweep every entry once. There are no timers or goroutines, so an
//     expired entry nobody touches keeps its memory until the next sweep.
//
//   - Persistence: after each mutation (including a Get that changes the
//     recency order) the whole cache is encoded as a snapshot document and
//     written to Options.Snapshot. Write failures are logged and reported
//     to Metrics; the in-memory state stays authoritative and the call
//     still succeeds. On New, the snapshot is read back, expired records
//     are dropped, and the recency order is restored exactly. A missing or
//     malformed snapshot is logged and the cache starts empty.
//
//   - Concurrency: none. A cache has one owner calling one method at a
//     time. Share it across goroutines only behind your own lock.
//
// Basic usage
//
//	c, err := cache.New[string](cache.Options[string]{
//	    MaxSize:  1024,
//	    Snapshot: snapshot.NewFile("/var/lib/app/cache.json"),
//	})
//	if err != nil { ... }
//	defer c.Close()
//
//	c.Set("a", "1")
//	if v, ok := c.Get("a"); ok {
//	    _ = v
//	}
//	c.Delete("a")
//
// With TTL
//
//	c.SetWithTTL("tmp", "v", 200*time.Millisecond)
//	time.Sleep(300 * time.Millisecond)
//	_, ok := c.Get("tmp") // ok == false (expired)
//
// Explicit restore
//
//	if err := c.Import(r); errors.Is(err, cache.ErrFormat) {
//	    // payload rejected, cache unchanged
//	}
//
// Exporting metrics (Prometheus adapter)
//
//	m := prom.New(nil, "snapcache", "demo", nil) // implements Metrics
//	c, _ := cache.New[[]byte](cache.Options[[]byte]{MaxSize: 10_000, Metrics: m})
package cache
