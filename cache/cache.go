package cache

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/snapcache/policy/lru"
	"github.com/IvanBrykalov/snapcache/snapshot"
)

var (
	// ErrInvalidMaxSize is returned by New when Options.MaxSize < 1.
	ErrInvalidMaxSize = errors.New("cache: MaxSize must be >= 1")

	// ErrFormat is returned (wrapped) by Import for a malformed document.
	ErrFormat = snapshot.ErrFormat

	// ErrClosed is returned by Export and Import after Close.
	ErrClosed = errors.New("cache: closed")
)

// cache keeps two structures in lockstep: the entry store (key → value and
// deadline) and the recency list (key order, head=MRU, tail=LRU). Both
// always hold exactly the same key set, and never more than MaxSize keys.
type cache[V any] struct {
	store  store[V]
	list   *lru.List[string]
	opt    Options[V]
	log    *zap.SugaredLogger
	closed bool
}

// New constructs a cache and restores state from Options.Snapshot, if any.
// A missing or unreadable snapshot is logged and the cache starts empty;
// only an invalid MaxSize is reported as an error.
func New[V any](opt Options[V]) (Cache[V], error) {
	if opt.MaxSize < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidMaxSize, opt.MaxSize)
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	c := &cache[V]{
		store: newStore[V](opt.MaxSize),
		list:  lru.New[string](opt.MaxSize),
		opt:   opt,
		log:   opt.Logger.Named("snapcache").Sugar(),
	}
	c.load()
	c.opt.Metrics.Size(c.store.len())
	return c, nil
}

// ---- Cache[V] implementation ----

// Set inserts or updates k→v using DefaultTTL.
func (c *cache[V]) Set(k string, v V) {
	c.set(k, v, c.defaultDeadline())
}

// SetWithTTL inserts or updates k→v with a per-key TTL.
func (c *cache[V]) SetWithTTL(k string, v V, ttl time.Duration) {
	c.set(k, v, c.deadline(ttl))
}

func (c *cache[V]) set(k string, v V, exp int64) {
	if c.closed {
		return
	}
	if c.store.contains(k) {
		// In-place update never evicts.
		c.store.put(k, entry[V]{val: v, exp: exp})
		c.list.MoveToFront(k)
	} else {
		if c.store.len() >= c.opt.MaxSize {
			c.evictTail()
		}
		c.store.put(k, entry[V]{val: v, exp: exp})
		c.list.PushFront(k)
	}
	c.opt.Metrics.Size(c.store.len())
	c.persist()
}

// Get returns the value for k, promoting it to MRU on hit.
// An expired entry is removed and reported as a miss.
func (c *cache[V]) Get(k string) (V, bool) {
	var zero V
	if c.closed {
		return zero, false
	}
	e, ok := c.store.get(k)
	if !ok {
		c.opt.Metrics.Miss()
		return zero, false
	}
	if e.expired(c.now()) {
		c.expire(k, e)
		c.opt.Metrics.Miss()
		c.opt.Metrics.Size(c.store.len())
		c.persist()
		return zero, false
	}

	c.opt.Metrics.Hit()
	// Recency order is durable state: persist only when it changed.
	if head, _ := c.list.Front(); head != k {
		c.list.MoveToFront(k)
		c.persist()
	}
	return e.val, true
}

// Has reports presence without promoting. Expired entries are removed.
func (c *cache[V]) Has(k string) bool {
	if c.closed {
		return false
	}
	e, ok := c.store.get(k)
	if !ok {
		return false
	}
	if e.expired(c.now()) {
		c.expire(k, e)
		c.opt.Metrics.Size(c.store.len())
		c.persist()
		return false
	}
	return true
}

// Delete removes k. Explicit deletes are not counted as evictions.
func (c *cache[V]) Delete(k string) bool {
	if c.closed {
		return false
	}
	if !c.store.remove(k) {
		return false
	}
	c.list.Remove(k)
	c.opt.Metrics.Size(c.store.len())
	c.persist()
	return true
}

// Clear empties the cache and persists the empty state.
func (c *cache[V]) Clear() {
	if c.closed {
		return
	}
	c.store.reset()
	c.list.Reset()
	c.opt.Metrics.Size(0)
	c.persist()
}

// Len sweeps expired entries and returns the live count.
func (c *cache[V]) Len() int {
	if c.closed {
		return 0
	}
	c.sweep()
	return c.store.len()
}

// Keys sweeps expired entries and returns live keys, MRU first.
func (c *cache[V]) Keys() []string {
	if c.closed {
		return nil
	}
	c.sweep()
	return c.list.Keys()
}

// Close writes a final snapshot and marks the cache closed.
func (c *cache[V]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.opt.Snapshot == nil {
		return nil
	}
	if err := c.writeSnapshot(); err != nil {
		return fmt.Errorf("cache: final snapshot: %w", err)
	}
	return nil
}

// ---- helpers ----

// evictTail drops the LRU entry to make room for a new key.
func (c *cache[V]) evictTail() {
	k, ok := c.list.EvictTail()
	if !ok {
		return
	}
	e, _ := c.store.get(k)
	c.store.remove(k)
	c.notifyEvict(k, e, EvictCapacity)
}

// expire removes a dead entry found on access or during a sweep.
func (c *cache[V]) expire(k string, e entry[V]) {
	c.store.remove(k)
	c.list.Remove(k)
	c.notifyEvict(k, e, EvictTTL)
}

func (c *cache[V]) notifyEvict(k string, e entry[V], reason EvictReason) {
	c.opt.Metrics.Evict(reason)
	if cb := c.opt.OnEvict; cb != nil {
		cb(k, e.val, reason)
	}
}

// sweep removes every expired entry once and persists if anything went.
// There is no background sweeper: entries nobody touches or enumerates
// stay in memory until then.
func (c *cache[V]) sweep() {
	now := c.now()
	removed := 0
	for k, e := range c.store.m {
		if e.expired(now) {
			c.expire(k, e)
			removed++
		}
	}
	if removed > 0 {
		c.opt.Metrics.Size(c.store.len())
		c.persist()
	}
}

func (c *cache[V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// defaultDeadline returns an absolute deadline based on DefaultTTL.
func (c *cache[V]) defaultDeadline() int64 {
	return c.deadline(c.opt.DefaultTTL)
}

// deadline converts a relative TTL into an absolute UnixNano deadline.
// A non-positive ttl returns 0 (no expiration); deadlines past the
// int64 range saturate at math.MaxInt64.
func (c *cache[V]) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	now := c.now()
	if int64(ttl) > math.MaxInt64-now {
		return math.MaxInt64
	}
	return now + int64(ttl)
}
