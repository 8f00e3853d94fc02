package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/snapcache/snapshot"
)

// NoExpiration passed to SetWithTTL stores an entry that never expires,
// regardless of Options.DefaultTTL.
const NoExpiration time.Duration = 0

// EvictReason explains why an entry was removed without an explicit Delete.
type EvictReason int

const (
	// EvictCapacity: the LRU entry was dropped to make room for a new key.
	EvictCapacity EvictReason = iota
	// EvictTTL: the entry had expired and was found on access or enumeration.
	EvictTTL
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int)
	// Snapshot is called after every snapshot write attempt with the
	// encoded size and the write error (nil on success).
	Snapshot(bytes int, err error)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures the cache. Zero values are safe except MaxSize:
//   - MaxSize < 1     => New returns ErrInvalidMaxSize
//   - nil Snapshot    => no persistence (memory only)
//   - nil Metrics     => NoopMetrics
//   - nil Logger      => zap.NewNop()
//   - nil Clock       => time.Now()
type Options[V any] struct {
	// MaxSize is the entry count limit.
	MaxSize int

	// DefaultTTL applies to Set (0 = no TTL). SetWithTTL overrides it.
	DefaultTTL time.Duration

	// Snapshot receives a full copy of the cache after every mutation and is
	// read once by New to restore state. Values must be JSON-encodable.
	Snapshot snapshot.Target

	// OnEvict is called for capacity and TTL evictions (not for Delete/Clear).
	OnEvict func(k string, v V, reason EvictReason)

	Metrics Metrics
	Logger  *zap.Logger

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}
