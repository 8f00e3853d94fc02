package cache

import (
	"io"
	"time"
)

// Cache is a bounded LRU key/value cache with per-entry TTL whose full
// state is persisted to a snapshot after every mutation.
//
// A Cache is NOT safe for concurrent use. It assumes a single owner that
// calls one method at a time; callers sharing it across goroutines must
// serialize access themselves (e.g. with a sync.Mutex).
//
// Every operation is O(1) except Len, Keys and Export, which sweep all
// entries once, plus the snapshot write, which is proportional to the
// total cache size.
type Cache[V any] interface {
	// Set inserts or updates k→v using the cache's DefaultTTL (if any) and
	// makes k the most recently used key. When a new key arrives at full
	// capacity the least recently used key is evicted first.
	Set(k string, v V)

	// SetWithTTL is Set with a per-key TTL (relative duration).
	// A non-positive ttl (see NoExpiration) means the entry never expires.
	SetWithTTL(k string, v V, ttl time.Duration)

	// Get returns the value for k and a presence flag.
	// On hit, the entry becomes the most recently used.
	Get(k string) (V, bool)

	// Has reports whether k is present and unexpired without promoting it.
	Has(k string) bool

	// Delete removes k and reports whether it was present.
	Delete(k string) bool

	// Clear removes every entry.
	Clear()

	// Len returns the number of live (unexpired) entries.
	Len() int

	// Keys returns the live keys, most recently used first.
	Keys() []string

	// Export writes the current snapshot document to w. It returns
	// ErrClosed after Close.
	Export(w io.Writer) error

	// Import replaces the cache contents with the snapshot document read
	// from r. A malformed document yields an error matching ErrFormat and
	// leaves the cache untouched. After Close it returns ErrClosed.
	Import(r io.Reader) error

	// Close writes a final snapshot, returning its error, and marks the
	// cache closed. Later mutations are ignored.
	Close() error
}
