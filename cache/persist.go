package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"

	"github.com/IvanBrykalov/snapcache/policy/lru"
	"github.com/IvanBrykalov/snapcache/snapshot"
)

const nsPerMs = int64(1_000_000)

// Export writes the current snapshot document to w.
func (c *cache[V]) Export(w io.Writer) error {
	if c.closed {
		return ErrClosed
	}
	c.sweep()
	data, err := c.encode()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Import replaces the cache contents with the document read from r.
// Nothing changes unless the whole document decodes.
func (c *cache[V]) Import(r io.Reader) error {
	if c.closed {
		return fmt.Errorf("cache: import: %w", ErrClosed)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("cache: import: %w", err)
	}
	doc, err := snapshot.Decode(data)
	if err != nil {
		return fmt.Errorf("cache: import: %w", err)
	}
	st, l, dropped, err := c.rebuild(doc)
	if err != nil {
		return fmt.Errorf("cache: import: %w", err)
	}

	c.store, c.list = st, l
	c.log.Infow("snapshot imported", "entries", st.len(), "dropped", dropped)
	c.opt.Metrics.Size(c.store.len())
	c.persist()
	return nil
}

// load restores state from the configured target. It never fails: any
// problem is logged and the cache keeps its empty state.
func (c *cache[V]) load() {
	if c.opt.Snapshot == nil {
		return
	}
	data, err := c.opt.Snapshot.Read()
	if errors.Is(err, fs.ErrNotExist) {
		c.log.Debugw("snapshot not found, starting empty")
		return
	}
	if err != nil {
		c.log.Warnw("snapshot load failed, starting empty", "err", err)
		return
	}
	doc, err := snapshot.Decode(data)
	if err != nil {
		c.log.Warnw("snapshot discarded, starting empty", "err", err)
		return
	}
	st, l, dropped, err := c.rebuild(doc)
	if err != nil {
		c.log.Warnw("snapshot discarded, starting empty", "err", err)
		return
	}
	c.store, c.list = st, l
	c.log.Infow("snapshot loaded", "entries", st.len(), "dropped", dropped)
}

// rebuild turns a document into a fresh store and recency list.
//
//   - records with expiresAt <= now are dropped; for duplicate keys the
//     last record wins
//   - order follows lruOrder, skipping unknown, dropped and repeated keys;
//     entries missing from lruOrder are appended in document order
//   - beyond MaxSize, the least recent keys are dropped
func (c *cache[V]) rebuild(doc snapshot.Document) (store[V], *lru.List[string], int, error) {
	nowMs := floorDiv(c.now(), nsPerMs)
	st := newStore[V](c.opt.MaxSize)
	var seen []string // first-appearance order of keys in doc.Entries
	dropped := 0

	for _, r := range doc.Entries {
		if !st.contains(r.Key) {
			seen = append(seen, r.Key)
		}
		var exp int64
		if r.ExpiresAt != nil {
			if *r.ExpiresAt <= nowMs {
				st.remove(r.Key)
				dropped++
				continue
			}
			exp = msToDeadline(*r.ExpiresAt)
		}
		var v V
		if len(r.Value) > 0 {
			if err := json.Unmarshal(r.Value, &v); err != nil {
				return store[V]{}, nil, 0, fmt.Errorf("%w: entry %q: %v", snapshot.ErrFormat, r.Key, err)
			}
		}
		st.put(r.Key, entry[V]{val: v, exp: exp})
	}

	l := lru.New[string](c.opt.MaxSize)
	link := func(keys []string) {
		for _, k := range keys {
			if l.Len() >= c.opt.MaxSize {
				return
			}
			if st.contains(k) && !l.Contains(k) {
				l.PushBack(k)
			}
		}
	}
	link(doc.LRUOrder)
	link(seen)

	for k := range st.m {
		if !l.Contains(k) {
			st.remove(k)
			dropped++
		}
	}
	return st, l, dropped, nil
}

// persist writes a full snapshot after a mutation. Failures are reported
// through the logger and Metrics and never reach the caller: the
// in-memory state stays authoritative.
func (c *cache[V]) persist() {
	if c.opt.Snapshot == nil {
		return
	}
	if err := c.writeSnapshot(); err != nil {
		c.log.Warnw("snapshot write failed", "err", err, "entries", c.store.len())
	}
}

func (c *cache[V]) writeSnapshot() error {
	data, err := c.encode()
	if err == nil {
		err = c.opt.Snapshot.Write(data)
	}
	c.opt.Metrics.Snapshot(len(data), err)
	return err
}

// encode serializes entries in recency order, head first.
func (c *cache[V]) encode() ([]byte, error) {
	keys := c.list.Keys()
	doc := snapshot.Document{
		Entries:  make([]snapshot.Record, 0, len(keys)),
		LRUOrder: keys,
	}
	for _, k := range keys {
		e, _ := c.store.get(k)
		raw, err := json.Marshal(e.val)
		if err != nil {
			return nil, fmt.Errorf("cache: encode %q: %w", k, err)
		}
		rec := snapshot.Record{Key: k, Value: raw}
		if e.exp != 0 {
			ms := deadlineToMs(e.exp)
			rec.ExpiresAt = &ms
		}
		doc.Entries = append(doc.Entries, rec)
	}
	return snapshot.Encode(doc)
}

// deadlineToMs converts a UnixNano deadline to ms, rounding up so a
// reloaded entry never expires earlier than it would have.
func deadlineToMs(exp int64) int64 {
	ms := exp / nsPerMs
	if exp%nsPerMs > 0 {
		ms++
	}
	return ms
}

// msToDeadline converts a snapshot expiresAt back to UnixNano, saturating
// at math.MaxInt64 for dates past the int64 nanosecond range.
func msToDeadline(ms int64) int64 {
	if ms > math.MaxInt64/nsPerMs {
		return math.MaxInt64
	}
	return ms * nsPerMs
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}
