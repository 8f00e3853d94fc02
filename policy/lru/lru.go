// Package lru implements the recency ordering used by the cache for
// least-recently-used eviction.
package lru

// nilHandle marks the absence of a neighbor (or an empty list end).
const nilHandle = -1

// node is one arena slot. prev/next are handles into List.nodes.
type node[K comparable] struct {
	key  K
	prev int
	next int
}

// List is a doubly linked MRU↔LRU ordering of keys (head is MRU, tail is LRU).
//
// Nodes live in a slice arena and link to each other by integer handle
// rather than by pointer. Freed slots go on a free list and are reused by
// later inserts, so a steady-state cache does not grow the arena.
// A side index maps each key to its handle, which keeps every operation O(1).
//
// List is not safe for concurrent use.
type List[K comparable] struct {
	nodes []node[K]
	free  []int
	index map[K]int
	head  int // MRU
	tail  int // LRU
}

// New returns an empty list. capacity is a sizing hint for the arena.
func New[K comparable](capacity int) *List[K] {
	if capacity < 0 {
		capacity = 0
	}
	return &List[K]{
		nodes: make([]node[K], 0, capacity),
		index: make(map[K]int, capacity),
		head:  nilHandle,
		tail:  nilHandle,
	}
}

// Len returns the number of linked keys.
func (l *List[K]) Len() int { return len(l.index) }

// Contains reports whether k has a node.
func (l *List[K]) Contains(k K) bool {
	_, ok := l.index[k]
	return ok
}

// Front returns the most recently used key.
func (l *List[K]) Front() (K, bool) {
	if l.head == nilHandle {
		var zero K
		return zero, false
	}
	return l.nodes[l.head].key, true
}

// back returns the least recently used key.
func (l *List[K]) back() (K, bool) {
	if l.tail == nilHandle {
		var zero K
		return zero, false
	}
	return l.nodes[l.tail].key, true
}

// PushFront links a new node for k at the head.
// k must not already be present; doing so is a caller bug and panics.
func (l *List[K]) PushFront(k K) {
	h := l.alloc(k)
	l.linkFront(h)
}

// PushBack links a new node for k at the tail. Used when rebuilding an
// ordering head-first (e.g. from a snapshot).
func (l *List[K]) PushBack(k K) {
	h := l.alloc(k)
	n := &l.nodes[h]
	n.prev = l.tail
	n.next = nilHandle
	if l.tail != nilHandle {
		l.nodes[l.tail].next = h
	}
	l.tail = h
	if l.head == nilHandle {
		l.head = h
	}
}

// MoveToFront promotes k to MRU. It returns false when k is absent or
// already the head, i.e. when the order did not change.
func (l *List[K]) MoveToFront(k K) bool {
	h, ok := l.index[k]
	if !ok || h == l.head {
		return false
	}
	l.unlink(h)
	l.linkFront(h)
	return true
}

// Remove detaches k and recycles its slot. Returns false if k is absent.
func (l *List[K]) Remove(k K) bool {
	h, ok := l.index[k]
	if !ok {
		return false
	}
	l.unlink(h)
	l.release(h)
	return true
}

// EvictTail detaches and returns the LRU key, or false if the list is empty.
func (l *List[K]) EvictTail() (K, bool) {
	if l.tail == nilHandle {
		var zero K
		return zero, false
	}
	h := l.tail
	k := l.nodes[h].key
	l.unlink(h)
	l.release(h)
	return k, true
}

// Keys returns all keys head-to-tail (most to least recently used).
func (l *List[K]) Keys() []K {
	out := make([]K, 0, len(l.index))
	for h := l.head; h != nilHandle; h = l.nodes[h].next {
		out = append(out, l.nodes[h].key)
	}
	return out
}

// Reset drops every node but keeps the arena's backing storage.
func (l *List[K]) Reset() {
	clear(l.index)
	l.nodes = l.nodes[:0]
	l.free = l.free[:0]
	l.head, l.tail = nilHandle, nilHandle
}

// -------------------- internals --------------------

// alloc takes a slot (recycled if possible) and indexes k to it.
func (l *List[K]) alloc(k K) int {
	if _, dup := l.index[k]; dup {
		panic("lru: key already linked")
	}
	var h int
	if n := len(l.free); n > 0 {
		h = l.free[n-1]
		l.free = l.free[:n-1]
		l.nodes[h] = node[K]{key: k, prev: nilHandle, next: nilHandle}
	} else {
		h = len(l.nodes)
		l.nodes = append(l.nodes, node[K]{key: k, prev: nilHandle, next: nilHandle})
	}
	l.index[k] = h
	return h
}

// release unindexes the slot and puts it on the free list.
func (l *List[K]) release(h int) {
	var zero K
	delete(l.index, l.nodes[h].key)
	l.nodes[h] = node[K]{key: zero, prev: nilHandle, next: nilHandle}
	l.free = append(l.free, h)
}

// linkFront inserts a detached slot at MRU in O(1).
func (l *List[K]) linkFront(h int) {
	n := &l.nodes[h]
	n.prev = nilHandle
	n.next = l.head
	if l.head != nilHandle {
		l.nodes[l.head].prev = h
	}
	l.head = h
	if l.tail == nilHandle {
		l.tail = h
	}
}

// unlink detaches h, reconnecting its neighbors and fixing head/tail.
func (l *List[K]) unlink(h int) {
	n := &l.nodes[h]
	if n.prev != nilHandle {
		l.nodes[n.prev].next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nilHandle {
		l.nodes[n.next].prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nilHandle, nilHandle
}
