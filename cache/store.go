package cache

// entry is the stored value plus its absolute deadline in UnixNano.
// exp == 0 means "no TTL".
type entry[V any] struct {
	val V
	exp int64
}

// expired reports whether e is dead at now. The deadline itself counts
// as expired.
func (e entry[V]) expired(now int64) bool {
	return e.exp != 0 && now >= e.exp
}

// store maps keys to entries. It does not interpret expiry and has no
// side effects beyond the map itself; ordering lives in the recency list.
type store[V any] struct {
	m map[string]entry[V]
}

func newStore[V any](capacity int) store[V] {
	return store[V]{m: make(map[string]entry[V], capacity)}
}

func (s store[V]) get(k string) (entry[V], bool) {
	e, ok := s.m[k]
	return e, ok
}

func (s store[V]) put(k string, e entry[V]) { s.m[k] = e }

func (s store[V]) remove(k string) bool {
	if _, ok := s.m[k]; !ok {
		return false
	}
	delete(s.m, k)
	return true
}

func (s store[V]) contains(k string) bool {
	_, ok := s.m[k]
	return ok
}

func (s store[V]) len() int { return len(s.m) }

func (s store[V]) reset() { clear(s.m) }
