package segmap

import "iter"

// The views below hold no state of their own. Every method reads or writes
// the backing map, so they always reflect its current contents.

// --------------------------------------------------------------------------
// KeySet
// --------------------------------------------------------------------------

// KeySet is a live view of the keys of a map.
type KeySet[K comparable, V any] struct {
	m *Map[K, V]
}

// KeySet returns a view of the keys of m.
func (m *Map[K, V]) KeySet() KeySet[K, V] {
	return KeySet[K, V]{m: m}
}

func (s KeySet[K, V]) Size() int { return s.m.Size() }
func (s KeySet[K, V]) IsEmpty() bool { return s.m.IsEmpty() }
func (s KeySet[K, V]) Contains(key K) bool { return s.m.ContainsKey(key) }
func (s KeySet[K, V]) Clear() { s.m.Clear() }
func (s KeySet[K, V]) Iterator() *KeyIterator[K, V] { return s.m.KeyIterator() }
func (s KeySet[K, V]) All() iter.Seq[K] { return s.m.Keys() }

// Remove deletes key from the backing map and reports whether it was present.
func (s KeySet[K, V]) Remove(key K) bool {
	_, ok := s.m.Remove(key)
	return ok
}

// --------------------------------------------------------------------------
// ValueCollection
// --------------------------------------------------------------------------

// ValueCollection is a live view of the values of a map.
type ValueCollection[K comparable, V any] struct {
	m *Map[K, V]
}

// ValueCollection returns a view of the values of m.
func (m *Map[K, V]) ValueCollection() ValueCollection[K, V] {
	return ValueCollection[K, V]{m: m}
}

func (c ValueCollection[K, V]) Size() int { return c.m.Size() }
func (c ValueCollection[K, V]) IsEmpty() bool { return c.m.IsEmpty() }
func (c ValueCollection[K, V]) Contains(value V) bool { return c.m.ContainsValue(value) }
func (c ValueCollection[K, V]) Clear() { c.m.Clear() }
func (c ValueCollection[K, V]) Iterator() *ValueIterator[K, V] { return c.m.ValueIterator() }
func (c ValueCollection[K, V]) All() iter.Seq[V] { return c.m.Values() }

// --------------------------------------------------------------------------
// EntrySet
// --------------------------------------------------------------------------

// EntrySet is a live view of the key/value pairs of a map.
type EntrySet[K comparable, V any] struct {
	m *Map[K, V]
}

// EntrySet returns a view of the entries of m.
func (m *Map[K, V]) EntrySet() EntrySet[K, V] {
	return EntrySet[K, V]{m: m}
}

func (s EntrySet[K, V]) Size() int { return s.m.Size() }
func (s EntrySet[K, V]) IsEmpty() bool { return s.m.IsEmpty() }
func (s EntrySet[K, V]) Clear() { s.m.Clear() }
func (s EntrySet[K, V]) Iterator() *Iterator[K, V] { return s.m.Iterator() }
func (s EntrySet[K, V]) All() iter.Seq2[K, V] { return s.m.All() }

// Contains reports whether key is currently mapped to value.
func (s EntrySet[K, V]) Contains(key K, value V) bool {
	v, ok := s.m.Get(key)
	return ok && s.m.equal(value, v)
}

// Remove deletes key only if it is currently mapped to value.
func (s EntrySet[K, V]) Remove(key K, value V) bool {
	return s.m.RemoveIf(key, value)
}
