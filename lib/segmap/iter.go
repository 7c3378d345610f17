package segmap

import "iter"

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

// Iterator walks all entries of a map, segments from last to first and
// buckets from last to first within a segment. It captures each segment's
// table when it reaches the segment and never fails because of concurrent
// mutation. An Iterator is not safe for concurrent use by multiple goroutines.
type Iterator[K comparable, V any] struct {
	m                *Map[K, V]
	nextSegmentIndex int
	nextTableIndex   int
	currentTable     bucketArray[K, V]
	nextEntry        *entry[K, V]
	lastReturned     *entry[K, V]
}

// Iterator returns a new weakly consistent iterator over the entries of m.
func (m *Map[K, V]) Iterator() *Iterator[K, V] {
	it := &Iterator[K, V]{
		m:                m,
		nextSegmentIndex: m.dir.len() - 1,
		nextTableIndex:   -1,
	}
	it.advance()
	return it
}

// advance moves to the next non-empty bucket, loading the table of the next
// installed segment whenever the current one is exhausted.
func (it *Iterator[K, V]) advance() {
	for {
		if it.nextTableIndex >= 0 {
			it.nextEntry = it.currentTable[it.nextTableIndex].Load()
			it.nextTableIndex--
			if it.nextEntry != nil {
				return
			}
		} else if it.nextSegmentIndex >= 0 {
			s := it.m.dir.segmentAt(it.nextSegmentIndex)
			it.nextSegmentIndex--
			if s != nil {
				it.currentTable = *s.table.Load()
				it.nextTableIndex = len(it.currentTable) - 1
			}
		} else {
			it.currentTable = nil
			return
		}
	}
}

func (it *Iterator[K, V]) nextNode() (*entry[K, V], error) {
	e := it.nextEntry
	if e == nil {
		return nil, ErrNoSuchElement
	}
	it.lastReturned = e
	if it.nextEntry = e.next.Load(); it.nextEntry == nil {
		it.advance()
	}
	return e, nil
}

// HasNext reports whether Next will return another entry.
func (it *Iterator[K, V]) HasNext() bool {
	return it.nextEntry != nil
}

// Next returns the next entry or ErrNoSuchElement once the iterator is exhausted.
func (it *Iterator[K, V]) Next() (Entry[K, V], error) {
	e, err := it.nextNode()
	if err != nil {
		return Entry[K, V]{}, err
	}
	return Entry[K, V]{Key: e.key, Value: e.load(), m: it.m}, nil
}

// Remove deletes the key of the entry last returned by Next from the map. It
// returns ErrIllegalState if Next has not been called or Remove was already
// called for that entry.
func (it *Iterator[K, V]) Remove() error {
	if it.lastReturned == nil {
		return ErrIllegalState
	}
	it.m.Remove(it.lastReturned.key)
	it.lastReturned = nil
	return nil
}

// KeyIterator iterates over the keys of a map.
type KeyIterator[K comparable, V any] struct {
	it *Iterator[K, V]
}

// KeyIterator returns a new weakly consistent iterator over the keys of m.
func (m *Map[K, V]) KeyIterator() *KeyIterator[K, V] {
	return &KeyIterator[K, V]{it: m.Iterator()}
}

func (k *KeyIterator[K, V]) HasNext() bool { return k.it.HasNext() }
func (k *KeyIterator[K, V]) Remove() error { return k.it.Remove() }

func (k *KeyIterator[K, V]) Next() (K, error) {
	e, err := k.it.nextNode()
	if err != nil {
		var zero K
		return zero, err
	}
	return e.key, nil
}

// ValueIterator iterates over the values of a map.
type ValueIterator[K comparable, V any] struct {
	it *Iterator[K, V]
}

// ValueIterator returns a new weakly consistent iterator over the values of m.
func (m *Map[K, V]) ValueIterator() *ValueIterator[K, V] {
	return &ValueIterator[K, V]{it: m.Iterator()}
}

func (v *ValueIterator[K, V]) HasNext() bool { return v.it.HasNext() }
func (v *ValueIterator[K, V]) Remove() error { return v.it.Remove() }

func (v *ValueIterator[K, V]) Next() (V, error) {
	e, err := v.it.nextNode()
	if err != nil {
		var zero V
		return zero, err
	}
	return e.load(), nil
}

// --------------------------------------------------------------------------
// Entry
// --------------------------------------------------------------------------

// Entry is a key/value pair returned by an Iterator.
type Entry[K comparable, V any] struct {
	Key   K
	Value V

	m *Map[K, V]
}

// SetValue replaces the value of the entry and writes it through to the map.
// It returns the value the entry held before.
func (e *Entry[K, V]) SetValue(value V) V {
	e.m.requireValue("Entry.SetValue", value)
	old := e.Value
	e.Value = value
	e.m.Put(e.Key, value)
	return old
}

// --------------------------------------------------------------------------
// Range helpers
// --------------------------------------------------------------------------

// Range calls fn for every entry until fn returns false.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for it := m.Iterator(); it.HasNext(); {
		e, _ := it.nextNode()
		if !fn(e.key, e.load()) {
			return
		}
	}
}

// All returns an iterator over all key/value pairs for use with range.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return m.Range
}

// Keys returns an iterator over all keys for use with range.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		m.Range(func(key K, _ V) bool {
			return yield(key)
		})
	}
}

// Values returns an iterator over all values for use with range.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		m.Range(func(_ K, value V) bool {
			return yield(value)
		})
	}
}
