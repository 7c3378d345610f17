package segmap

import "sync/atomic"

// entry is a node of a bucket chain. hash and key never change after
// construction. value and next are written only under the owning segment's
// lock and are read without it.
type entry[K comparable, V any] struct {
	hash  uint32
	key   K
	value atomic.Pointer[V]
	next  atomic.Pointer[entry[K, V]]
}

func newEntry[K comparable, V any](hash uint32, key K, value V, next *entry[K, V]) *entry[K, V] {
	e := &entry[K, V]{hash: hash, key: key}
	e.value.Store(&value)
	e.next.Store(next)
	return e
}

// load returns the current value. Stored value pointers are never mutated, so
// the dereference is safe without the lock.
func (e *entry[K, V]) load() V {
	return *e.value.Load()
}

func (e *entry[K, V]) store(value V) {
	e.value.Store(&value)
}

// clone copies the node in front of next, sharing the value pointer.
func (e *entry[K, V]) clone(next *entry[K, V]) *entry[K, V] {
	c := &entry[K, V]{hash: e.hash, key: e.key}
	c.value.Store(e.value.Load())
	c.next.Store(next)
	return c
}

// bucketArray is a power-of-two sized table of chain heads.
type bucketArray[K comparable, V any] []atomic.Pointer[entry[K, V]]

func (t bucketArray[K, V]) head(hash uint32) *entry[K, V] {
	return t[hash&uint32(len(t)-1)].Load()
}
