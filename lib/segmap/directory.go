package segmap

import "sync/atomic"

// directory is the fixed array of segment slots. Its length, shift and mask
// never change after construction. Each slot is written at most once.
type directory[K comparable, V any] struct {
	slots []atomic.Pointer[segment[K, V]]
	shift uint32
	mask  uint32
}

// newDirectory builds a directory with the given number of slots (a power of
// two) and installs proto as segment 0.
func newDirectory[K comparable, V any](ssize int, sshift uint32, proto *segment[K, V]) *directory[K, V] {
	d := &directory[K, V]{
		slots: make([]atomic.Pointer[segment[K, V]], ssize),
		shift: 32 - sshift,
		mask:  uint32(ssize - 1),
	}
	d.slots[0].Store(proto)
	return d
}

// indexOf maps a spread hash to a slot using its top bits.
func (d *directory[K, V]) indexOf(hash uint32) int {
	return int((hash >> d.shift) & d.mask)
}

// segmentAt returns the segment installed at index k or nil.
func (d *directory[K, V]) segmentAt(k int) *segment[K, V] {
	return d.slots[k].Load()
}

// segmentFor returns the segment responsible for hash or nil if it has not
// been created yet.
func (d *directory[K, V]) segmentFor(hash uint32) *segment[K, V] {
	return d.slots[d.indexOf(hash)].Load()
}

// ensure returns the segment at index k, creating it if necessary. The new
// segment copies the load factor and current table length of segment 0.
// Concurrent callers race on a single compare-and-swap; the losers drop their
// candidate and use the winner.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *directory[K, V]) ensure(k int) *segment[K, V] {
	if seg := d.slots[k].Load(); seg != nil {
		return seg
	}

	proto := d.slots[0].Load()
	candidate := newSegment[K, V](proto.loadFactor, proto.tableLen())
	if d.slots[k].CompareAndSwap(nil, candidate) {
		Logger.Debugf("installed segment %d (table=%d)", k, candidate.tableLen())
		return candidate
	}
	return d.slots[k].Load()
}

// len returns the number of slots.
func (d *directory[K, V]) len() int {
	return len(d.slots)
}
