package segmap

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// MaximumCapacity bounds the table length of a single segment.
	MaximumCapacity = 1 << 30

	// MinSegmentTableCapacity is the smallest table a segment is created with.
	MinSegmentTableCapacity = 2

	// MaxSegments caps the number of segments regardless of the requested concurrency.
	MaxSegments = 1 << 16
)

// maxScanRetries is the number of TryLock attempts interleaved with chain
// scanning before a writer blocks on the segment lock.
var maxScanRetries = func() int {
	if runtime.NumCPU() > 1 {
		return 64
	}
	return 1
}()

// --------------------------------------------------------------------------
// Segment
// --------------------------------------------------------------------------

// segment is an independently locked hash table. The table, the bucket slots
// and the entry links are only written while mu is held. count and modCount
// are written under mu as well but read without it by the aggregate
// operations of the map.
type segment[K comparable, V any] struct {
	_ cpu.CacheLinePad

	mu         sync.Mutex
	table      atomic.Pointer[bucketArray[K, V]]
	count      atomic.Int64
	modCount   atomic.Int64
	resizes    atomic.Int64
	threshold  int
	loadFactor float64

	_ cpu.CacheLinePad
}

func newSegment[K comparable, V any](loadFactor float64, capacity int) *segment[K, V] {
	s := &segment[K, V]{
		loadFactor: loadFactor,
		threshold:  int(float64(capacity) * loadFactor),
	}
	tab := make(bucketArray[K, V], capacity)
	s.table.Store(&tab)
	return s
}

// entryForHash returns the head of the chain the hash maps to in the current table.
func (s *segment[K, V]) entryForHash(hash uint32) *entry[K, V] {
	return (*s.table.Load()).head(hash)
}

// tableLen returns the length of the current table.
func (s *segment[K, V]) tableLen() int {
	return len(*s.table.Load())
}

// --------------------------------------------------------------------------
// Mutations (all run under s.mu)
// --------------------------------------------------------------------------

// put inserts or updates key. If onlyIfAbsent is set an existing value is
// left untouched. It returns the previous value and whether one existed.
func (s *segment[K, V]) put(key K, hash uint32, value V, onlyIfAbsent bool) (V, bool) {
	var node *entry[K, V]
	if !s.mu.TryLock() {
		node = s.scanAndLockForPut(key, hash, value)
	}
	defer s.mu.Unlock()

	tab := *s.table.Load()
	index := hash & uint32(len(tab)-1)
	first := tab[index].Load()
	for e := first; e != nil; e = e.next.Load() {
		if e.hash == hash && e.key == key {
			old := e.load()
			if !onlyIfAbsent {
				e.store(value)
				s.modCount.Add(1)
			}
			return old, true
		}
	}

	if node != nil {
		node.next.Store(first)
	} else {
		node = newEntry(hash, key, value, first)
	}
	c := s.count.Load() + 1
	if int(c) > s.threshold && len(tab) < MaximumCapacity {
		s.rehash(node)
	} else {
		tab[index].Store(node)
	}
	s.modCount.Add(1)
	s.count.Store(c)

	var zero V
	return zero, false
}

// rehash doubles the table and links node into the new one. Nodes whose next
// link stays the same are reused: for every bucket the trailing run of nodes
// that all land in the same new bucket is moved by reference and only the
// prefix in front of it is cloned. The old table is never written, so readers
// still traversing it finish safely.
func (s *segment[K, V]) rehash(node *entry[K, V]) {
	oldTable := *s.table.Load()
	oldCapacity := len(oldTable)
	newCapacity := oldCapacity << 1
	s.threshold = int(float64(newCapacity) * s.loadFactor)
	newTable := make(bucketArray[K, V], newCapacity)
	sizeMask := uint32(newCapacity - 1)

	for i := range oldTable {
		e := oldTable[i].Load()
		if e == nil {
			continue
		}
		next := e.next.Load()
		idx := e.hash & sizeMask
		if next == nil {
			newTable[idx].Store(e)
			continue
		}

		lastRun, lastIdx := e, idx
		for last := next; last != nil; last = last.next.Load() {
			if k := last.hash & sizeMask; k != lastIdx {
				lastIdx = k
				lastRun = last
			}
		}
		newTable[lastIdx].Store(lastRun)

		for p := e; p != lastRun; p = p.next.Load() {
			k := p.hash & sizeMask
			newTable[k].Store(p.clone(newTable[k].Load()))
		}
	}

	nodeIndex := node.hash & sizeMask
	node.next.Store(newTable[nodeIndex].Load())
	newTable[nodeIndex].Store(node)
	s.table.Store(&newTable)
	s.resizes.Add(1)

	Logger.Debugf("segment table doubled %d -> %d (count=%d)", oldCapacity, newCapacity, s.count.Load()+1)
}

// remove unlinks key. If expected is non-nil the node is only unlinked when
// its value equals *expected. It returns the removed value.
func (s *segment[K, V]) remove(key K, hash uint32, expected *V, equal func(V, V) bool) (V, bool) {
	if !s.mu.TryLock() {
		s.scanAndLock(key, hash)
	}
	defer s.mu.Unlock()

	tab := *s.table.Load()
	index := hash & uint32(len(tab)-1)
	var pred *entry[K, V]
	for e := tab[index].Load(); e != nil; {
		next := e.next.Load()
		if e.hash == hash && e.key == key {
			v := e.load()
			if expected != nil && !equal(*expected, v) {
				break
			}
			if pred == nil {
				tab[index].Store(next)
			} else {
				pred.next.Store(next)
			}
			s.modCount.Add(1)
			s.count.Add(-1)
			return v, true
		}
		pred = e
		e = next
	}

	var zero V
	return zero, false
}

// replace overwrites the value of an existing key.
func (s *segment[K, V]) replace(key K, hash uint32, value V) (V, bool) {
	if !s.mu.TryLock() {
		s.scanAndLock(key, hash)
	}
	defer s.mu.Unlock()

	for e := s.entryForHash(hash); e != nil; e = e.next.Load() {
		if e.hash == hash && e.key == key {
			old := e.load()
			e.store(value)
			s.modCount.Add(1)
			return old, true
		}
	}

	var zero V
	return zero, false
}

// compareAndReplace overwrites the value of key only if it equals oldValue.
func (s *segment[K, V]) compareAndReplace(key K, hash uint32, oldValue, newValue V, equal func(V, V) bool) bool {
	if !s.mu.TryLock() {
		s.scanAndLock(key, hash)
	}
	defer s.mu.Unlock()

	for e := s.entryForHash(hash); e != nil; e = e.next.Load() {
		if e.hash == hash && e.key == key {
			if !equal(oldValue, e.load()) {
				return false
			}
			e.store(newValue)
			s.modCount.Add(1)
			return true
		}
	}
	return false
}

// clear empties every bucket of the current table.
func (s *segment[K, V]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	tab := *s.table.Load()
	for i := range tab {
		tab[i].Store(nil)
	}
	s.modCount.Add(1)
	s.count.Store(0)
}

// --------------------------------------------------------------------------
// Contention handling
// --------------------------------------------------------------------------

// scanAndLockForPut walks the chain for key while retrying TryLock, so the
// nodes are in cache once the lock is acquired. If the key is not found a new
// node is created speculatively and returned. The lock is always held on
// return. The scan only reads, the result of put does not depend on it.
func (s *segment[K, V]) scanAndLockForPut(key K, hash uint32, value V) *entry[K, V] {
	first := s.entryForHash(hash)
	e := first
	var node *entry[K, V]
	retries := -1 // negative while locating node

	for !s.mu.TryLock() {
		switch {
		case retries < 0:
			if e == nil {
				if node == nil {
					node = newEntry(hash, key, value, nil)
				}
				retries = 0
			} else if e.hash == hash && e.key == key {
				retries = 0
			} else {
				e = e.next.Load()
			}
		case retries+1 > maxScanRetries:
			s.mu.Lock()
			return node
		default:
			retries++
			// re-traverse if the head of the chain changed
			if retries&1 == 0 {
				if f := s.entryForHash(hash); f != first {
					e, first = f, f
					retries = -1
				}
			}
		}
	}
	return node
}

// scanAndLock is the variant of scanAndLockForPut used by remove and replace.
func (s *segment[K, V]) scanAndLock(key K, hash uint32) {
	first := s.entryForHash(hash)
	e := first
	retries := -1

	for !s.mu.TryLock() {
		switch {
		case retries < 0:
			if e == nil || (e.hash == hash && e.key == key) {
				retries = 0
			} else {
				e = e.next.Load()
			}
		case retries+1 > maxScanRetries:
			s.mu.Lock()
			return
		default:
			retries++
			if retries&1 == 0 {
				if f := s.entryForHash(hash); f != first {
					e, first = f, f
					retries = -1
				}
			}
		}
	}
}
