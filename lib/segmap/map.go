package segmap

import (
	"hash/maphash"
	"reflect"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

// Logger is the package logger. It only reports structural events (segment
// installation, table growth, aggregate lock escalation) at debug level.
var Logger = logger.GetLogger("segmap")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DefaultInitialCapacity = 16
	DefaultLoadFactor      = 0.75
	DefaultConcurrency     = 16

	// retriesBeforeLock is the number of unsynchronized passes Size and
	// ContainsValue make before locking every segment.
	retriesBeforeLock = 2
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Map during construction
type Options struct {
	InitialCapacity int     // Expected number of entries (>= 0)
	LoadFactor      float64 // Per segment fill ratio that triggers doubling (> 0)
	Concurrency     int     // Estimated number of concurrent writers (> 0, rounded up to a power of two)
}

// DefaultOptions returns the default map options
func DefaultOptions() *Options {
	return &Options{
		InitialCapacity: DefaultInitialCapacity,
		LoadFactor:      DefaultLoadFactor,
		Concurrency:     DefaultConcurrency,
	}
}

// Validate reports the first invalid field as a *ConfigError.
func (o *Options) Validate() error {
	switch {
	case o.InitialCapacity < 0:
		return &ConfigError{Field: "InitialCapacity", Value: o.InitialCapacity, Reason: "must not be negative"}
	case !(o.LoadFactor > 0):
		return &ConfigError{Field: "LoadFactor", Value: o.LoadFactor, Reason: "must be positive"}
	case o.Concurrency <= 0:
		return &ConfigError{Field: "Concurrency", Value: o.Concurrency, Reason: "must be positive"}
	}
	return nil
}

// --------------------------------------------------------------------------
// Map
// --------------------------------------------------------------------------

// Map is a segmented concurrent hash map. The zero value is not usable, create
// maps with New, NewWithHasher or NewWithFuncs.
type Map[K comparable, V any] struct {
	dir   *directory[K, V]
	hash  func(K) uint64
	equal func(V, V) bool

	checkKey   bool
	checkValue bool

	escalations atomic.Int64
}

// New creates a map using the default keyed hasher and == for value
// comparison. opts may be nil to use DefaultOptions.
func New[K comparable, V any](opts *Options) (*Map[K, V], error) {
	return newMap[K, V](opts, comparableHasher[K](maphash.MakeSeed()), nil)
}

// NewWithHasher creates a map with a custom hash function. The function
// receives a random per-map seed which it should mix into the result.
func NewWithHasher[K comparable, V any](opts *Options, hasher func(K, uint64) uint64) (*Map[K, V], error) {
	return NewWithFuncs[K, V](opts, hasher, nil)
}

// NewWithFuncs creates a map with a custom hash function and a custom value
// equality used by RemoveIf, CompareAndReplace and ContainsValue. Either
// function may be nil to use the default.
func NewWithFuncs[K comparable, V any](opts *Options, hasher func(K, uint64) uint64, equal func(V, V) bool) (*Map[K, V], error) {
	hash := comparableHasher[K](maphash.MakeSeed())
	if hasher != nil {
		hash = seededHasher(hasher, generateSeed())
	}
	return newMap[K, V](opts, hash, equal)
}

func newMap[K comparable, V any](opts *Options, hash func(K) uint64, equal func(V, V) bool) (*Map[K, V], error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if equal == nil {
		if !isComparable[V]() {
			return nil, &ConfigError{
				Field:  "ValueEqual",
				Value:  reflect.TypeFor[V]().String(),
				Reason: "is required for values that are not comparable",
			}
		}
		equal = defaultEqual[V]
	}

	concurrency := min(opts.Concurrency, MaxSegments)
	initialCapacity := min(opts.InitialCapacity, MaximumCapacity)

	// find power-of-two sizes best matching the arguments
	sshift := uint32(0)
	ssize := 1
	for ssize < concurrency {
		sshift++
		ssize <<= 1
	}

	c := initialCapacity / ssize
	if c*ssize < initialCapacity {
		c++
	}
	capacity := MinSegmentTableCapacity
	for capacity < c {
		capacity <<= 1
	}

	return &Map[K, V]{
		dir:        newDirectory(ssize, sshift, newSegment[K, V](opts.LoadFactor, capacity)),
		hash:       hash,
		equal:      equal,
		checkKey:   canBeNil[K](),
		checkValue: canBeNil[V](),
	}, nil
}

func defaultEqual[V any](a, b V) bool {
	return any(a) == any(b)
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func (m *Map[K, V]) hashOf(key K) uint32 {
	return spread(m.hash(key))
}

func (m *Map[K, V]) requireKey(op string, key K) {
	if m.checkKey && isNil(key) {
		panic(&PreconditionError{Op: op, Err: ErrNilKey})
	}
}

func (m *Map[K, V]) requireValue(op string, value V) {
	if m.checkValue && isNil(value) {
		panic(&PreconditionError{Op: op, Err: ErrNilValue})
	}
}

// ShardCount returns the number of segment slots.
func (m *Map[K, V]) ShardCount() int {
	return m.dir.len()
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the value stored for key.
//
// Thread-safety: This method never blocks and takes no lock.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.requireKey("Get", key)
	h := m.hashOf(key)
	if s := m.dir.segmentFor(h); s != nil {
		for e := s.entryForHash(h); e != nil; e = e.next.Load() {
			if e.hash == h && e.key == key {
				return e.load(), true
			}
		}
	}
	var zero V
	return zero, false
}

// ContainsKey reports whether key is present.
//
// Thread-safety: This method never blocks and takes no lock.
func (m *Map[K, V]) ContainsKey(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Put stores value for key and returns the previous value, if any.
func (m *Map[K, V]) Put(key K, value V) (previous V, loaded bool) {
	m.requireKey("Put", key)
	m.requireValue("Put", value)
	h := m.hashOf(key)
	return m.dir.ensure(m.dir.indexOf(h)).put(key, h, value, false)
}

// PutIfAbsent stores value only if key is absent. It returns the value now
// associated with key and whether it was already present.
func (m *Map[K, V]) PutIfAbsent(key K, value V) (actual V, loaded bool) {
	m.requireKey("PutIfAbsent", key)
	m.requireValue("PutIfAbsent", value)
	h := m.hashOf(key)
	if prev, ok := m.dir.ensure(m.dir.indexOf(h)).put(key, h, value, true); ok {
		return prev, true
	}
	return value, false
}

// PutAll copies all pairs of src into the map. Every pair is validated before
// the first one is stored.
func (m *Map[K, V]) PutAll(src map[K]V) {
	for k, v := range src {
		m.requireKey("PutAll", k)
		m.requireValue("PutAll", v)
	}
	for k, v := range src {
		m.Put(k, v)
	}
}

// Remove deletes key and returns the removed value.
func (m *Map[K, V]) Remove(key K) (previous V, loaded bool) {
	m.requireKey("Remove", key)
	h := m.hashOf(key)
	if s := m.dir.segmentFor(h); s != nil {
		return s.remove(key, h, nil, m.equal)
	}
	var zero V
	return zero, false
}

// RemoveIf deletes key only if it is currently mapped to value.
func (m *Map[K, V]) RemoveIf(key K, value V) bool {
	m.requireKey("RemoveIf", key)
	m.requireValue("RemoveIf", value)
	h := m.hashOf(key)
	if s := m.dir.segmentFor(h); s != nil {
		_, ok := s.remove(key, h, &value, m.equal)
		return ok
	}
	return false
}

// Replace overwrites the value of key only if key is present. It returns the
// previous value.
func (m *Map[K, V]) Replace(key K, value V) (previous V, loaded bool) {
	m.requireKey("Replace", key)
	m.requireValue("Replace", value)
	h := m.hashOf(key)
	if s := m.dir.segmentFor(h); s != nil {
		return s.replace(key, h, value)
	}
	var zero V
	return zero, false
}

// CompareAndReplace overwrites the value of key with newValue only if it is
// currently oldValue.
func (m *Map[K, V]) CompareAndReplace(key K, oldValue, newValue V) bool {
	m.requireKey("CompareAndReplace", key)
	m.requireValue("CompareAndReplace", oldValue)
	m.requireValue("CompareAndReplace", newValue)
	h := m.hashOf(key)
	if s := m.dir.segmentFor(h); s != nil {
		return s.compareAndReplace(key, h, oldValue, newValue, m.equal)
	}
	return false
}

// Clear removes all entries. Segments are cleared one after another, so
// concurrent writers may leave entries in already cleared segments.
func (m *Map[K, V]) Clear() {
	for j := range m.dir.slots {
		if s := m.dir.segmentAt(j); s != nil {
			s.clear()
		}
	}
}

// --------------------------------------------------------------------------
// Aggregate Operations
// --------------------------------------------------------------------------

// Size returns the number of entries. It sums the segment counts in unlocked
// passes until two consecutive passes see the same total of mutation
// counters. After retriesBeforeLock unstable passes every segment is locked
// and the count is computed exactly.
func (m *Map[K, V]) Size() int {
	var (
		size    int64
		last    int64
		retries = -1 // first iteration isn't a retry
		locked  bool
	)
	defer func() {
		if locked {
			m.unlockAll()
		}
	}()

	for {
		if retries == retriesBeforeLock {
			m.lockAll("Size")
			locked = true
		}
		retries++

		var sum int64
		size = 0
		for j := range m.dir.slots {
			if s := m.dir.segmentAt(j); s != nil {
				sum += s.modCount.Load()
				size += s.count.Load()
			}
		}
		if sum == last {
			break
		}
		last = sum
	}
	return int(size)
}

// IsEmpty reports whether the map holds no entries. A non-zero count in any
// segment answers immediately. Otherwise the mutation counters are summed
// twice; a change between the passes means an entry was added meanwhile.
func (m *Map[K, V]) IsEmpty() bool {
	var sum int64
	for j := range m.dir.slots {
		if s := m.dir.segmentAt(j); s != nil {
			if s.count.Load() != 0 {
				return false
			}
			sum += s.modCount.Load()
		}
	}

	if sum != 0 { // recheck unless no modifications
		for j := range m.dir.slots {
			if s := m.dir.segmentAt(j); s != nil {
				if s.count.Load() != 0 {
					return false
				}
				sum -= s.modCount.Load()
			}
		}
		if sum != 0 {
			return false
		}
	}
	return true
}

// ContainsValue reports whether any key maps to value. It is a full scan and
// follows the same retry and escalation policy as Size.
func (m *Map[K, V]) ContainsValue(value V) bool {
	m.requireValue("ContainsValue", value)

	var (
		last    int64
		retries = -1
		locked  bool
	)
	defer func() {
		if locked {
			m.unlockAll()
		}
	}()

	for {
		if retries == retriesBeforeLock {
			m.lockAll("ContainsValue")
			locked = true
		}
		retries++

		var sum int64
		for j := range m.dir.slots {
			s := m.dir.segmentAt(j)
			if s == nil {
				continue
			}
			tab := *s.table.Load()
			for i := range tab {
				for e := tab[i].Load(); e != nil; e = e.next.Load() {
					if m.equal(value, e.load()) {
						return true
					}
				}
			}
			sum += s.modCount.Load()
		}
		if retries > 0 && sum == last {
			return false
		}
		last = sum
	}
}

// lockAll locks every segment in index order, creating missing ones.
func (m *Map[K, V]) lockAll(op string) {
	m.escalations.Add(1)
	Logger.Debugf("%s escalated to locking all %d segments", op, m.dir.len())
	for j := range m.dir.slots {
		m.dir.ensure(j).mu.Lock()
	}
}

func (m *Map[K, V]) unlockAll() {
	for j := range m.dir.slots {
		m.dir.segmentAt(j).mu.Unlock()
	}
}
