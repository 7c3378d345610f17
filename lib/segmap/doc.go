// Package segmap implements a segmented (lock-striped) concurrent hash map.
//
// The map is partitioned into a fixed number of segments. Each segment is an
// independently lockable hash table with its own bucket array, entry count and
// mutation counter. Writers lock exactly one segment; readers never lock.
//
// The package focuses on:
//   - Lock-free reads: Get, ContainsKey and iteration only perform atomic loads
//   - Fine-grained writes: Put, Remove, Replace and Clear lock a single segment
//   - Lazy segments: only segment 0 is built eagerly, the others are installed on
//     first write through a single-winner compare-and-swap
//   - Incremental growth: every segment doubles its own table, the directory of
//     segments never changes after construction
//   - Weakly consistent iteration that never fails under concurrent mutation
//
// Key Components:
//
//   - Spreader: folds the 64-bit key hash to 32 bits and mixes it with a
//     Wang/Jenkins avalanche so that hashes differing only in high or low bits
//     still separate across power-of-two tables. The top bits select the
//     segment, the low bits select the bucket. The default hasher is keyed with a
//     per-map random seed (hash/maphash) which defends against hash flooding.
//
//   - entry: a singly linked node with an immutable hash and key. The value and
//     the forward link are atomic pointers, so a reader that loads a node always
//     observes it fully constructed.
//
//   - segment: bucket array, count, mutation counter and grow threshold guarded
//     by a sync.Mutex. All chain mutations happen under that mutex and are
//     published with atomic stores.
//
//   - directory: a fixed slice of atomic segment slots, sized to the next power
//     of two of the requested concurrency and capped at MaxSegments.
//
//   - Map: routes operations to segments and implements the aggregate
//     operations (Size, IsEmpty, ContainsValue). Aggregates first try two
//     unlocked passes and compare the sum of the mutation counters. Only when the
//     counters keep moving do they lock every segment.
//
//   - Iterator: an explicit state machine (segment cursor, bucket cursor, table
//     snapshot, next entry, last returned entry) walking segments and buckets
//     from last to first.
//
// Consistency Notes:
//
//   - A Put that happens before a Get on another goroutine (through any
//     synchronization, including this map) is always visible to that Get.
//   - Mutations of one segment are totally ordered by its mutex. There is no
//     ordering across segments, so Size under concurrent writes is an
//     approximation that becomes exact once writers quiesce.
//   - Iterators reflect each segment as of the moment they reach it. A key
//     present from before the iterator was created until the iterator reaches
//     its segment is returned at least once.
//
// Preconditions:
//
// Nil keys and nil values (for pointer, interface, slice, map, channel and
// function types) are rejected. Operations panic with a *PreconditionError that
// wraps ErrNilKey or ErrNilValue, in the same way writing to a nil Go map
// panics. Constructor misuse is reported as a returned *ConfigError.
//
// Usage:
//
//	m, err := segmap.New[string, int](&segmap.Options{
//		InitialCapacity: 16,
//		LoadFactor:      0.75,
//		Concurrency:     4,
//	})
//	if err != nil {
//		return err
//	}
//	m.Put("a", 1)
//	v, ok := m.Get("a")
//	for k, v := range m.All() {
//		fmt.Println(k, v)
//	}
package segmap
