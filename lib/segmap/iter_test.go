package segmap

import (
	"errors"
	"sync"
	"testing"
)

func identityMap(t *testing.T, opts *Options) *Map[int, int] {
	t.Helper()
	m, err := NewWithHasher[int, int](opts, func(k int, _ uint64) uint64 { return uint64(k) })
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestIteratorVisitsEverything(t *testing.T) {
	m := identityMap(t, nil)
	for i := 0; i < 1000; i++ {
		m.Put(i, i*2)
	}

	seen := make(map[int]bool)
	it := m.Iterator()
	for it.HasNext() {
		e, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e.Value != e.Key*2 {
			t.Errorf("entry %d has value %d", e.Key, e.Value)
		}
		if seen[e.Key] {
			t.Errorf("key %d returned twice", e.Key)
		}
		seen[e.Key] = true
	}
	if len(seen) != 1000 {
		t.Errorf("iterator returned %d keys, want 1000", len(seen))
	}

	if _, err := it.Next(); !errors.Is(err, ErrNoSuchElement) {
		t.Errorf("Next on exhausted iterator = %v, want ErrNoSuchElement", err)
	}
}

func TestIteratorOrderIsReverse(t *testing.T) {
	m := identityMap(t, &Options{InitialCapacity: 64, LoadFactor: 0.75, Concurrency: 4})
	for i := 0; i < 40; i++ {
		m.Put(i, i)
	}

	prevSeg, prevBucket := m.ShardCount(), -1
	for k := range m.Keys() {
		h := spread(uint64(k))
		seg := m.dir.indexOf(h)
		bucket := int(h & uint32(m.dir.segmentAt(seg).tableLen()-1))
		switch {
		case seg > prevSeg:
			t.Fatalf("segment %d visited after segment %d", seg, prevSeg)
		case seg == prevSeg && bucket > prevBucket:
			t.Fatalf("bucket %d visited after bucket %d in segment %d", bucket, prevBucket, seg)
		}
		prevSeg, prevBucket = seg, bucket
	}
}

func TestIteratorEmptyMap(t *testing.T) {
	m := newTestMap[string, int](t, nil)
	it := m.Iterator()
	if it.HasNext() {
		t.Error("HasNext on empty map")
	}
	if _, err := it.Next(); !errors.Is(err, ErrNoSuchElement) {
		t.Errorf("Next = %v, want ErrNoSuchElement", err)
	}
}

func TestIteratorRemove(t *testing.T) {
	m := newTestMap[int, int](t, nil)
	for i := 0; i < 10; i++ {
		m.Put(i, i)
	}

	it := m.Iterator()
	if err := it.Remove(); !errors.Is(err, ErrIllegalState) {
		t.Errorf("Remove before Next = %v, want ErrIllegalState", err)
	}

	e, _ := it.Next()
	if err := it.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := it.Remove(); !errors.Is(err, ErrIllegalState) {
		t.Errorf("second Remove = %v, want ErrIllegalState", err)
	}
	if m.ContainsKey(e.Key) {
		t.Errorf("key %d still present after Remove", e.Key)
	}

	// remove everything else through the iterator
	for it.HasNext() {
		if _, err := it.Next(); err != nil {
			t.Fatal(err)
		}
		if err := it.Remove(); err != nil {
			t.Fatal(err)
		}
	}
	if !m.IsEmpty() {
		t.Errorf("Size = %d after removing through iterator", m.Size())
	}
}

func TestEntrySetValueWritesThrough(t *testing.T) {
	m := newTestMap[string, int](t, nil)
	m.Put("a", 1)

	it := m.Iterator()
	e, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if old := e.SetValue(5); old != 1 {
		t.Errorf("SetValue returned %d, want 1", old)
	}
	if e.Value != 5 {
		t.Errorf("entry value = %d, want 5", e.Value)
	}
	if v, _ := m.Get("a"); v != 5 {
		t.Errorf("Get = %d, want 5", v)
	}
}

func TestKeyAndValueIterators(t *testing.T) {
	m := newTestMap[int, string](t, nil)
	m.Put(1, "one")
	m.Put(2, "two")

	keys := 0
	for ki := m.KeyIterator(); ki.HasNext(); {
		k, err := ki.Next()
		if err != nil || (k != 1 && k != 2) {
			t.Errorf("KeyIterator.Next = (%d, %v)", k, err)
		}
		keys++
	}
	values := 0
	for vi := m.ValueIterator(); vi.HasNext(); {
		v, err := vi.Next()
		if err != nil || (v != "one" && v != "two") {
			t.Errorf("ValueIterator.Next = (%q, %v)", v, err)
		}
		values++
	}
	if keys != 2 || values != 2 {
		t.Errorf("iterated %d keys and %d values, want 2 each", keys, values)
	}
}

func TestRangeStopsEarly(t *testing.T) {
	m := newTestMap[int, int](t, nil)
	for i := 0; i < 100; i++ {
		m.Put(i, i)
	}

	n := 0
	m.Range(func(int, int) bool {
		n++
		return n < 10
	})
	if n != 10 {
		t.Errorf("Range visited %d entries, want 10", n)
	}

	n = 0
	for range m.Values() {
		n++
		if n == 5 {
			break
		}
	}
	if n != 5 {
		t.Errorf("Values loop ran %d times, want 5", n)
	}
}

// Entries present for the whole iteration must be returned exactly once even
// while other keys are inserted and removed concurrently.
func TestIteratorWeakConsistency(t *testing.T) {
	m := newTestMap[int, int](t, &Options{InitialCapacity: 16, LoadFactor: 0.75, Concurrency: 4})
	const stable = 500
	for i := 0; i < stable; i++ {
		m.Put(i, i)
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-done:
					return
				default:
				}
				k := stable + w*100_000 + i%5000
				m.Put(k, k)
				if i%3 == 0 {
					m.Remove(k)
				}
			}
		}(w)
	}

	for round := 0; round < 20; round++ {
		seen := make(map[int]int)
		for k := range m.Keys() {
			seen[k]++
		}
		for i := 0; i < stable; i++ {
			if seen[i] != 1 {
				t.Fatalf("round %d: stable key %d seen %d times", round, i, seen[i])
			}
		}
	}
	close(done)
	wg.Wait()
}

func TestViews(t *testing.T) {
	m := newTestMap[string, int](t, nil)
	m.Put("a", 1)
	m.Put("b", 2)

	keys := m.KeySet()
	values := m.ValueCollection()
	entries := m.EntrySet()

	t.Run("KeySet", func(t *testing.T) {
		if keys.Size() != 2 || keys.IsEmpty() {
			t.Errorf("KeySet Size=%d IsEmpty=%v", keys.Size(), keys.IsEmpty())
		}
		if !keys.Contains("a") || keys.Contains("z") {
			t.Error("KeySet.Contains mismatch")
		}
		if !keys.Remove("a") || m.ContainsKey("a") {
			t.Error("KeySet.Remove should delete from the map")
		}
		if keys.Remove("a") {
			t.Error("KeySet.Remove of absent key reported true")
		}
		m.Put("a", 1)
	})

	t.Run("ValueCollection", func(t *testing.T) {
		if !values.Contains(2) || values.Contains(3) {
			t.Error("ValueCollection.Contains mismatch")
		}
		sum := 0
		for v := range values.All() {
			sum += v
		}
		if sum != 3 {
			t.Errorf("sum of values = %d, want 3", sum)
		}
	})

	t.Run("EntrySet", func(t *testing.T) {
		if !entries.Contains("b", 2) || entries.Contains("b", 3) {
			t.Error("EntrySet.Contains mismatch")
		}
		if entries.Remove("b", 3) {
			t.Error("EntrySet.Remove with wrong value succeeded")
		}
		if !entries.Remove("b", 2) || m.ContainsKey("b") {
			t.Error("EntrySet.Remove should delete the pair")
		}
	})

	t.Run("views are live", func(t *testing.T) {
		m.Put("c", 3)
		if !keys.Contains("c") || !values.Contains(3) || !entries.Contains("c", 3) {
			t.Error("views should reflect later writes")
		}
		entries.Clear()
		if !m.IsEmpty() || !keys.IsEmpty() || !values.IsEmpty() {
			t.Error("Clear through a view should empty the map")
		}
	})
}
