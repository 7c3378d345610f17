package segmap

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func newTestMap[K comparable, V any](t testing.TB, opts *Options) *Map[K, V] {
	t.Helper()
	m, err := New[K, V](opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// expectPanic runs fn and checks that it panics with an error wrapping target.
func expectPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, target) {
			t.Errorf("expected panic wrapping %v, got %v", target, r)
		}
	}()
	fn()
}

// --------------------------------------------------------------------------
// Construction
// --------------------------------------------------------------------------

func TestNewValidatesOptions(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		field string
	}{
		{"negative capacity", Options{InitialCapacity: -1, LoadFactor: 0.75, Concurrency: 16}, "InitialCapacity"},
		{"zero load factor", Options{InitialCapacity: 16, LoadFactor: 0, Concurrency: 16}, "LoadFactor"},
		{"negative load factor", Options{InitialCapacity: 16, LoadFactor: -1, Concurrency: 16}, "LoadFactor"},
		{"zero concurrency", Options{InitialCapacity: 16, LoadFactor: 0.75, Concurrency: 0}, "Concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New[string, int](&tt.opts)
			if m != nil {
				t.Error("expected nil map on invalid options")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("expected ConfigError for %s, got %v", tt.field, err)
			}
		})
	}
}

func TestNewRequiresEqualityForUncomparableValues(t *testing.T) {
	m, err := New[string, []byte](nil)
	if m != nil {
		t.Error("expected nil map for an uncomparable value type")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "ValueEqual" {
		t.Fatalf("expected ConfigError for ValueEqual, got %v", err)
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	if _, err := NewWithHasher[string, []byte](nil, func(k string, seed uint64) uint64 { return seed ^ uint64(len(k)) }); err == nil {
		t.Error("NewWithHasher accepted an uncomparable value type without equality")
	}

	eq := func(a, b []byte) bool { return string(a) == string(b) }
	bm, err := NewWithFuncs[string, []byte](nil, nil, eq)
	if err != nil {
		t.Fatalf("NewWithFuncs with equality: %v", err)
	}
	bm.Put("k", []byte("v1"))
	if !bm.CompareAndReplace("k", []byte("v1"), []byte("v2")) {
		t.Error("CompareAndReplace with custom equality failed")
	}
	if !bm.ContainsValue([]byte("v2")) {
		t.Error("ContainsValue with custom equality failed")
	}

	// interface values are accepted; comparability is checked per call
	if _, err := New[string, any](nil); err != nil {
		t.Errorf("New[string, any]: %v", err)
	}
}

func TestNewSizing(t *testing.T) {
	tests := []struct {
		name         string
		opts         *Options
		wantShards   int
		wantSegTable int
	}{
		{"defaults", nil, 16, 2},
		{"concurrency rounded up", &Options{InitialCapacity: 16, LoadFactor: 0.75, Concurrency: 3}, 4, 4},
		{"concurrency capped", &Options{InitialCapacity: 0, LoadFactor: 0.75, Concurrency: 1 << 20}, MaxSegments, 2},
		{"single segment", &Options{InitialCapacity: 100, LoadFactor: 0.75, Concurrency: 1}, 1, 128},
		{"capacity split", &Options{InitialCapacity: 1000, LoadFactor: 0.75, Concurrency: 16}, 16, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMap[int, int](t, tt.opts)
			if got := m.ShardCount(); got != tt.wantShards {
				t.Errorf("ShardCount = %d, want %d", got, tt.wantShards)
			}
			if got := m.dir.segmentAt(0).tableLen(); got != tt.wantSegTable {
				t.Errorf("segment 0 table = %d, want %d", got, tt.wantSegTable)
			}
			for j := 1; j < m.ShardCount(); j++ {
				if m.dir.segmentAt(j) != nil {
					t.Fatalf("segment %d should be created lazily", j)
				}
			}
		})
	}
}

// --------------------------------------------------------------------------
// Basic operations
// --------------------------------------------------------------------------

func TestAlphabetScenario(t *testing.T) {
	m := newTestMap[string, int](t, &Options{InitialCapacity: 16, LoadFactor: 0.75, Concurrency: 4})

	for i := 0; i < 26; i++ {
		m.Put(string(rune('a'+i)), i+1)
	}
	if got := m.Size(); got != 26 {
		t.Errorf("Size = %d, want 26", got)
	}
	if v, ok := m.Get("m"); !ok || v != 13 {
		t.Errorf("Get(m) = (%d, %v), want (13, true)", v, ok)
	}

	if v, ok := m.Remove("m"); !ok || v != 13 {
		t.Errorf("Remove(m) = (%d, %v), want (13, true)", v, ok)
	}
	if got := m.Size(); got != 25 {
		t.Errorf("Size = %d after remove, want 25", got)
	}
	if m.ContainsKey("m") {
		t.Error("m should be gone")
	}

	seen := make(map[string]int)
	for k, v := range m.All() {
		seen[k] = v
	}
	if len(seen) != 25 {
		t.Errorf("iteration saw %d keys, want 25", len(seen))
	}
	if _, ok := seen["m"]; ok {
		t.Error("iteration returned removed key")
	}
}

func TestPutReturnsPrevious(t *testing.T) {
	m := newTestMap[string, string](t, nil)

	if _, loaded := m.Put("k", "v1"); loaded {
		t.Error("first Put should not report a previous value")
	}
	prev, loaded := m.Put("k", "v2")
	if !loaded || prev != "v1" {
		t.Errorf("Put = (%q, %v), want (v1, true)", prev, loaded)
	}
	if v, _ := m.Get("k"); v != "v2" {
		t.Errorf("Get = %q, want v2", v)
	}
	if m.Size() != 1 {
		t.Errorf("Size = %d, want 1", m.Size())
	}
}

func TestPutIfAbsent(t *testing.T) {
	m := newTestMap[string, int](t, nil)

	actual, loaded := m.PutIfAbsent("x", 1)
	if loaded || actual != 1 {
		t.Errorf("PutIfAbsent on empty = (%d, %v), want (1, false)", actual, loaded)
	}
	actual, loaded = m.PutIfAbsent("x", 2)
	if !loaded || actual != 1 {
		t.Errorf("PutIfAbsent on present = (%d, %v), want (1, true)", actual, loaded)
	}
	if v, _ := m.Get("x"); v != 1 {
		t.Errorf("value overwritten: %d", v)
	}
}

func TestConditionalOperations(t *testing.T) {
	m := newTestMap[string, int](t, nil)

	t.Run("Replace absent", func(t *testing.T) {
		if _, ok := m.Replace("missing", 1); ok {
			t.Error("Replace should not insert")
		}
		if m.ContainsKey("missing") {
			t.Error("Replace inserted a key")
		}
	})

	t.Run("Replace present", func(t *testing.T) {
		m.Put("k", 1)
		prev, ok := m.Replace("k", 2)
		if !ok || prev != 1 {
			t.Errorf("Replace = (%d, %v), want (1, true)", prev, ok)
		}
	})

	t.Run("CompareAndReplace", func(t *testing.T) {
		if m.CompareAndReplace("k", 1, 3) {
			t.Error("CompareAndReplace with stale value should fail")
		}
		if !m.CompareAndReplace("k", 2, 3) {
			t.Error("CompareAndReplace with current value should succeed")
		}
		if v, _ := m.Get("k"); v != 3 {
			t.Errorf("Get = %d, want 3", v)
		}
		if m.CompareAndReplace("nope", 0, 1) {
			t.Error("CompareAndReplace on absent key should fail")
		}
	})

	t.Run("RemoveIf", func(t *testing.T) {
		if m.RemoveIf("k", 2) {
			t.Error("RemoveIf with wrong value should fail")
		}
		if !m.RemoveIf("k", 3) {
			t.Error("RemoveIf with current value should succeed")
		}
		if m.ContainsKey("k") {
			t.Error("key still present after RemoveIf")
		}
	})
}

func TestPutAll(t *testing.T) {
	m := newTestMap[int, string](t, nil)
	src := make(map[int]string)
	for i := 0; i < 200; i++ {
		src[i] = strconv.Itoa(i)
	}
	m.PutAll(src)

	if m.Size() != 200 {
		t.Errorf("Size = %d, want 200", m.Size())
	}
	for k, v := range src {
		if got, _ := m.Get(k); got != v {
			t.Fatalf("Get(%d) = %q, want %q", k, got, v)
		}
	}
}

func TestPutAllRejectsBeforeWriting(t *testing.T) {
	m := newTestMap[string, *int](t, nil)
	one := 1
	expectPanic(t, ErrNilValue, func() {
		m.PutAll(map[string]*int{"a": &one, "b": nil, "c": &one})
	})
	if !m.IsEmpty() {
		t.Errorf("PutAll stored %d entries despite a nil value", m.Size())
	}
}

func TestClearAndIsEmpty(t *testing.T) {
	m := newTestMap[int, int](t, nil)
	if !m.IsEmpty() {
		t.Error("new map should be empty")
	}
	for i := 0; i < 500; i++ {
		m.Put(i, i)
	}
	if m.IsEmpty() {
		t.Error("map with entries reported empty")
	}

	m.Clear()
	if !m.IsEmpty() || m.Size() != 0 {
		t.Errorf("after Clear: IsEmpty=%v Size=%d", m.IsEmpty(), m.Size())
	}
	if m.ContainsKey(10) {
		t.Error("key survived Clear")
	}

	// the map stays usable
	m.Put(1, 1)
	if m.Size() != 1 {
		t.Errorf("Size = %d after reinsert, want 1", m.Size())
	}
}

func TestContainsValue(t *testing.T) {
	m := newTestMap[string, string](t, nil)
	m.Put("a", "apple")
	m.Put("b", "banana")

	if !m.ContainsValue("banana") {
		t.Error("ContainsValue(banana) = false")
	}
	if m.ContainsValue("cherry") {
		t.Error("ContainsValue(cherry) = true")
	}
}

func TestCustomEquality(t *testing.T) {
	type blob struct{ data []byte }
	eq := func(a, b *blob) bool { return string(a.data) == string(b.data) }
	m, err := NewWithFuncs[string, *blob](nil, nil, eq)
	if err != nil {
		t.Fatal(err)
	}

	m.Put("k", &blob{data: []byte("x")})
	if !m.ContainsValue(&blob{data: []byte("x")}) {
		t.Error("ContainsValue should use the custom equality")
	}
	if !m.CompareAndReplace("k", &blob{data: []byte("x")}, &blob{data: []byte("y")}) {
		t.Error("CompareAndReplace should use the custom equality")
	}
	if !m.RemoveIf("k", &blob{data: []byte("y")}) {
		t.Error("RemoveIf should use the custom equality")
	}
}

func TestCollidingHashes(t *testing.T) {
	m, err := NewWithHasher[int, int](&Options{InitialCapacity: 4, LoadFactor: 0.75, Concurrency: 4},
		func(int, uint64) uint64 { return 42 })
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 100; i++ {
		m.Put(i, i*i)
	}
	if m.Size() != 100 {
		t.Errorf("Size = %d, want 100", m.Size())
	}
	if got := m.Stats().InstalledSegments; got != 1 {
		t.Errorf("constant hash should use one segment, got %d", got)
	}
	for i := 0; i < 100; i += 2 {
		m.Remove(i)
	}
	for i := 0; i < 100; i++ {
		v, ok := m.Get(i)
		if want := i%2 == 1; ok != want || (ok && v != i*i) {
			t.Fatalf("Get(%d) = (%d, %v)", i, v, ok)
		}
	}
}

// --------------------------------------------------------------------------
// Preconditions
// --------------------------------------------------------------------------

func TestNilArgumentsPanic(t *testing.T) {
	one := 1
	m := newTestMap[*int, *int](t, nil)

	tests := []struct {
		name   string
		target error
		fn     func()
	}{
		{"Get nil key", ErrNilKey, func() { m.Get(nil) }},
		{"ContainsKey nil key", ErrNilKey, func() { m.ContainsKey(nil) }},
		{"Put nil key", ErrNilKey, func() { m.Put(nil, &one) }},
		{"Put nil value", ErrNilValue, func() { m.Put(&one, nil) }},
		{"PutIfAbsent nil value", ErrNilValue, func() { m.PutIfAbsent(&one, nil) }},
		{"Remove nil key", ErrNilKey, func() { m.Remove(nil) }},
		{"RemoveIf nil value", ErrNilValue, func() { m.RemoveIf(&one, nil) }},
		{"Replace nil value", ErrNilValue, func() { m.Replace(&one, nil) }},
		{"CompareAndReplace nil new", ErrNilValue, func() { m.CompareAndReplace(&one, &one, nil) }},
		{"ContainsValue nil", ErrNilValue, func() { m.ContainsValue(nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectPanic(t, tt.target, tt.fn)
		})
	}

	if !m.IsEmpty() {
		t.Error("rejected calls must not modify the map")
	}
}

func TestPreconditionErrorMessage(t *testing.T) {
	err := &PreconditionError{Op: "Put", Err: ErrNilKey}
	if got := err.Error(); got == "" || !errors.Is(err, ErrNilKey) {
		t.Errorf("unexpected error %q", got)
	}
}

// --------------------------------------------------------------------------
// Concurrency
// --------------------------------------------------------------------------

func TestConcurrentWritersAndSizeReaders(t *testing.T) {
	m := newTestMap[string, int](t, &Options{InitialCapacity: 16, LoadFactor: 0.75, Concurrency: 4})

	const writers, perWriter = 8, 1000
	var writersWG, readersWG sync.WaitGroup
	done := make(chan struct{})

	for r := 0; r < 8; r++ {
		readersWG.Add(1)
		go func() {
			defer readersWG.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if n := m.Size(); n < 0 || n > writers*perWriter {
					t.Errorf("Size = %d out of range", n)
					return
				}
			}
		}()
	}

	for w := 0; w < writers; w++ {
		writersWG.Add(1)
		go func(w int) {
			defer writersWG.Done()
			for i := 0; i < perWriter; i++ {
				m.Put(fmt.Sprintf("w%d-k%d", w, i), i)
			}
		}(w)
	}

	writersWG.Wait()
	close(done)
	readersWG.Wait()

	if got := m.Size(); got != writers*perWriter {
		t.Errorf("final Size = %d, want %d", got, writers*perWriter)
	}
}

func TestConcurrentCompareAndReplaceCounter(t *testing.T) {
	m := newTestMap[string, int](t, nil)
	m.Put("counter", 0)

	const goroutines, increments = 8, 500
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < increments; i++ {
				for {
					v, _ := m.Get("counter")
					if m.CompareAndReplace("counter", v, v+1) {
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	if v, _ := m.Get("counter"); v != goroutines*increments {
		t.Errorf("counter = %d, want %d (lost updates)", v, goroutines*increments)
	}
}

func TestConcurrentPutIfAbsentSingleWinner(t *testing.T) {
	m := newTestMap[int, int](t, nil)

	const goroutines = 16
	var wg sync.WaitGroup
	wins := make([]int, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for k := 0; k < 200; k++ {
				if _, loaded := m.PutIfAbsent(k, g); !loaded {
					wins[g]++
				}
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, w := range wins {
		total += w
	}
	if total != 200 {
		t.Errorf("PutIfAbsent succeeded %d times for 200 keys", total)
	}
}

func TestConcurrentReadersNeverSeePartialValues(t *testing.T) {
	type pair struct{ a, b int }
	m := newTestMap[int, pair](t, nil)
	for k := 0; k < 64; k++ {
		m.Put(k, pair{0, 0})
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for k := 0; k < 64; k++ {
					if p, ok := m.Get(k); ok && p.a != p.b {
						t.Errorf("torn value %+v", p)
						return
					}
				}
			}
		}()
	}

	for i := 1; i <= 2000; i++ {
		m.Put(i%64, pair{i, i})
	}
	close(done)
	wg.Wait()
}

func TestSizeEscalatesUnderChurn(t *testing.T) {
	m := newTestMap[int, int](t, &Options{InitialCapacity: 16, LoadFactor: 0.75, Concurrency: 2})

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
				k := w*1_000_000 + i%100
				m.Put(k, i)
				m.Remove(k)
			}
		}(w)
	}

	for i := 0; i < 200; i++ {
		if n := m.Size(); n < 0 || n > 400 {
			t.Errorf("Size = %d out of range", n)
		}
	}
	close(done)
	wg.Wait()

	// escalation is not guaranteed, only that it leaves every lock released
	m.Put(1, 1)
	if m.Size() != 1 {
		t.Errorf("Size = %d after churn, want 1", m.Size())
	}
}
