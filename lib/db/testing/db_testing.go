package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/segkv/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs the conformance suite against a KVDB implementation.
// Every subtest gets a fresh database from factory and closes it afterwards.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, database db.KVDB)
	}{
		{"Set&Get", testSetGet},
		{"Expire", testExpire},
		{"Delete", testDelete},
		{"Has", testHas},
		{"SetEIfUnset", testSetEIfUnset},
		{"KeyExpiry", testKeyExpiry},
		{"ManyExpiringKeys", testManyExpiringKeys},
		{"StaleWrites", testStaleWrites},
		{"WriteIndex", testWriteIndex},
		{"Range", testRange},
		{"Size", testSize},
		{"EdgeCases", testEdgeCases},
		{"CollisionHandling", testCollisionHandling},
		{"ConcurrentDistinctKeys", testConcurrentDistinctKeys},
		{"RealisticUsage", testRealisticUsage},
	}

	t.Run(name, func(t *testing.T) {
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				database := factory()
				defer database.Close()
				tt.fn(t, database)
			})
		}
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	t.Helper()
	if !database.SupportsFeature(feature) {
		t.Skipf("feature %s not supported", feature)
	}
}

func expectValue(t *testing.T, database db.KVDB, key string, want []byte) {
	t.Helper()
	got, ok := database.Get(key)
	if !ok {
		t.Errorf("Expected key %q to exist", key)
		return
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Expected value %q for key %q, got %q", want, key, got)
	}
}

func expectMissing(t *testing.T, database db.KVDB, key string) {
	t.Helper()
	if v, ok := database.Get(key); ok {
		t.Errorf("Expected key %q to be missing, got %q", key, v)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	database.Set("test-key", []byte("test-value1"), 0)
	expectValue(t, database, "test-key", []byte("test-value1"))

	database.Set("test-key", []byte("test-value2"), 0)
	expectValue(t, database, "test-key", []byte("test-value2"))

	expectMissing(t, database, "nonexistent-key")

	// Get returns a copy
	retrieved, _ := database.Get("test-key")
	retrieved[0] = 'X'
	expectValue(t, database, "test-key", []byte("test-value2"))

	// Set copies its input
	input := []byte("input")
	database.Set("copy-key", input, 0)
	input[0] = 'X'
	expectValue(t, database, "copy-key", []byte("input"))
}

func testExpire(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureExpire|db.FeatureHas)

	database.Set("expire-test-key", []byte("expire-test-value"), 0)
	expectValue(t, database, "expire-test-key", []byte("expire-test-value"))

	database.Expire("expire-test-key", 10)
	expectMissing(t, database, "expire-test-key")
	if !database.Has("expire-test-key") {
		t.Error("Expected key to be reported by Has after Expire")
	}

	database.Expire("nonexistent-key", 11)
	if database.Has("nonexistent-key") {
		t.Error("Expire must not create keys")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete|db.FeatureHas)

	database.Set("delete-test-key", []byte("delete-test-value"), 0)
	database.Delete("delete-test-key", 10)

	expectMissing(t, database, "delete-test-key")
	if database.Has("delete-test-key") {
		t.Error("Expected Has to be false after Delete")
	}

	database.Delete("nonexistent-key", 11)
	if database.Has("nonexistent-key") {
		t.Error("Delete must not create keys")
	}

	// the key can be written again afterwards
	database.Set("delete-test-key", []byte("again"), 12)
	expectValue(t, database, "delete-test-key", []byte("again"))
}

func testHas(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSet|db.FeatureHas|db.FeatureExpire)

	if database.Has("has-key") {
		t.Error("Expected Has to return false for nonexistent key")
	}
	database.Set("has-key", []byte("v"), 0)
	if !database.Has("has-key") {
		t.Error("Expected Has to return true after Set")
	}
	database.Expire("has-key", 0)
	if !database.Has("has-key") {
		t.Error("Expected Has to return true after Expire")
	}
}

func testSetEIfUnset(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSetEIfUnset|db.FeatureGet|db.FeatureDelete)

	database.SetEIfUnset("test-key", []byte("test-value"), 0, 10, 0)
	expectValue(t, database, "test-key", []byte("test-value"))

	database.SetEIfUnset("test-key", []byte("test-value2"), 5, 20, 0)
	expectValue(t, database, "test-key", []byte("test-value"))

	database.SetWriteIdx(11)
	expectMissing(t, database, "test-key")

	// a deleted key counts as unset
	database.Set("deleted-key", []byte("old"), 12)
	database.Delete("deleted-key", 13)
	database.SetEIfUnset("deleted-key", []byte("new"), 14, 0, 0)
	expectValue(t, database, "deleted-key", []byte("new"))
}

func testKeyExpiry(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSetE|db.FeatureGet|db.FeatureHas)

	value := []byte("expiring-value")
	database.SetE("expiring-key", value, 100, 10, 20)
	database.SetE("delete-only-key", value, 100, 0, 10)
	database.SetE("forever-key", value, 100, 0, 0)

	steps := []struct {
		index                uint64
		key                  string
		wantValue, wantFound bool
	}{
		{109, "expiring-key", true, true},
		{109, "delete-only-key", true, true},
		{110, "expiring-key", false, true},
		{110, "delete-only-key", false, false},
		{119, "expiring-key", false, true},
		{120, "expiring-key", false, false},
		{1000, "forever-key", true, true},
	}

	for _, s := range steps {
		database.SetWriteIdx(s.index)
		if _, gotValue := database.Get(s.key); gotValue != s.wantValue {
			t.Errorf("index %d: Get(%s) found=%v, want %v", s.index, s.key, gotValue, s.wantValue)
		}
		if gotFound := database.Has(s.key); gotFound != s.wantFound {
			t.Errorf("index %d: Has(%s)=%v, want %v", s.index, s.key, gotFound, s.wantFound)
		}
	}
}

func testManyExpiringKeys(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSetE|db.FeatureGet|db.FeatureHas)

	const numKeys = 1000
	baseIndex := uint64(1000)

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("expire-key-%d", i)
		database.SetE(key, []byte(key), baseIndex, uint64(i%100), 0)
		if !database.Has(key) {
			t.Fatalf("Key %s not found after SetE", key)
		}
	}

	for offset := uint64(0); offset <= 100; offset += 10 {
		database.SetWriteIdx(baseIndex + offset)
		for i := 0; i < numKeys; i++ {
			ttl := uint64(i % 100)
			_, exists := database.Get(fmt.Sprintf("expire-key-%d", i))
			if wantExpired := ttl > 0 && ttl <= offset; exists == wantExpired {
				t.Fatalf("offset %d: key %d (ttl %d) exists=%v", offset, i, ttl, exists)
			}
		}
	}
}

func testStaleWrites(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	database.Set("stale-key", []byte("new"), 20)
	database.Set("stale-key", []byte("old"), 10)
	expectValue(t, database, "stale-key", []byte("new"))

	database.Set("stale-key", []byte("same-index"), 20)
	expectValue(t, database, "stale-key", []byte("same-index"))

	database.Delete("stale-key", 30)
	database.Set("stale-key", []byte("resurrected"), 25)
	expectMissing(t, database, "stale-key")
}

func testWriteIndex(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSet)

	database.SetWriteIdx(10)
	database.SetWriteIdx(5)
	if got := database.WriteIdx(); got != 10 {
		t.Errorf("WriteIdx = %d, want 10 (must never decrease)", got)
	}
	database.Set("k", []byte("v"), 42)
	if got := database.WriteIdx(); got != 42 {
		t.Errorf("WriteIdx = %d after write at 42", got)
	}
}

func testRange(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSet|db.FeatureRange|db.FeatureExpire|db.FeatureDelete)

	for i := 0; i < 100; i++ {
		database.Set(fmt.Sprintf("range-%d", i), []byte(fmt.Sprintf("v%d", i)), 1)
	}
	database.Expire("range-0", 2)
	database.Delete("range-1", 3)

	seen := make(map[string]string)
	database.Range(func(key string, value []byte) bool {
		seen[key] = string(value)
		return true
	})
	if len(seen) != 98 {
		t.Errorf("Range visited %d keys, want 98", len(seen))
	}
	if _, ok := seen["range-0"]; ok {
		t.Error("Range returned an expired key")
	}
	if _, ok := seen["range-1"]; ok {
		t.Error("Range returned a deleted key")
	}
	if seen["range-42"] != "v42" {
		t.Errorf("Range value for range-42 = %q", seen["range-42"])
	}

	n := 0
	database.Range(func(string, []byte) bool {
		n++
		return n < 5
	})
	if n != 5 {
		t.Errorf("Range did not stop early: %d calls", n)
	}
}

func testSize(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSet|db.FeatureSize)

	if database.Size() != 0 {
		t.Errorf("Size = %d on empty database", database.Size())
	}
	for i := 0; i < 250; i++ {
		database.Set(fmt.Sprintf("size-%d", i), []byte("v"), 0)
	}
	database.Set("size-0", []byte("overwrite"), 0)
	if database.Size() != 250 {
		t.Errorf("Size = %d, want 250", database.Size())
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	tests := []struct {
		name  string
		key   string
		value []byte
	}{
		{"empty key", "", []byte("value for empty key")},
		{"empty value", "empty-value-key", []byte{}},
		{"nil value", "nil-value-key", nil},
		{"large key", string(make([]byte, 1000)), []byte("value for large key")},
		{"binary key", "\x00\xff\x00", []byte{0, 1, 2}},
		{"large value", "large-value-key", bytes.Repeat([]byte{0xAB, 0xCD}, 4*1024*1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database.Set(tt.key, tt.value, 0)
			got, ok := database.Get(tt.key)
			if !ok {
				t.Fatalf("key not found after Set")
			}
			if len(got) != len(tt.value) || !bytes.Equal(got, tt.value) {
				t.Errorf("value mismatch: got %d bytes, want %d", len(got), len(tt.value))
			}
		})
	}
}

func testCollisionHandling(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	const numKeys = 1000
	for i := 0; i < numKeys; i++ {
		database.Set(fmt.Sprintf("collision-test-%d", i), []byte(fmt.Sprintf("value-%d", i)), 0)
	}
	for i := 0; i < numKeys; i++ {
		expectValue(t, database, fmt.Sprintf("collision-test-%d", i), []byte(fmt.Sprintf("value-%d", i)))
	}

	for i := 0; i < numKeys; i += 2 {
		database.Delete(fmt.Sprintf("collision-test-%d", i), 10)
	}
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("collision-test-%d", i)
		if i%2 == 0 {
			expectMissing(t, database, key)
		} else {
			expectValue(t, database, key, []byte(fmt.Sprintf("value-%d", i)))
		}
	}
}

func testConcurrentDistinctKeys(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureSize)

	const workers, perWorker = 8, 1000
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				database.Set(fmt.Sprintf("w%d-%d", w, i), []byte{byte(w), byte(i)}, uint64(i))
			}
		}(w)
	}
	wg.Wait()

	if got := database.Size(); got != workers*perWorker {
		t.Errorf("Size = %d, want %d", got, workers*perWorker)
	}
	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i += 97 {
			expectValue(t, database, fmt.Sprintf("w%d-%d", w, i), []byte{byte(w), byte(i)})
		}
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	const numOperations, numWorkers = 10_000, 8

	type operation struct {
		op    string
		key   string
		value []byte
	}
	operations := make([]operation, numOperations)
	allKeys := make(map[string]bool)
	for i := range operations {
		op := "set"
		switch i % 10 {
		case 7, 8:
			op = "get"
		case 9:
			op = "delete"
		}

		key := fmt.Sprintf("key-%d", i)
		if i%5 == 0 {
			key = fmt.Sprintf("hot-key-%d", i%50)
		}

		var value []byte
		if op == "set" {
			size := 64
			if i%10 == 0 {
				size = 1024
			}
			value = bytes.Repeat([]byte{byte(i)}, size)
		}
		operations[i] = operation{op, key, value}
		allKeys[key] = true
	}

	var wg sync.WaitGroup
	opsPerWorker := numOperations / numWorkers
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			for _, op := range operations[start : start+opsPerWorker] {
				switch op.op {
				case "set":
					database.Set(op.key, op.value, 0)
				case "get":
					database.Get(op.key)
				case "delete":
					database.Delete(op.key, 0)
				}
			}
		}(w * opsPerWorker)
	}
	wg.Wait()

	// once quiesced, two passes must agree
	first := make(map[string][]byte)
	for key := range allKeys {
		if v, ok := database.Get(key); ok {
			first[key] = v
		}
	}
	for key := range allKeys {
		v, ok := database.Get(key)
		prev, existed := first[key]
		if ok != existed || !bytes.Equal(v, prev) {
			t.Errorf("Consistency error: key %s changed between verification passes", key)
		}
	}
}
