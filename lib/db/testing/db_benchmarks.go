package testing

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/segkv/lib/db"
	"github.com/puzpuzpuz/xsync/v3"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementation
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	benchmarks := []struct {
		name string
		fn   func(b *testing.B, database db.KVDB)
	}{
		{"Set", benchmarkSet},
		{"SetExisting", benchmarkSetExisting},
		{"SetWithExpiry", benchmarkSetWithExpiry},
		{"Get", benchmarkGet},
		{"Has(not)", benchmarkHasNot},
		{"Delete", benchmarkDelete},
		{"Range", benchmarkRange},
		{"Size", benchmarkSize},
		{"MixedUsage", benchmarkMixedUsage},
	}

	b.Run(name, func(b *testing.B) {
		for _, bm := range benchmarks {
			b.Run(bm.name, func(b *testing.B) {
				database := factory()
				b.Cleanup(func() {
					database.Close()
				})
				bm.fn(b, database)
			})
		}
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func benchKey(i int) string {
	return fmt.Sprintf("bench-key-%d", i)
}

func fill(database db.KVDB, n int) {
	for i := 0; i < n; i++ {
		database.Set(benchKey(i), []byte(fmt.Sprintf("bench-value-%d", i)), 0)
	}
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkSet(b *testing.B, database db.KVDB) {
	requireFeature(b, database, db.FeatureSet)

	next := xsync.NewCounter()
	value := []byte("bench-value")
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			next.Inc()
			database.Set(benchKey(int(next.Value())), value, 0)
		}
	})
}

func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	requireFeature(b, database, db.FeatureSet)

	const numKeys = 10_000
	fill(database, numKeys)
	value := []byte("bench-value")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			database.Set(benchKey(r.Intn(numKeys)), value, 0)
		}
	})
}

func benchmarkSetWithExpiry(b *testing.B, database db.KVDB) {
	requireFeature(b, database, db.FeatureSetE)

	value := []byte("bench-value")
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		i := 0
		for pb.Next() {
			database.SetE(benchKey(r.Intn(100_000)), value, uint64(i), uint64(r.Intn(100)+1), uint64(r.Intn(100)+100))
			i++
		}
	})
}

func benchmarkGet(b *testing.B, database db.KVDB) {
	requireFeature(b, database, db.FeatureSet|db.FeatureGet)

	const numKeys = 10_000
	fill(database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			database.Get(benchKey(r.Intn(numKeys)))
		}
	})
}

func benchmarkHasNot(b *testing.B, database db.KVDB) {
	requireFeature(b, database, db.FeatureHas)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			database.Has(benchKey(i))
			i++
		}
	})
}

func benchmarkDelete(b *testing.B, database db.KVDB) {
	requireFeature(b, database, db.FeatureSet|db.FeatureDelete)

	numKeys := min(b.N, 100_000)
	fill(database, numKeys)

	next := xsync.NewCounter()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			next.Inc()
			database.Delete(benchKey(int(next.Value())%numKeys), 1)
		}
	})
}

func benchmarkRange(b *testing.B, database db.KVDB) {
	requireFeature(b, database, db.FeatureSet|db.FeatureRange)

	fill(database, 10_000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Range(func(string, []byte) bool { return true })
	}
}

func benchmarkSize(b *testing.B, database db.KVDB) {
	requireFeature(b, database, db.FeatureSet|db.FeatureSize)

	fill(database, 10_000)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			database.Size()
		}
	})
}

func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	requireFeature(b, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete|db.FeatureHas)

	const numKeys = 10_000
	fill(database, numKeys)
	value := []byte("bench-value")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := benchKey(r.Intn(numKeys))
			switch op := r.Intn(100); {
			case op < 70:
				database.Get(key)
			case op < 85:
				database.Set(key, value, 0)
			case op < 95:
				database.Has(key)
			default:
				database.Delete(key, 0)
			}
		}
	})
}
