package segmap

import (
	"strconv"
	"sync"
	"testing"

	"github.com/puzpuzpuz/xsync/v3"
)

const benchKeys = 1 << 14

var benchKeyStrings = func() []string {
	keys := make([]string, benchKeys)
	for i := range keys {
		keys[i] = "key-" + strconv.Itoa(i)
	}
	return keys
}()

// benchMap is the subset of operations compared across implementations.
type benchMap interface {
	Load(key string) (int, bool)
	Store(key string, value int)
	Delete(key string)
}

type segmapAdapter struct{ m *Map[string, int] }

func (a segmapAdapter) Load(key string) (int, bool) { return a.m.Get(key) }
func (a segmapAdapter) Store(key string, value int) { a.m.Put(key, value) }
func (a segmapAdapter) Delete(key string) { a.m.Remove(key) }

type syncMapAdapter struct{ m *sync.Map }

func (a syncMapAdapter) Load(key string) (int, bool) {
	v, ok := a.m.Load(key)
	if !ok {
		return 0, false
	}
	return v.(int), true
}
func (a syncMapAdapter) Store(key string, value int) { a.m.Store(key, value) }
func (a syncMapAdapter) Delete(key string) { a.m.Delete(key) }

func benchImplementations(b *testing.B) map[string]func() benchMap {
	return map[string]func() benchMap{
		"segmap": func() benchMap {
			m, err := New[string, int](&Options{InitialCapacity: benchKeys, LoadFactor: DefaultLoadFactor, Concurrency: 64})
			if err != nil {
				b.Fatal(err)
			}
			return segmapAdapter{m}
		},
		"xsync.MapOf": func() benchMap { return xsync.NewMapOf[string, int]() },
		"sync.Map":    func() benchMap { return syncMapAdapter{&sync.Map{}} },
	}
}

func runMixed(b *testing.B, readPercent int) {
	for name, factory := range benchImplementations(b) {
		b.Run(name, func(b *testing.B) {
			m := factory()
			for i, k := range benchKeyStrings {
				m.Store(k, i)
			}
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					k := benchKeyStrings[i&(benchKeys-1)]
					switch op := i % 100; {
					case op < readPercent:
						m.Load(k)
					case op%2 == 0:
						m.Store(k, i)
					default:
						m.Delete(k)
					}
					i++
				}
			})
		})
	}
}

func BenchmarkReadMostly(b *testing.B) { runMixed(b, 99) }
func BenchmarkReadHeavy(b *testing.B) { runMixed(b, 90) }
func BenchmarkBalanced(b *testing.B) { runMixed(b, 50) }

func BenchmarkSize(b *testing.B) {
	m, _ := New[string, int](nil)
	for i, k := range benchKeyStrings {
		m.Put(k, i)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = m.Size()
		}
	})
}

func BenchmarkIterate(b *testing.B) {
	m, _ := New[string, int](nil)
	for i, k := range benchKeyStrings {
		m.Put(k, i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := 0
		for range m.All() {
			n++
		}
	}
}
