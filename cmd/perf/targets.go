package perf

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/segkv/lib/segmap"
	"github.com/puzpuzpuz/xsync/v3"
)

// target is the map surface exercised by the benchmarks.
type target interface {
	Get(key string) (string, bool)
	Put(key, value string)
	PutIfAbsent(key, value string) (loaded bool)
	Remove(key string)
	Size() int
}

// newTarget creates an empty map of the named implementation.
func newTarget(impl string, opts *segmap.Options) (target, error) {
	switch impl {
	case "segmap":
		m, err := segmap.New[string, string](opts)
		if err != nil {
			return nil, err
		}
		return segmapTarget{m}, nil
	case "xsync":
		return xsyncTarget{xsync.NewMapOf[string, string](xsync.WithPresize(opts.InitialCapacity))}, nil
	case "syncmap":
		return &syncMapTarget{n: xsync.NewCounter()}, nil
	default:
		return nil, fmt.Errorf("invalid impl %q (expected one of: segmap, xsync, syncmap)", impl)
	}
}

type segmapTarget struct{ m *segmap.Map[string, string] }

func (t segmapTarget) Get(key string) (string, bool) { return t.m.Get(key) }
func (t segmapTarget) Put(key, value string) { t.m.Put(key, value) }
func (t segmapTarget) Remove(key string) { t.m.Remove(key) }
func (t segmapTarget) Size() int { return t.m.Size() }

func (t segmapTarget) PutIfAbsent(key, value string) bool {
	_, loaded := t.m.PutIfAbsent(key, value)
	return loaded
}

type xsyncTarget struct{ m *xsync.MapOf[string, string] }

func (t xsyncTarget) Get(key string) (string, bool) { return t.m.Load(key) }
func (t xsyncTarget) Put(key, value string) { t.m.Store(key, value) }
func (t xsyncTarget) Remove(key string) { t.m.Delete(key) }
func (t xsyncTarget) Size() int { return t.m.Size() }

func (t xsyncTarget) PutIfAbsent(key, value string) bool {
	_, loaded := t.m.LoadOrStore(key, value)
	return loaded
}

// syncMapTarget counts entries itself since sync.Map has no size.
type syncMapTarget struct {
	m sync.Map
	n *xsync.Counter
}

func (t *syncMapTarget) Get(key string) (string, bool) {
	v, ok := t.m.Load(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (t *syncMapTarget) Put(key, value string) {
	if _, loaded := t.m.Swap(key, value); !loaded {
		t.n.Inc()
	}
}

func (t *syncMapTarget) PutIfAbsent(key, value string) bool {
	_, loaded := t.m.LoadOrStore(key, value)
	if !loaded {
		t.n.Inc()
	}
	return loaded
}

func (t *syncMapTarget) Remove(key string) {
	if _, loaded := t.m.LoadAndDelete(key); loaded {
		t.n.Dec()
	}
}

func (t *syncMapTarget) Size() int { return int(t.n.Value()) }
