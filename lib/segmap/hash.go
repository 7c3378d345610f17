package segmap

import (
	"crypto/rand"
	"encoding/binary"
	"hash/maphash"
	"reflect"
	"time"
)

// --------------------------------------------------------------------------
// Spreader
// --------------------------------------------------------------------------

// spread folds a 64-bit key hash into 32 bits and mixes it with a variant of
// the single-word Wang/Jenkins hash. Segment selection uses the top bits of
// the result and bucket selection the low bits, so both ends must be well
// distributed even for hash functions that only vary in one of them.
func spread(h uint64) uint32 {
	x := uint32(h) ^ uint32(h>>32)
	x += (x << 15) ^ 0xffffcd7d
	x ^= x >> 10
	x += x << 3
	x ^= x >> 6
	x += (x << 2) + (x << 14)
	return x ^ (x >> 16)
}

// comparableHasher returns the default keyed hash function. The seed is fixed
// for the lifetime of the map.
func comparableHasher[K comparable](seed maphash.Seed) func(K) uint64 {
	return func(key K) uint64 {
		return maphash.Comparable(seed, key)
	}
}

// seededHasher adapts a user hash function taking an explicit seed.
func seededHasher[K comparable](hasher func(K, uint64) uint64, seed uint64) func(K) uint64 {
	return func(key K) uint64 {
		return hasher(key, seed)
	}
}

// generateSeed returns a random seed for user supplied hash functions.
func generateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Type checks
// --------------------------------------------------------------------------

// isComparable reports whether == can be applied to values of type T without
// panicking. Interface types count as comparable.
func isComparable[T any]() bool {
	return reflect.TypeFor[T]().Comparable()
}

// canBeNil reports whether values of type T may be nil. Types that can never
// be nil skip the per-call check entirely.
func canBeNil[T any]() bool {
	t := reflect.TypeFor[T]()
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map,
		reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map,
		reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}
