// Package testing provides the shared conformance suite and benchmarks for
// implementations of the db.KVDB interface.
//
// Example usage:
//
//	factory := func() db.KVDB {
//		return NewMyDatabase()
//	}
//
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
//
// Subtests skip themselves when the implementation does not advertise the
// features they need.
package testing
