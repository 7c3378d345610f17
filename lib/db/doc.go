// Package db defines the KVDB interface implemented by the storage engines of
// segkv, the feature flags engines advertise, and the DatabaseInfo structure
// they report.
//
// Key Components:
//
//   - KVDB Interface: basic operations (Set, Get, Has, Delete), time-based
//     operations (SetE, SetEIfUnset, Expire), bulk reads (Range, Size),
//     metadata (GetInfo) and persistence (Save, Load).
//
//   - Feature Flags: implementations advertise what they support through
//     SupportsFeature. Callers such as the lstore package check features
//     before dispatching and report unsupported operations as errors.
//
//   - Implementation Identifiers: currently only "segment", the engine backed
//     by the segmented concurrent hash map in lib/segmap.
//
// Note on Time-Based Operations:
//   - Every write carries a write index used as a logical timestamp. It records
//     when the entry was written, anchors the expiration and deletion offsets and
//     advances the database clock.
//   - Reads take no index. They are evaluated against the current clock.
//   - SetWriteIdx advances the clock without a write. The clock never moves
//     backwards; lower indices are ignored.
//
// Note on Garbage Collection:
//   - Expired and deleted entries may stay in memory until a background
//     collector removes them. Get never returns an expired value and Has never
//     reports a deleted key, independent of the collector's progress.
//
// The engines/segment package provides the implementation, the testing
// package the shared conformance suite and benchmarks, and the util package
// statistics used by GetInfo.
package db
