// Package segment implements the db.KVDB interface on top of the segmented
// concurrent hash map in lib/segmap.
//
// Key Components:
//
//   - SegmentDB: the engine. It owns a segmap.Map[string, *record], the logical
//     write clock, the sweeper goroutine and a VictoriaMetrics metric set. The
//     engine does not generate write indices itself; callers pass them in with
//     every write (the lstore package assigns increasing ones).
//
//   - record: the immutable value stored per key. It carries the value bytes,
//     absolute expiration and deletion indices, the index of the last accepted
//     write and the expired/deleted flags set by Expire and Delete.
//
// Internal Mechanisms:
//
//   - Optimistic writes: every write reads the current record, builds a new
//     one and publishes it with PutIfAbsent or CompareAndReplace of the map. Records are compared by pointer, so a conflicting writer makes
//     the step fail and it is retried with the fresh record. The number of
//     retries is exported as segkv_write_conflicts_total.
//
//   - Stale Write Prevention: a write is only applied if its index is greater
//     than or equal to the index stored for the key. Delete writes a tombstone
//     so that older writes arriving late cannot bring a key back until the
//     sweeper collects the tombstone, which happens TombstoneRetention write
//     indices after the deletion took effect.
//
//   - Time-based Operations: expireIn and deleteIn are relative to the write
//     index. Expired entries return false for Get() but true for Has().
//     Deleted entries return false for both. Reads evaluate this against the
//     current clock, so they are correct independent of the sweeper.
//
// Garbage Collection:
//
//   - A single goroutine sweeps the map every GCInterval using the map's
//     weakly consistent iterator. It never blocks readers and only holds a
//     segment lock for the duration of one conditional update.
//
//   - Values of expired records are released by replacing the record with a
//     value-less copy. Deleted records and tombstones are removed. Both steps
//     are conditional on the record the sweeper observed, so a concurrent write
//     always wins.
//
// Persistence (Save, Load) is not supported and reported through
// SupportsFeature and db.ErrUnsupported.
package segment
