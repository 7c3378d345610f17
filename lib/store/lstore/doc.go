// Package lstore implements store.IStore for a single process on top of any
// db.KVDB implementation.
//
// Write Index Management: the store keeps an atomic counter that is
// incremented for every write, giving the database a monotonically increasing
// logical clock for ordering writes and evaluating expiration and deletion
// offsets.
//
// Feature Detection: before dispatching, the store checks SupportsFeature of
// the database and returns a store.Error with RetCUnsupportedOperation
// instead of calling an operation the engine does not provide.
//
// Usage Example:
//
//	factory := func() db.KVDB {
//		sdb, _ := segment.NewSegmentDB(nil)
//		return sdb
//	}
//	s := lstore.NewLocalStore(factory)
//	defer s.Close()
//
//	err := s.SetE("session:123", sessionData, 300, 0)
//	value, exists, err := s.Get("session:123")
package lstore
