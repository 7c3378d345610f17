// Package store defines IStore, the interface applications use to read and
// write keys without dealing with write indices, and the typed Error returned
// by every store operation.
//
// Key Components:
//
//   - IStore Interface: Set, SetE, SetEIfUnset, Expire, Delete, Get, Has,
//     Scan, Size, GetDBInfo and Close. Errors carry a RetCode so callers (the
//     HTTP API in particular) can map them to responses.
//
//   - DBFactory: creates the db.KVDB a store runs on.
//
// The lstore package provides the in-process implementation.
package store
