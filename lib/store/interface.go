package store

import (
	"fmt"

	"github.com/ValentinKolb/segkv/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
type DBFactory func() db.KVDB

// Pair is a key with its value as returned by Scan.
type Pair struct {
	Key   string `json:"key" yaml:"key"`
	Value []byte `json:"value" yaml:"value"`
}

// IStore is the interface applications use to talk to a key-value store.
// The store assigns the write indices the underlying db.KVDB needs. All
// errors returned are of type *Error.
type IStore interface {
	// Set inserts or updates a key-value pair.
	Set(key string, value []byte) (err error)
	// SetE inserts or updates a key-value pair with expiration and/or deletion offsets.
	// A zero value for expireIn and deleteIn means no expiration or deletion.
	SetE(key string, value []byte, expireIn, deleteIn uint64) (err error)
	// SetEIfUnset inserts a key-value pair if the key does not exist.
	// No error is returned if the key already exists.
	SetEIfUnset(key string, value []byte, expireIn, deleteIn uint64) (err error)
	// Expire drops the value for a key. The key is still reported by Has.
	Expire(key string) (err error)
	// Delete removes a key-value pair.
	Delete(key string) (err error)
	// Get returns the value for a key. The boolean reports whether a live value was found.
	Get(key string) (value []byte, loaded bool, err error)
	// Has reports whether a key exists, including keys whose value expired.
	Has(key string) (loaded bool, err error)
	// Scan returns up to limit live pairs (limit <= 0 means all). The result
	// is weakly consistent and unordered.
	Scan(limit int) (pairs []Pair, err error)
	// Size returns the number of entries held by the database.
	Size() (size int, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
	// Close releases the underlying database.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code and a message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// Is matches any *Error carrying the same code, so callers can test with
// errors.Is(err, store.NewError(store.RetCUnsupportedOperation, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	default:
		return "Unknown"
	}
}
