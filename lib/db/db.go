package db

import (
	"errors"
	"io"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplSegment Implementation = "segment"
)

// ErrUnsupported is returned by operations an implementation does not provide.
var ErrUnsupported = errors.New("operation not supported by this database")

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet            Feature = 1 << iota // Set
	FeatureSetE                               // SetE
	FeatureSetEIfUnset                        // SetEIfUnset
	FeatureGet                                // Get
	FeatureExpire                             // Expire
	FeatureDelete                             // Delete
	FeatureHas                                // Has
	FeatureSave                               // Save
	FeatureLoad                               // Load
	FeatureGarbageCollect                     // background removal of expired and deleted entries
	FeatureRange                              // Range
	FeatureSize                               // Size
)

var featureNames = map[Feature]string{
	FeatureSet:            "Set",
	FeatureSetE:           "SetE",
	FeatureSetEIfUnset:    "SetEIfUnset",
	FeatureGet:            "Get",
	FeatureExpire:         "Expire",
	FeatureDelete:         "Delete",
	FeatureHas:            "Has",
	FeatureSave:           "Save",
	FeatureLoad:           "Load",
	FeatureGarbageCollect: "GarbageCollect",
	FeatureRange:          "Range",
	FeatureSize:           "Size",
}

func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return "Unknown"
}

// MarshalText lets feature lists render as names in JSON and YAML.
func (f Feature) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes" yaml:"size_bytes"`
	DbType            Implementation `json:"db_type" yaml:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features" yaml:"supported_features"`
	Metadata          interface{}    `json:"metadata" yaml:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for key-value database implementations.
// It provides methods for basic operations like Set, Get, Delete, and various utility functions.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry with the given key and value.
	// The writeIndex parameter is used as a logical timestamp for the entry.
	// Writes carrying an index lower than the one stored for the key are ignored.
	Set(key string, value []byte, writeIndex uint64)

	// SetE inserts or updates an entry with an expiration and a deletion offset.
	// expireIn: after writeIndex+expireIn the value is gone but Has() still reports the key.
	// deleteIn: after writeIndex+deleteIn the key is gone.
	// 0 disables the respective offset.
	SetE(key string, value []byte, writeIndex uint64, expireIn, deleteIn uint64)

	// SetEIfUnset behaves like SetE but leaves an existing, not deleted entry untouched.
	SetEIfUnset(key string, value []byte, writeIndex uint64, expireIn, deleteIn uint64)

	// Expire drops the value of key immediately. The key stays findable with Has().
	Expire(key string, writeIndex uint64)

	// Delete removes key. It is not findable anymore afterwards.
	Delete(key string, writeIndex uint64)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves a copy of the value for key.
	// The boolean return value indicates whether a live value was found.
	Get(key string) (value []byte, loaded bool)

	// Has checks whether a key exists. Expired keys are reported, deleted ones are not.
	Has(key string) (loaded bool)

	// Range calls fn for every key holding a live value until fn returns false.
	// The values passed to fn are copies. Range is weakly consistent: it reflects
	// some state of each part of the database at the time that part is visited.
	Range(fn func(key string, value []byte) bool)

	// Size returns the number of entries held, including entries that are
	// expired or deleted but not yet collected.
	Size() int

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database.
	WriteIdx() (index uint64)

	// Close stops background work of the database.
	Close() (err error)
}
