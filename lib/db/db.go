package db

import (
	"math"
	"time"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple Implementation = "maple"
)

// Feature represents engine features as bit flags
type Feature uint64

const (
	FeatureSet            Feature = 1 << iota // Support for Set operations
	FeatureAdd                                // Support for Add operations
	FeatureGet                                // Support for Get and GetEntry operations
	FeatureDelete                             // Support for Delete operations
	FeatureCompute                            // Support for single key Compute
	FeatureBatch                              // Support for ComputeBatch and GetMany
	FeatureGarbageCollect                     // Support for background reclamation of expired entries
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureAdd:
		return "Add"
	case FeatureGet:
		return "Get"
	case FeatureDelete:
		return "Delete"
	case FeatureCompute:
		return "Compute"
	case FeatureBatch:
		return "Batch"
	case FeatureGarbageCollect:
		return "GarbageCollect"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	Entries           int            `json:"entries"`
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Entries
// --------------------------------------------------------------------------

// Entry is the stored record for a key.
// ExpireAt is an absolute deadline in unix nanoseconds, zero means the entry never expires.
// Flags is opaque to the engine, the store layer uses it to remember counter widths.
type Entry struct {
	Value    []byte
	Version  uint64
	ExpireAt int64
	Flags    uint32
}

// Expired reports whether the entry is past its deadline at the given instant.
// An entry whose deadline equals now is already expired.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpireAt != 0 && now.UnixNano() >= e.ExpireAt
}

// Deadline converts a relative ttl into an absolute ExpireAt value.
// A ttl <= 0 yields 0 (no expiry). Deadlines beyond the int64 range saturate at math.MaxInt64.
func Deadline(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	n := now.UnixNano()
	if n > 0 && int64(ttl) > math.MaxInt64-n {
		return math.MaxInt64
	}
	return n + int64(ttl)
}

// Action tells the engine what to do with the result of a ComputeFunc.
type Action uint8

const (
	ActionKeep   Action = iota // leave the stored entry untouched
	ActionWrite                // store the returned entry under a fresh version
	ActionDelete               // remove the entry
)

// ComputeFunc decides the next state of a single key.
// old is only meaningful when loaded is true; expired entries are reported as not loaded.
// The engine overwrites the Version of a written entry, every other field is taken as returned.
type ComputeFunc func(old Entry, loaded bool, now time.Time) (next Entry, action Action)

// BatchComputeFunc decides the next state of several keys at once.
// The slices are index aligned with the keys passed to ComputeBatch. Returning ActionKeep for
// every key leaves the engine untouched, which is how callers implement all-or-nothing semantics.
type BatchComputeFunc func(old []Entry, loaded []bool, now time.Time) (next []Entry, actions []Action)

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines the interface for in-memory entry engines.
// Every method is safe for concurrent use. All mutations of a single key are serialized, and
// ComputeBatch is atomic with respect to every other operation, including GetMany.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set stores the value unconditionally and returns the new version.
	// A ttl <= 0 stores the entry without expiry. Flags of a previous entry are reset.
	Set(key string, value []byte, ttl time.Duration) (version uint64)

	// Add stores the value only if no live entry exists for the key.
	// Among concurrent adds of the same absent key exactly one returns true.
	Add(key string, value []byte, ttl time.Duration) (added bool)

	// Delete removes the entry for the key and reports whether a live entry was removed.
	Delete(key string) (deleted bool)

	// Compute runs fn inside the critical section of the key and applies the returned action.
	// It returns the entry that is stored after the call and whether it exists.
	Compute(key string, fn ComputeFunc) (current Entry, ok bool)

	// ComputeBatch runs fn once for all keys while no other operation can observe or modify any of them.
	// Duplicate keys are not allowed, callers must collapse them first.
	ComputeBatch(keys []string, fn BatchComputeFunc)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get returns a copy of the live value for the key.
	Get(key string) (value []byte, loaded bool)

	// GetEntry returns a copy of the live entry for the key.
	GetEntry(key string) (entry Entry, loaded bool)

	// GetMany returns the live values of the given keys as one consistent snapshot.
	// Missing or expired keys are omitted from the result.
	GetMany(keys []string) map[string][]byte

	// Len returns the number of stored entries, including expired entries not yet reclaimed.
	Len() int

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the engine supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the engine.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Versioning
	// --------------------------------------------------------------------------

	// WriteIdx returns the last version handed out by the engine.
	WriteIdx() (index uint64)

	// Close stops background work and releases the stored entries.
	Close() (err error)
}
