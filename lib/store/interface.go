package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dCache/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// IStore is the interface of a single cache: a mapping of keys to versioned,
// optionally expiring values with counters, compare-and-swap and batches on top.
//
// Expected outcomes (miss, collision, stale version) are reported through the
// boolean results. The error result is reserved for *Error values with a code other
// than RetCSuccess, e.g. RetCTypeMismatch or RetCInvalidArgument.
// A ttl <= 0 always means "never expires".
type IStore interface {

	// --------------------------------------------------------------------------
	// Entry operations
	// --------------------------------------------------------------------------

	// Add creates the entry only if no live entry exists. added is false on collision.
	Add(key string, value []byte, ttl time.Duration) (added bool, err error)
	// Set creates or overwrites the entry.
	Set(key string, value []byte, ttl time.Duration) (err error)
	// Get returns the live value for key.
	Get(key string) (value []byte, loaded bool, err error)
	// Delete removes the entry. deleted is false if there was no live entry.
	Delete(key string) (deleted bool, err error)
	// GetAndDelete removes the entry and returns the value it held.
	GetAndDelete(key string) (value []byte, loaded bool, err error)

	// --------------------------------------------------------------------------
	// Compare-and-swap
	// --------------------------------------------------------------------------

	// Gets returns the live value together with its version (the CAS token).
	Gets(key string) (value []byte, version uint64, loaded bool, err error)
	// CompareAndSwap replaces the value only if the stored version equals expected.
	// loaded is false if the key is absent; swapped is false on a stale version.
	CompareAndSwap(key string, expected uint64, value []byte, ttl time.Duration) (swapped, loaded bool, err error)

	// --------------------------------------------------------------------------
	// Counters
	// --------------------------------------------------------------------------

	// Increment adds delta to the decimal counter stored at key, creating it from
	// initial if absent. The result is clamped at zero and saturates at the counter's width.
	Increment(key string, delta, initial int64) (value int64, err error)
	// CreateCounter creates a typed counter if the key is absent. created is false on collision.
	CreateCounter(key string, initial int64, width CounterWidth) (created bool, err error)
	// IncrementCounter applies delta to an existing counter and returns it with its declared width.
	IncrementCounter(key string, delta int64) (counter Counter, loaded bool, err error)
	// GetCounter reads a counter without modifying it.
	GetCounter(key string) (counter Counter, loaded bool, err error)

	// --------------------------------------------------------------------------
	// Batches
	// --------------------------------------------------------------------------

	// MultiAdd stores all pairs only if none of the keys holds a live entry.
	MultiAdd(keys []string, values [][]byte, ttl time.Duration) (added bool, err error)
	// MultiSet stores all pairs unconditionally.
	MultiSet(keys []string, values [][]byte, ttl time.Duration) (err error)
	// MultiDelete removes every given key that is present.
	MultiDelete(keys []string) (err error)
	// MultiGet returns the live values of the given keys, omitting absent ones.
	MultiGet(keys []string) (values map[string][]byte, err error)

	// --------------------------------------------------------------------------
	// Meta
	// --------------------------------------------------------------------------

	// GetDBInfo returns metadata about the engine underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
	// Close releases the underlying engine.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode `json:"code"`
	Msg  string  `json:"msg"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("store error (%s): %s", e.Code, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new store error with a formatted message.
func Errorf(code RetCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// CodeOf extracts the return code of err.
// nil maps to RetCSuccess, errors that are not *Error map to RetCInternalError.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	return RetCInternalError
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
	RetCNotFound                            // 4: Key or cache is absent or expired.
	RetCConflict                            // 5: Collision or version mismatch.
	RetCTypeMismatch                        // 6: Stored value is not a counter.
	RetCInvalidArgument                     // 7: Malformed request, e.g. mismatched batch lengths.
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
	case RetCNotFound:
		return "NotFound"
	case RetCConflict:
		return "Conflict"
	case RetCTypeMismatch:
		return "TypeMismatch"
	case RetCInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}
