package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ValentinKolb/dCache/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Key      string   `json:"key,omitempty"`      // Used for: every single key operation
	Keys     []string `json:"keys,omitempty"`     // Used for: multi operations
	Value    []byte   `json:"value,omitempty"`    // Used for: add, set, cas, cache-write (request), get, gets, cache-read (response)
	Values   [][]byte `json:"values,omitempty"`   // Used for: multi-add, multi-set
	ExpireIn uint64   `json:"expireIn,omitempty"` // Relative ttl in milliseconds, 0 means no expiry
	Delta    int64    `json:"delta,omitempty"`    // Used for: incr, counter-incr
	Initial  int64    `json:"initial,omitempty"`  // Used for: incr, counter-create
	Version  uint64   `json:"version,omitempty"`  // Used for: cas (request), gets (response)
	Width    uint32   `json:"width,omitempty"`    // Used for: counter-create (request), counter responses
	Cache    string   `json:"cache,omitempty"`    // Used for: named cache operations
	Policy   string   `json:"policy,omitempty"`   // Used for: cache-declare
	Async    bool     `json:"async,omitempty"`    // Client hint, every write is still applied before the response

	// Response only fields
	Ok      bool              `json:"ok,omitempty"`      // Outcome of the operation (added, swapped, deleted, ...)
	Found   bool              `json:"found,omitempty"`   // Whether a live entry existed
	Number  int64             `json:"number,omitempty"`  // Used for: incr, counter responses
	Entries map[string][]byte `json:"entries,omitempty"` // Used for: multi-get
	Code    store.RetCode     `json:"code,omitempty"`    // Error code, only set together with Err
	Err     string            `json:"err,omitempty"`     // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: info (json encoded db.DatabaseInfo)
}

// SetError stores err on the message. Errors of type *store.Error keep their code,
// every other error is reported as store.RetCInternalError.
func (m *Message) SetError(err error) *Message {
	if err == nil {
		return m
	}
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		m.Code = storeErr.Code
		m.Err = storeErr.Msg
	} else {
		m.Code = store.RetCInternalError
		m.Err = err.Error()
	}
	return m
}

// Error returns the error carried by the message, or nil.
// The returned error is always a *store.Error.
func (m *Message) Error() error {
	if m.Err == "" && m.Code == store.RetCSuccess {
		return nil
	}
	code := m.Code
	if code == store.RetCSuccess {
		code = store.RetCInternalError
	}
	return store.NewError(code, m.Err)
}

// TTLMillis converts a ttl into the ExpireIn representation used on the wire.
// A ttl <= 0 becomes 0 (no expiry), positive ttls below one millisecond are rounded up.
func TTLMillis(ttl time.Duration) uint64 {
	if ttl <= 0 {
		return 0
	}
	ms := ttl.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return uint64(ms)
}

// TTLFromMillis is the inverse of TTLMillis. Values beyond the Duration range saturate.
func TTLFromMillis(ms uint64) time.Duration {
	if ms > uint64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

// --------------------------------------------------------------------------
// Message Factory Functions (IStore)
// --------------------------------------------------------------------------

// NewAddRequest creates a new Add request
func NewAddRequest(key string, value []byte, expireIn uint64, async bool) *Message {
	return &Message{MsgType: MsgTKVAdd, Key: key, Value: value, ExpireIn: expireIn, Async: async}
}

// NewAddResponse creates a new Add response
func NewAddResponse(added bool, err error) *Message {
	return (&Message{MsgType: MsgTKVAdd, Ok: added}).SetError(err)
}

// NewSetRequest creates a new Set request
func NewSetRequest(key string, value []byte, expireIn uint64, async bool) *Message {
	return &Message{MsgType: MsgTKVSet, Key: key, Value: value, ExpireIn: expireIn, Async: async}
}

// NewSetResponse creates a new Set response
func NewSetResponse(err error) *Message {
	return (&Message{MsgType: MsgTKVSet}).SetError(err)
}

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{MsgType: MsgTKVGet, Key: key}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, found bool, err error) *Message {
	return (&Message{MsgType: MsgTKVGet, Value: value, Found: found}).SetError(err)
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key string, async bool) *Message {
	return &Message{MsgType: MsgTKVDelete, Key: key, Async: async}
}

// NewDeleteResponse creates a new Delete response
func NewDeleteResponse(deleted bool, err error) *Message {
	return (&Message{MsgType: MsgTKVDelete, Ok: deleted}).SetError(err)
}

// NewGetAndDeleteRequest creates a new GetAndDelete request
func NewGetAndDeleteRequest(key string) *Message {
	return &Message{MsgType: MsgTKVGetAndDelete, Key: key}
}

// NewGetAndDeleteResponse creates a new GetAndDelete response
func NewGetAndDeleteResponse(value []byte, found bool, err error) *Message {
	return (&Message{MsgType: MsgTKVGetAndDelete, Value: value, Found: found}).SetError(err)
}

// NewGetsRequest creates a new Gets request
func NewGetsRequest(key string) *Message {
	return &Message{MsgType: MsgTKVGets, Key: key}
}

// NewGetsResponse creates a new Gets response
func NewGetsResponse(value []byte, version uint64, found bool, err error) *Message {
	return (&Message{MsgType: MsgTKVGets, Value: value, Version: version, Found: found}).SetError(err)
}

// NewCASRequest creates a new CompareAndSwap request
func NewCASRequest(key string, version uint64, value []byte, expireIn uint64) *Message {
	return &Message{MsgType: MsgTKVCAS, Key: key, Version: version, Value: value, ExpireIn: expireIn}
}

// NewCASResponse creates a new CompareAndSwap response
func NewCASResponse(swapped, found bool, err error) *Message {
	return (&Message{MsgType: MsgTKVCAS, Ok: swapped, Found: found}).SetError(err)
}

// NewIncrRequest creates a new Increment request
func NewIncrRequest(key string, delta, initial int64) *Message {
	return &Message{MsgType: MsgTKVIncr, Key: key, Delta: delta, Initial: initial}
}

// NewIncrResponse creates a new Increment response
func NewIncrResponse(value int64, err error) *Message {
	return (&Message{MsgType: MsgTKVIncr, Number: value, Ok: err == nil}).SetError(err)
}

// NewCounterCreateRequest creates a new CreateCounter request
func NewCounterCreateRequest(key string, initial int64, width store.CounterWidth) *Message {
	return &Message{MsgType: MsgTKVCounterCreate, Key: key, Initial: initial, Width: uint32(width)}
}

// NewCounterCreateResponse creates a new CreateCounter response
func NewCounterCreateResponse(created bool, err error) *Message {
	return (&Message{MsgType: MsgTKVCounterCreate, Ok: created}).SetError(err)
}

// NewCounterIncrRequest creates a new IncrementCounter request
func NewCounterIncrRequest(key string, delta int64) *Message {
	return &Message{MsgType: MsgTKVCounterIncr, Key: key, Delta: delta}
}

// NewCounterIncrResponse creates a new IncrementCounter response
func NewCounterIncrResponse(counter store.Counter, found bool, err error) *Message {
	return (&Message{
		MsgType: MsgTKVCounterIncr,
		Number:  counter.Value,
		Width:   uint32(counter.Width),
		Found:   found,
	}).SetError(err)
}

// NewCounterGetRequest creates a new GetCounter request
func NewCounterGetRequest(key string) *Message {
	return &Message{MsgType: MsgTKVCounterGet, Key: key}
}

// NewCounterGetResponse creates a new GetCounter response
func NewCounterGetResponse(counter store.Counter, found bool, err error) *Message {
	return (&Message{
		MsgType: MsgTKVCounterGet,
		Number:  counter.Value,
		Width:   uint32(counter.Width),
		Found:   found,
	}).SetError(err)
}

// NewMultiAddRequest creates a new MultiAdd request
func NewMultiAddRequest(keys []string, values [][]byte, expireIn uint64, async bool) *Message {
	return &Message{MsgType: MsgTKVMultiAdd, Keys: keys, Values: values, ExpireIn: expireIn, Async: async}
}

// NewMultiAddResponse creates a new MultiAdd response
func NewMultiAddResponse(added bool, err error) *Message {
	return (&Message{MsgType: MsgTKVMultiAdd, Ok: added}).SetError(err)
}

// NewMultiSetRequest creates a new MultiSet request
func NewMultiSetRequest(keys []string, values [][]byte, expireIn uint64, async bool) *Message {
	return &Message{MsgType: MsgTKVMultiSet, Keys: keys, Values: values, ExpireIn: expireIn, Async: async}
}

// NewMultiSetResponse creates a new MultiSet response
func NewMultiSetResponse(err error) *Message {
	return (&Message{MsgType: MsgTKVMultiSet, Ok: err == nil}).SetError(err)
}

// NewMultiDeleteRequest creates a new MultiDelete request
func NewMultiDeleteRequest(keys []string, async bool) *Message {
	return &Message{MsgType: MsgTKVMultiDelete, Keys: keys, Async: async}
}

// NewMultiDeleteResponse creates a new MultiDelete response
func NewMultiDeleteResponse(err error) *Message {
	return (&Message{MsgType: MsgTKVMultiDelete, Ok: err == nil}).SetError(err)
}

// NewMultiGetRequest creates a new MultiGet request
func NewMultiGetRequest(keys []string) *Message {
	return &Message{MsgType: MsgTKVMultiGet, Keys: keys}
}

// NewMultiGetResponse creates a new MultiGet response
func NewMultiGetResponse(entries map[string][]byte, err error) *Message {
	return (&Message{MsgType: MsgTKVMultiGet, Entries: entries}).SetError(err)
}

// NewInfoRequest creates a new GetDBInfo request
func NewInfoRequest() *Message {
	return &Message{MsgType: MsgTKVInfo}
}

// NewInfoResponse creates a new GetDBInfo response
func NewInfoResponse(meta []byte, err error) *Message {
	return (&Message{MsgType: MsgTKVInfo, Meta: meta}).SetError(err)
}

// --------------------------------------------------------------------------
// Message Factory Functions (IRegistry)
// --------------------------------------------------------------------------

// NewCacheDeclareRequest creates a new Declare request
func NewCacheDeclareRequest(cache, policy string) *Message {
	return &Message{MsgType: MsgTCacheDeclare, Cache: cache, Policy: policy}
}

// NewCacheDeclareResponse creates a new Declare response
func NewCacheDeclareResponse(err error) *Message {
	return (&Message{MsgType: MsgTCacheDeclare}).SetError(err)
}

// NewCacheWriteRequest creates a new Write request
func NewCacheWriteRequest(cache, key string, value []byte, async bool) *Message {
	return &Message{MsgType: MsgTCacheWrite, Cache: cache, Key: key, Value: value, Async: async}
}

// NewCacheWriteResponse creates a new Write response
func NewCacheWriteResponse(err error) *Message {
	return (&Message{MsgType: MsgTCacheWrite, Ok: err == nil}).SetError(err)
}

// NewCacheReadRequest creates a new Read request
func NewCacheReadRequest(cache, key string) *Message {
	return &Message{MsgType: MsgTCacheRead, Cache: cache, Key: key}
}

// NewCacheReadResponse creates a new Read response
func NewCacheReadResponse(value []byte, found bool, err error) *Message {
	return (&Message{MsgType: MsgTCacheRead, Value: value, Found: found}).SetError(err)
}

// NewCacheRemoveRequest creates a new Remove request
func NewCacheRemoveRequest(cache, key string, async bool) *Message {
	return &Message{MsgType: MsgTCacheRemove, Cache: cache, Key: key, Async: async}
}

// NewCacheRemoveResponse creates a new Remove response
func NewCacheRemoveResponse(value []byte, found bool, err error) *Message {
	return (&Message{MsgType: MsgTCacheRemove, Value: value, Found: found}).SetError(err)
}

// NewCacheNamesRequest creates a new Names request
func NewCacheNamesRequest() *Message {
	return &Message{MsgType: MsgTCacheNames}
}

// NewCacheNamesResponse creates a new Names response. The sorted names travel in Keys,
// the text form of their policies in Entries.
func NewCacheNamesResponse(names []string, policies map[string][]byte, err error) *Message {
	return (&Message{MsgType: MsgTCacheNames, Keys: names, Entries: policies}).SetError(err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    store.RetCInternalError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTUnknown:         "unknown",
	MsgTSuccess:         "success",
	MsgTError:           "error",
	MsgTKVAdd:           "add",
	MsgTKVSet:           "set",
	MsgTKVGet:           "get",
	MsgTKVDelete:        "delete",
	MsgTKVGetAndDelete:  "getAndDelete",
	MsgTKVGets:          "gets",
	MsgTKVCAS:           "cas",
	MsgTKVIncr:          "incr",
	MsgTKVCounterCreate: "counterCreate",
	MsgTKVCounterIncr:   "counterIncr",
	MsgTKVCounterGet:    "counterGet",
	MsgTKVMultiAdd:      "multiAdd",
	MsgTKVMultiSet:      "multiSet",
	MsgTKVMultiDelete:   "multiDelete",
	MsgTKVMultiGet:      "multiGet",
	MsgTKVInfo:          "info",
	MsgTCacheDeclare:    "cacheDeclare",
	MsgTCacheWrite:      "cacheWrite",
	MsgTCacheRead:       "cacheRead",
	MsgTCacheRemove:     "cacheRemove",
	MsgTCacheNames:      "cacheNames",
}

var messageTypesByName = func() map[string]MessageType {
	m := make(map[string]MessageType, len(messageTypeNames))
	for t, name := range messageTypeNames {
		m[name] = t
	}
	return m
}()

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mt, ok := messageTypesByName[s]
	if !ok {
		return fmt.Errorf("unknown message type: %s", s)
	}
	*t = mt
	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTKVAdd           // Store a value if the key is absent
	MsgTKVSet           // Store a value unconditionally
	MsgTKVGet           // Get a value by key
	MsgTKVDelete        // Delete a key
	MsgTKVGetAndDelete  // Remove a key and return its value
	MsgTKVGets          // Get a value together with its version
	MsgTKVCAS           // Compare-and-swap on the version
	MsgTKVIncr          // Untyped increment
	MsgTKVCounterCreate // Create a typed counter
	MsgTKVCounterIncr   // Increment a typed counter
	MsgTKVCounterGet    // Read a typed counter
	MsgTKVMultiAdd      // All-or-nothing add of several keys
	MsgTKVMultiSet      // Atomic set of several keys
	MsgTKVMultiDelete   // Atomic delete of several keys
	MsgTKVMultiGet      // Consistent read of several keys
	MsgTKVInfo          // Engine information

	// IRegistry operations

	MsgTCacheDeclare // Bind a policy to a cache name
	MsgTCacheWrite   // Write through the cache policy
	MsgTCacheRead    // Read from a named cache
	MsgTCacheRemove  // Remove from a named cache
	MsgTCacheNames   // List cache names
)
