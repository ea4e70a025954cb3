// Package store defines the cache contract used by the server, the RPC client and the
// named cache registry. It sits above the db.KVDB engines and turns their generic
// compute primitives into cache semantics: add-or-fail, overwrite, TTL, counters,
// compare-and-swap and all-or-nothing batches.
//
// Key Components:
//
//   - IStore Interface: The operations of one cache. Expected outcomes such as misses,
//     add collisions and stale CAS tokens are booleans. Errors are reserved for caller
//     mistakes and engine limitations.
//
//   - Error System: *Error carries a RetCode and a message. RetCTypeMismatch and
//     RetCInvalidArgument are deliberately distinct from RetCNotFound so callers never
//     confuse a bad request with a cache miss. CodeOf extracts the code of any error;
//     the RPC layer uses it to transport errors over the wire.
//
//   - Counters: CounterWidth, Counter and the clamping arithmetic shared by every
//     IStore implementation.
//
//   - DBFactory: A function type that creates the db.KVDB an IStore runs on.
//
// Implementations:
//
//   - Local Store (lstore): runs the operations against an engine in the same process.
//     Available in the "github.com/ValentinKolb/dCache/lib/store/lstore" package.
//
//   - RPC client (rpc/client): forwards the operations to a dCache server shard.
//     Available in the "github.com/ValentinKolb/dCache/rpc/client" package.
package store
