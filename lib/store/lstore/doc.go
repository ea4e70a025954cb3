// Package lstore implements the in-process cache store (store.IStore) on top of any
// db.KVDB engine. Data is stored entirely in memory and is not persisted between
// process restarts.
//
// Every IStore operation maps onto exactly one engine call:
//
//   - Add, Set, Get, Delete map directly onto the engine methods of the same name.
//   - GetAndDelete, CompareAndSwap and all counter operations are single Compute calls,
//     so the read, the decision and the write happen inside the key's critical section.
//   - MultiAdd, MultiSet and MultiDelete are single ComputeBatch calls. MultiAdd inspects
//     all keys first and returns ActionKeep for every key as soon as one of them is live,
//     which makes the batch all-or-nothing. MultiGet uses GetMany.
//
// Batches are validated before they reach the engine: mismatched key and value counts are
// rejected with RetCInvalidArgument and duplicate keys are collapsed, the last value wins.
//
// Counters are decimal strings. Increment creates missing keys from the initial value;
// CreateCounter additionally records the declared width in the entry flags, which every
// later read echoes back. Results are clamped at zero and saturate at the width's maximum.
// A value that does not parse as an integer yields RetCTypeMismatch.
//
// Feature Detection: before executing an operation the store checks that the engine
// supports it and returns RetCUnsupportedOperation otherwise.
//
// Usage Example:
//
//	factory := func() db.KVDB { return maple.NewMapleDB(nil) }
//	s := lstore.NewLocalStore(factory)
//
//	added, err := s.Add("session:123", sessionData, 5*time.Minute)
//	value, ok, err := s.Get("session:123")
package lstore
