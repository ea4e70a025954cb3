// Package registry implements named caches: a mapping from a cache name to an
// independent store bound to one write policy.
//
// Policies:
//
//   - plain: writes overwrite, entries never expire.
//   - add-only: the first write of a key wins. Later writes report success but leave
//     the stored value untouched. This differs from store.IStore.Add, which reports the
//     collision to the caller.
//   - ttl(d): writes overwrite and every entry expires d after its write. Callers cannot
//     pass their own ttl.
//
// Binding:
//
//	A name is bound to its policy once. Declare binds explicitly; a Write to an unknown
//	name binds the registry's default policy. Redeclaring a name with the same policy is
//	idempotent, redeclaring it with a different policy fails with RetCInvalidArgument and
//	leaves the original binding in place.
//
// Isolation:
//
//	Each name gets its own store.IStore, created by the injected StoreFactory on the first
//	write. The same key in two caches refers to two unrelated entries, and expiry or
//	add-only collisions in one cache never affect another. Reads and removes never create
//	a store; on an unknown or never written cache they report a miss.
//
// Thread Safety:
//
//	Bindings live in an xsync.MapOf, so binding a name is atomic. Concurrent first writes
//	to the same name create exactly one store (singleflight). All operations on a cache
//	inherit the per-key atomicity of its store.
package registry
