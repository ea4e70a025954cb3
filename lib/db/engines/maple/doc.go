// Package maple implements the in-memory entry engine (db.KVDB) that backs every
// cache of the server. It focuses on per-key linearizability, cheap lazy expiry
// and multi-key batches that are never observed half applied.
//
// Key Components:
//
//   - mapleImpl: The engine. It owns the shards, the version counter, the clock and
//     the reclamation goroutines.
//
//   - Shard: A partition of the key space. Each shard holds an xsync.MapOf from key to
//     db.Entry, a latch (sync.RWMutex) and a deadline heap of keys with a ttl.
//     Keys are assigned to shards by a seeded FNV-1a hash, right-shifted by 7 bits to
//     use the higher-quality bits.
//
// Concurrency Model:
//
//   - Single key operations (Set, Add, Delete, Compute) run inside MapOf.Compute, which
//     holds the bucket lock of the key. The callback sees the current entry and returns
//     the next one, so read-modify-write sequences (add, increment, compare-and-swap) are
//     atomic per key without any extra locking. These operations hold the shard latch in
//     shared mode, so they never block each other.
//
//   - ComputeBatch takes the latch of every involved shard in exclusive mode, always in
//     ascending shard order, reads all entries, runs the batch callback and applies the
//     result before releasing anything.
//
//   - GetMany takes the involved latches in shared mode in the same order, so it waits for
//     running batches and never sees a batch half applied.
//
//   - Versions come from one atomic counter per engine and are assigned inside the
//     critical section of the key, so the version of a key strictly increases with every
//     successful mutation.
//
// Expiry and Garbage Collection:
//
//   - Every read compares the deadline of the entry with the clock. An entry whose deadline
//     has been reached is invisible, no matter whether it has been reclaimed yet.
//
//   - Writes with a ttl queue the key in the shard's deadline heap. One goroutine per shard
//     wakes up every GCInterval, pops the keys that are due and deletes them inside
//     MapOf.Compute after checking the deadline again. A key rewritten with a later deadline
//     is queued again instead of being removed; a key rewritten without a ttl simply leaves
//     the heap when its old deadline comes up.
//
//   - The heap is only modified after MapOf.Compute returns, so the bucket lock and the heap
//     mutex are never held at the same time by the same goroutine.
//
// GetInfo reports the number of entries, a sampled size estimate, the shard distribution,
// the number of queued deadlines and the number of reclaimed entries.
package maple
