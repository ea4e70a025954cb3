// Package db provides a standardized interface for in-memory entry engines.
// It defines the KVDB interface that the cache store is built on, so that the
// store layer never depends on how an engine partitions, locks or reclaims its data.
//
// The package focuses on:
//   - A unified interface for entry operations (Set, Add, Get, Delete)
//   - An atomic read-modify-write primitive (Compute) that every conditional
//     operation of the store (counters, compare-and-swap, add) is expressed with
//   - Multi-key atomicity (ComputeBatch, GetMany)
//   - Feature discovery through capability flags
//
// Key Components:
//
//   - Entry: The stored record. It carries the value, a version that strictly
//     increases on every successful mutation of the key, an absolute expiry
//     deadline and an opaque flags word.
//
//   - ComputeFunc / BatchComputeFunc: Callbacks that run inside the critical
//     section of one or several keys. They receive the current state and the
//     engine's notion of "now" and return an Action (keep, write, delete).
//     Expired entries are always reported as not loaded, so callbacks never need
//     to check deadlines themselves.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     advertise through SupportsFeature.
//
//   - Database Information: DatabaseInfo reports entry count, an estimated size,
//     the implementation type and implementation specific metadata.
//
// Note on Expiry:
//   - Expiry is wall clock based. Implementations take the time from a util.Clock
//     so tests can advance it manually.
//   - External consistency: a read must never return an entry whose deadline has
//     passed, even if the entry is still physically present pending reclamation.
//   - Reclamation: implementations supporting FeatureGarbageCollect remove expired
//     entries in the background. The reclaimer must re-check the deadline inside the
//     key's critical section, so it can never remove a key that was rewritten.
//
// Related Packages:
//
// The engines/maple package (github.com/ValentinKolb/dCache/lib/db/engines/maple) provides a
// sharded implementation of the KVDB interface.
//
// The util package (github.com/ValentinKolb/dCache/lib/db/util) provides the clock
// abstraction, key hashing and the deadline heap used for reclamation.
//
// The testing package (github.com/ValentinKolb/dCache/lib/db/testing) provides
// standardized tests and benchmarks for implementations of db.KVDB.
//   - RunKVDBTests: Runs a standardized test suite to validate implementations
//   - RunKVDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
