// Package util provides utility components for
// engine implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - clock: The Clock abstraction with a system clock and a manually advanced clock for tests
//   - functions: Seed generation and the seeded FNV-1a hash used for shard selection
//   - deadlineheap: A min-heap of expiry deadlines that also supports key based access
package util
