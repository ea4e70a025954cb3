// Package testing provides standardised tests and benchmarks for
// engine implementations that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A conformance suite covering single key operations, versioning, expiry,
//     atomic compute, batch atomicity and concurrent add races
//   - benchmark: Performance tests for measuring throughput of common engine operations
//
// The factory receives the clock the engine must read time from. The conformance suite
// passes a util.ManualClock so expiry can be tested without sleeping; the benchmarks pass
// the system clock.
//
// Example usage:
//
//	factory := func(clock util.Clock) db.KVDB {
//		return NewMyEngine(clock)
//	}
//
//	// Running the standard test suite
//	dbtesting.RunKVDBTests(t, "MyEngine", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunKVDBBenchmarks(b, "MyEngine", factory)
package testing
