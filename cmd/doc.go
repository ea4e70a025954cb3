// Package cmd implements the command-line interface of dCache. It provides a
// hierarchical command structure for running the server and for interacting
// with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a dCache server (RPC endpoint and optional REST gateway)
//   - kv: Entry, CAS, counter and batch operations plus a performance test
//   - cache: Named cache operations (declare, put, get, remove, names)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dcache -help for a list of all commands.
package cmd
