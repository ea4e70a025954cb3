// Package common provides the data structures shared by the dCache RPC server,
// the RPC client and the command line tools.
//
// Key Components:
//
//   - Message: The single structure used for every RPC request and response.
//     Which fields are populated depends on the MessageType. Errors travel as a
//     store.RetCode plus message, so clients can rebuild a typed *store.Error.
//     Factory functions exist for every request and response.
//
//   - MessageType: Enumeration of all operations, grouped into store
//     operations (add, set, cas, counters, batches, ...) and named cache
//     operations (declare, write, read, remove). It is encoded as a string in JSON.
//
//   - ServerConfig: Configuration of a server process: the served shards
//     (modules), pre-declared named caches, engine tuning, listen addresses
//     and logging. ParseShards and ParseCaches turn the command line
//     representation into their typed form.
//
//   - ClientConfig: Endpoints, timeout and retry behavior of RPC clients.
//
//   - Logger: A zap backed implementation of the dragonboat logger facade.
//     Packages obtain named loggers with logger.GetLogger and InitLoggers
//     configures level and output format (console or json) for all of them.
package common
