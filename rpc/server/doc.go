// Package server implements the dCache RPC server. It creates one shard per configured
// module and routes every request to the adapter responsible for its message type.
//
// Key Components:
//
//   - Shard: One served module. It owns an entry store (lstore on a maple engine) and a
//     registry of named caches. Caches listed in the configuration are declared at startup.
//
//   - IRPCServerAdapter: Translates requests into calls on a shard. NewIStoreServerAdapter
//     serves the entry, CAS, counter and batch operations, NewRegistryServerAdapter serves
//     the named cache operations.
//
//   - NewRPCServer: Creates a server on top of a transport and a serializer. If a REST
//     endpoint is configured, Serve also starts the rest.Gateway on the same shards.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Module: "default"},
//	    {ShardID: 200, Module: "module-a"},
//	  },
//	  Caches:        map[string]string{"noupdate": "add-only", "expiring": "ttl(6s)"},
//	  Endpoint:      "0.0.0.0:8080",
//	  RestEndpoint:  "0.0.0.0:8081",
//	  TimeoutSecond: 5,
//	}
//
//	s := server.NewRPCServer(config, http.NewHttpServerTransport(), serializer.NewMsgpackSerializer())
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Errors returned by a store or registry keep their return code on the wire. Requests for
// unknown shards or message types are answered with an error response, never by dropping
// the connection.
//
// Metrics (requests per module and type, errors per code, hits and misses of read
// operations) are collected in a metrics.Set that the REST gateway exposes on /metrics.
package server
