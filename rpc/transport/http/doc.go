// Package http implements the RPC transport on top of HTTP.
//
// Every request is a POST to /{shardId} whose body is the serialized message,
// the response body is the serialized reply. The server side uses echo, the
// client side uses resty.
//
// Key Components:
//
//   - httpServerTransport: Implements IRPCServerTransport. Routes POST /:shardId
//     to the registered handler and shuts down gracefully when the context passed
//     to Listen is done. On debug level every request is logged.
//
//   - httpClientTransport: Implements IRPCClientTransport. Selects endpoints
//     round-robin and retries failed requests with backoff.
//
// Thread Safety:
//
//	The client transport is safe for concurrent use once Connect returned.
//	The round-robin counter is atomic.
package http
