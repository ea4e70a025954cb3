// Package transport defines the contract between the RPC layer and the wire.
// A transport moves opaque, already serialized messages to a numbered shard
// and back. It knows nothing about message contents, which keeps serializers
// and transports freely combinable.
//
// Key Components:
//
//   - IRPCClientTransport: client side, sends a request to a shard and waits
//     for the response.
//
//   - IRPCServerTransport: server side, receives requests and hands them to the
//     registered ServerHandleFunc together with the addressed shard ID.
//
// The only implementation is the HTTP transport in the http subpackage.
package transport
