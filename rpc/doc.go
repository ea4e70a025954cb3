// Package rpc is the communication layer of dCache. It connects clients and the
// command line tools with the shards served by a dCache process.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol, server and client configuration and the zap
//     backed logger used by all packages.
//
//   - transport: Network communication abstractions, implemented over HTTP
//     (echo on the server, resty on the client).
//
//   - serializer: Message serialization (JSON, GOB, MessagePack, CBOR).
//
//   - client: RPC clients implementing store.IStore and registry.IRegistry.
//
//   - server: The RPC server, its shards and the adapters translating requests
//     into store and registry calls.
//
//   - rest: The form based HTTP gateway serving the memcache routes of every module.
package rpc
