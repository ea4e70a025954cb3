// Package client implements RPC clients for dCache.
// It provides implementations of the store.IStore and registry.IRegistry interfaces
// that forward every call to a shard of a remote server.
//
// Key Components:
//
//   - NewRPCStore: Creates a client implementing store.IStore for the entry, CAS,
//     counter and batch operations of a shard.
//
//   - NewRPCRegistry: Creates a client implementing registry.IRegistry for the
//     named caches of a shard.
//
// Errors reported by the server are returned as *store.Error with the return code the
// server produced, so store.CodeOf works on both sides of the wire. Transport failures
// are returned unchanged.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:     []string{"localhost:8080"},
//	  TimeoutSecond: 5,
//	  RetryCount:    2,
//	}
//
//	s, _ := client.NewRPCStore(100, config, http.NewHttpClientTransport(), serializer.NewMsgpackSerializer())
//	added, _ := s.Add("mykey", []byte("myvalue"), time.Minute)
//
//	caches, _ := client.NewRPCRegistry(100, config, http.NewHttpClientTransport(), serializer.NewMsgpackSerializer())
//	_ = caches.Write("sessions", "user-1", []byte("token"))
//
// Thread Safety:
//
//	All clients are safe for concurrent use. Each client owns its transport,
//	Close closes it.
package client
