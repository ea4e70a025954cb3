// Package serializer converts common.Message values to bytes and back for the
// dCache RPC transport. Client and server must use the same serializer.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: encoding/json. Human readable, message types appear as
//     strings. Useful for debugging with curl.
//
//   - gobSerializerImpl: encoding/gob. Self describing, so every payload repeats the
//     type description and is noticeably larger than the binary formats below.
//
//   - msgpackSerializerImpl: MessagePack via vmihailenco/msgpack. Compact and fast,
//     reuses the json struct tags so field names match the json encoding.
//
//   - cborSerializerImpl: CBOR via fxamacker/cbor. Similar size to MessagePack,
//     standardized as RFC 8949.
//
// ByName maps the values of the --serializer flag to an implementation.
//
// Thread Safety:
//
//	All serializer implementations are safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	s, err := serializer.ByName("msgpack")
//	data, err := s.Serialize(*common.NewGetRequest("key"))
//	// ... send data ...
//	var resp common.Message
//	err = s.Deserialize(receivedData, &resp)
package serializer
