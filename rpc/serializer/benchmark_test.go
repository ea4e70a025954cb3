package serializer

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/ValentinKolb/dCache/rpc/common"
)

// benchmarkMessages covers the requests and responses that dominate real traffic
func benchmarkMessages() map[string]*common.Message {
	batchKeys := make([]string, 32)
	batchValues := make([][]byte, 32)
	entries := make(map[string][]byte, 32)
	for i := range batchKeys {
		batchKeys[i] = fmt.Sprintf("session:%04d", i)
		batchValues[i] = []byte(fmt.Sprintf("user-%d", i))
		entries[batchKeys[i]] = batchValues[i]
	}

	return map[string]*common.Message{
		"GetRequest":        common.NewGetRequest("session:0001"),
		"GetResponse":       common.NewGetResponse([]byte("medium length value for testing serialization"), true, nil),
		"SetSmall":          common.NewSetRequest("k", []byte("v"), 0, false),
		"Set1KB":            common.NewSetRequest("key", make([]byte, 1024), 6000, false),
		"Set16KB":           common.NewSetRequest("key", make([]byte, 16*1024), 6000, true),
		"CASRequest":        common.NewCASRequest("complete-test-key", 123456789, []byte("test-value-data"), 10000),
		"IncrResponse":      common.NewIncrResponse(1<<40, nil),
		"CounterResponse":   common.NewCounterIncrResponse(store.Counter{Value: 42, Width: store.Width32}, true, nil),
		"MultiSet32":        common.NewMultiSetRequest(batchKeys, batchValues, 0, false),
		"MultiGetResponse":  common.NewMultiGetResponse(entries, nil),
		"CacheWrite":        common.NewCacheWriteRequest("expiring", "user-1", []byte("token"), false),
		"TypeMismatchError": common.NewIncrResponse(0, store.NewError(store.RetCTypeMismatch, "value of key \"text\" is not a number")),
	}
}

// BenchmarkRoundTrip measures a serialize and a deserialize of every message,
// which is what one RPC costs on each side
func BenchmarkRoundTrip(b *testing.B) {
	for name, factory := range testSerializers {
		for msgName, msg := range benchmarkMessages() {
			b.Run(name+"/"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ReportAllocs()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					data, err := serializer.Serialize(*msg)
					if err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
					var out common.Message
					if err := serializer.Deserialize(data, &out); err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSize reports the encoded size of every message as a custom metric
func BenchmarkSize(b *testing.B) {
	for name, factory := range testSerializers {
		serializer := factory()
		for msgName, msg := range benchmarkMessages() {
			b.Run(name+"/"+msgName, func(b *testing.B) {
				var data []byte
				var err error
				for i := 0; i < b.N; i++ {
					if data, err = serializer.Serialize(*msg); err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
				b.ReportMetric(float64(len(data)), "bytes")
			})
		}
	}
}
