package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/ValentinKolb/dCache/rpc/common"
)

func mustCBOR() IRPCSerializer {
	s, err := NewCBORSerializer()
	if err != nil {
		panic(err)
	}
	return s
}

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":    NewJSONSerializer,
	"GOB":     NewGOBSerializer,
	"Msgpack": NewMsgpackSerializer,
	"CBOR":    mustCBOR,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Set request with ttl
		{
			MsgType:  common.MsgTKVSet,
			Key:      "test-key",
			Value:    []byte("test-value"),
			ExpireIn: 1500,
			Async:    true,
		},

		// Gets response
		{
			MsgType: common.MsgTKVGets,
			Value:   []byte("test-value"),
			Version: 42,
			Found:   true,
		},

		// Counter response
		{
			MsgType: common.MsgTKVCounterIncr,
			Number:  2147483647,
			Width:   uint32(store.Width32),
			Found:   true,
		},

		// Negative delta
		{
			MsgType: common.MsgTKVIncr,
			Key:     "hits",
			Delta:   -5,
			Initial: 10,
		},

		// Batch request
		{
			MsgType: common.MsgTKVMultiSet,
			Keys:    []string{"a", "b", "c"},
			Values:  [][]byte{[]byte("1"), []byte("2"), []byte("3")},
		},

		// Batch response
		{
			MsgType: common.MsgTKVMultiGet,
			Entries: map[string][]byte{"a": []byte("1"), "c": []byte("3")},
		},

		// Named cache request
		{
			MsgType: common.MsgTCacheDeclare,
			Cache:   "sessions",
			Policy:  "ttl(6s)",
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Code:    store.RetCTypeMismatch,
			Err:     "test error message",
		},

		// Info response
		{
			MsgType: common.MsgTKVInfo,
			Meta:    []byte(`{"entries":1}`),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTSuccess; msgType <= common.MsgTCacheNames; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestErrorSurvivesRoundTrip checks that typed store errors can be rebuilt on the other side
func TestErrorSurvivesRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			resp := common.NewCASResponse(false, false, store.NewError(store.RetCInvalidArgument, "bad version"))

			data, err := serializer.Serialize(*resp)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if got := store.CodeOf(result.Error()); got != store.RetCInvalidArgument {
				t.Errorf("expected InvalidArgument, got %s", got)
			}
		})
	}
}

// TestInvalidData tests how the serializers handle corrupt input
func TestInvalidData(t *testing.T) {
	garbage := map[string][]byte{
		"JSON":    []byte(`{"msg_type":`),
		"GOB":     {0xff, 0x01},
		"Msgpack": {0xc1},
		"CBOR":    {0xff},
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			var msg common.Message
			if err := factory().Deserialize(garbage[name], &msg); err == nil {
				t.Errorf("Expected error but got none")
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range Names {
		if _, err := ByName(name); err != nil {
			t.Errorf("ByName(%q): %v", name, err)
		}
	}
	if _, err := ByName("binary"); err == nil {
		t.Error("expected error for unknown serializer")
	}
}
