package serializer

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dCache/rpc/common"
)

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into a Message
	// It takes a byte array and a pointer to a Message as parameters
	// It returns an error if any
	Deserialize(b []byte, msg *common.Message) error
}

// Names lists the serializers accepted by ByName
var Names = []string{"json", "gob", "msgpack", "cbor"}

// ByName returns the serializer registered under name
func ByName(name string) (IRPCSerializer, error) {
	switch strings.ToLower(name) {
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "msgpack":
		return NewMsgpackSerializer(), nil
	case "cbor":
		return NewCBORSerializer()
	default:
		return nil, fmt.Errorf("invalid serializer %s (expected one of %s)", name, strings.Join(Names, ", "))
	}
}
