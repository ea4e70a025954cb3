package serializer

import (
	"bytes"
	"sync"

	"github.com/ValentinKolb/dCache/rpc/common"
	"github.com/vmihailenco/msgpack/v5"
)

// NewMsgpackSerializer creates a new serializer using MessagePack.
// The json struct tags of common.Message are reused, so field names match the json encoding.
func NewMsgpackSerializer() IRPCSerializer {
	return &msgpackSerializerImpl{}
}

// msgpackSerializerImpl implements the IRPCSerializer interface using vmihailenco/msgpack
type msgpackSerializerImpl struct {
}

var msgpackBuffers = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (m msgpackSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	buf := msgpackBuffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer msgpackBuffers.Put(buf)

	enc := msgpack.NewEncoder(buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(&msg); err != nil {
		return nil, err
	}

	// the buffer goes back to the pool, the caller gets its own copy
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (m msgpackSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	return dec.Decode(msg)
}
