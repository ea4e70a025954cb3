package serializer

import (
	"github.com/ValentinKolb/dCache/rpc/common"
	"github.com/fxamacker/cbor/v2"
)

// NewCBORSerializer creates a new serializer using CBOR (RFC 8949).
// fxamacker/cbor falls back to the json struct tags when no cbor tag is present.
func NewCBORSerializer() (IRPCSerializer, error) {
	em, err := cbor.PreferredUnsortedEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return nil, err
	}
	return &cborSerializerImpl{enc: em, dec: dm}, nil
}

// cborSerializerImpl implements the IRPCSerializer interface using fxamacker/cbor
type cborSerializerImpl struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (c *cborSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return c.enc.Marshal(msg)
}

func (c *cborSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	return c.dec.Unmarshal(b, msg)
}
