package taskstore

import (
	dtcbor "github.com/datatrails/go-datatrails-common/cbor"
)

// Codec turns task types, data items and journal entries into bytes and back.
// Implementations must be deterministic: equal values must encode to equal
// bytes, as encoded task types are used as keys.
type Codec interface {
	MarshalCBOR(o any) ([]byte, error)
	UnmarshalInto(data []byte, o any) error
}

// NewCBORCodec returns the default codec: CBOR with the deterministic
// (core deterministic encoding) options.
func NewCBORCodec() (Codec, error) {
	codec, err := dtcbor.NewCBORCodec(
		dtcbor.NewDeterministicEncOpts(),
		dtcbor.NewDeterministicDecOpts(), // unsigned int decodes to uint64
	)
	if err != nil {
		return nil, err
	}
	return &codec, nil
}
