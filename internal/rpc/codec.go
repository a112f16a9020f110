package rpc

import (
	"bytes"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// codecName is sent as the content-subtype, i.e. application/grpc+proto.
const codecName = "proto"

// message is implemented by the kv.KeyValueStore request and response types.
// They encode themselves in the protobuf wire format, so no generated code
// is needed to stay compatible with protobuf clients.
type message interface {
	marshal(b []byte) []byte
	unmarshal(b []byte) error
}

type protoCodec struct{}

var _ encoding.Codec = protoCodec{}

func (protoCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("proto codec: cannot marshal %T", v)
	}
	return m.marshal(nil), nil
}

func (protoCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("proto codec: cannot unmarshal into %T", v)
	}
	if err := m.unmarshal(data); err != nil {
		return fmt.Errorf("proto codec: %T: %w", v, err)
	}
	return nil
}

func (protoCodec) Name() string {
	return codecName
}

// Zero values are omitted, as proto3 does for scalar fields.
func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// fieldFunc decodes one known field from the start of b and returns the
// number of bytes consumed, or a negative protowire error code. ok=false
// marks the field as unknown.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (n int, ok bool)

// decodeFields walks every field in b. Unknown fields are skipped; a repeated
// scalar field keeps its last value.
func decodeFields(b []byte, field fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, ok := field(num, typ, b)
		if !ok {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func consumeBytes(b []byte, dst *[]byte) int {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	*dst = bytes.Clone(v)
	return n
}

func consumeBool(b []byte, dst *bool) int {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return n
	}
	*dst = protowire.DecodeBool(v)
	return n
}
