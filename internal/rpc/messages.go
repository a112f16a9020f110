package rpc

import "google.golang.org/protobuf/encoding/protowire"

// Field numbers of the kv.KeyValueStore messages.
const (
	fieldKey     protowire.Number = 1
	fieldValue   protowire.Number = 2
	fieldSuccess protowire.Number = 1
	fieldGetVal  protowire.Number = 1
	fieldFound   protowire.Number = 2
)

type PutRequest struct {
	Key   []byte
	Value []byte
}

type PutResponse struct {
	Success bool
}

type GetRequest struct {
	Key []byte
}

// GetResponse reports an absent key with Found=false rather than an error.
type GetResponse struct {
	Value []byte
	Found bool
}

type DeleteRequest struct {
	Key []byte
}

// DeleteResponse.Success is true when the key existed.
type DeleteResponse struct {
	Success bool
}

func (m *PutRequest) marshal(b []byte) []byte {
	b = appendBytesField(b, fieldKey, m.Key)
	return appendBytesField(b, fieldValue, m.Value)
}

func (m *PutRequest) unmarshal(b []byte) error {
	*m = PutRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		switch {
		case num == fieldKey && typ == protowire.BytesType:
			return consumeBytes(b, &m.Key), true
		case num == fieldValue && typ == protowire.BytesType:
			return consumeBytes(b, &m.Value), true
		}
		return 0, false
	})
}

func (m *PutResponse) marshal(b []byte) []byte {
	return appendBoolField(b, fieldSuccess, m.Success)
}

func (m *PutResponse) unmarshal(b []byte) error {
	*m = PutResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if num == fieldSuccess && typ == protowire.VarintType {
			return consumeBool(b, &m.Success), true
		}
		return 0, false
	})
}

func (m *GetRequest) marshal(b []byte) []byte {
	return appendBytesField(b, fieldKey, m.Key)
}

func (m *GetRequest) unmarshal(b []byte) error {
	*m = GetRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if num == fieldKey && typ == protowire.BytesType {
			return consumeBytes(b, &m.Key), true
		}
		return 0, false
	})
}

func (m *GetResponse) marshal(b []byte) []byte {
	b = appendBytesField(b, fieldGetVal, m.Value)
	return appendBoolField(b, fieldFound, m.Found)
}

func (m *GetResponse) unmarshal(b []byte) error {
	*m = GetResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		switch {
		case num == fieldGetVal && typ == protowire.BytesType:
			return consumeBytes(b, &m.Value), true
		case num == fieldFound && typ == protowire.VarintType:
			return consumeBool(b, &m.Found), true
		}
		return 0, false
	})
}

func (m *DeleteRequest) marshal(b []byte) []byte {
	return appendBytesField(b, fieldKey, m.Key)
}

func (m *DeleteRequest) unmarshal(b []byte) error {
	*m = DeleteRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if num == fieldKey && typ == protowire.BytesType {
			return consumeBytes(b, &m.Key), true
		}
		return 0, false
	})
}

func (m *DeleteResponse) marshal(b []byte) []byte {
	return appendBoolField(b, fieldSuccess, m.Success)
}

func (m *DeleteResponse) unmarshal(b []byte) error {
	*m = DeleteResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if num == fieldSuccess && typ == protowire.VarintType {
			return consumeBool(b, &m.Success), true
		}
		return 0, false
	})
}
