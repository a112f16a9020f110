package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
)

// Op is the mutation kind stored in the first byte of every record.
type Op uint8

const (
	OpPut    Op = 0
	OpDelete Op = 1
)

func (op Op) String() string {
	switch op {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", uint8(op))
	}
}

func (op Op) valid() bool {
	return op == OpPut || op == OpDelete
}

// HeaderSize is op(1) + crc32(4) + key_len(4) + val_len(4).
const HeaderSize = 13

var (
	ErrEmptyKey       = errors.New("wal: empty key")
	ErrRecordTooLarge = errors.New("wal: record too large")
	ErrUnknownOp      = errors.New("wal: unknown op")
)

// Record is one logged mutation. Value is always empty for OpDelete.
type Record struct {
	Op    Op
	Key   []byte
	Value []byte
}

func Put(key, value []byte) Record {
	return Record{Op: OpPut, Key: key, Value: value}
}

func Delete(key []byte) Record {
	return Record{Op: OpDelete, Key: key}
}

// EncodedSize returns the number of bytes the record occupies on disk.
func (r Record) EncodedSize() int {
	return HeaderSize + len(r.Key) + len(r.value())
}

func (r Record) value() []byte {
	if r.Op == OpDelete {
		return nil
	}
	return r.Value
}

func (r Record) validate() error {
	if !r.Op.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownOp, uint8(r.Op))
	}
	if len(r.Key) == 0 {
		return ErrEmptyKey
	}
	if len(r.Key) > math.MaxUint32 {
		return fmt.Errorf("%w: key of %d bytes", ErrRecordTooLarge, len(r.Key))
	}
	if len(r.value()) > math.MaxUint32 {
		return fmt.Errorf("%w: value of %d bytes", ErrRecordTooLarge, len(r.value()))
	}
	return nil
}

// MarshalBinary encodes the record:
//
//	[op:1][crc32:4][key_len:4][val_len:4][key][value]
//
// All integers are little-endian. The checksum covers every byte of the
// record except the checksum field itself.
func (r Record) MarshalBinary() ([]byte, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	val := r.value()
	buf := make([]byte, r.EncodedSize())
	buf[0] = byte(r.Op)
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(r.Key)))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(len(val)))
	copy(buf[HeaderSize:], r.Key)
	copy(buf[HeaderSize+len(r.Key):], val)

	binary.LittleEndian.PutUint32(buf[1:5], checksum(buf))
	return buf, nil
}

// checksum computes the CRC over an encoded record, skipping bytes 1..5.
func checksum(encoded []byte) uint32 {
	crc := crc32.Update(0, crc32.IEEETable, encoded[:1])
	return crc32.Update(crc, crc32.IEEETable, encoded[5:])
}
