package wal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, recs ...Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, rec := range recs {
		b, err := rec.MarshalBinary()
		require.NoError(t, err)
		buf.Write(b)
	}
	return buf.Bytes()
}

func readAll(t *testing.T, data []byte) ([]Record, *Reader) {
	t.Helper()
	r := NewReader(bytes.NewReader(data), int64(len(data)))
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, r
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestRecord_Layout(t *testing.T) {
	b, err := Put([]byte("ab"), []byte("xyz")).MarshalBinary()
	require.NoError(t, err)

	require.Len(t, b, HeaderSize+5)
	assert.Equal(t, byte(OpPut), b[0])
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(b[5:9]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[9:13]))
	assert.Equal(t, "abxyz", string(b[13:]))

	// The stored checksum covers everything but itself.
	want := checksum(b)
	assert.Equal(t, want, binary.LittleEndian.Uint32(b[1:5]))
}

func TestRecord_DeleteDropsValue(t *testing.T) {
	b, err := Record{Op: OpDelete, Key: []byte("k"), Value: []byte("ignored")}.MarshalBinary()
	require.NoError(t, err)

	assert.Len(t, b, HeaderSize+1)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(b[9:13]))
}

func TestRecord_Rejects(t *testing.T) {
	_, err := Put(nil, []byte("v")).MarshalBinary()
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = Record{Op: Op(7), Key: []byte("k")}.MarshalBinary()
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestReader_CleanLog(t *testing.T) {
	data := encode(t,
		Put([]byte("a"), []byte("1")),
		Delete([]byte("a")),
		Put([]byte("b"), nil),
	)

	recs, r := readAll(t, data)

	require.Len(t, recs, 3)
	assert.Equal(t, OpPut, recs[0].Op)
	assert.Equal(t, "1", string(recs[0].Value))
	assert.Equal(t, OpDelete, recs[1].Op)
	assert.Empty(t, recs[1].Value)
	assert.Equal(t, "b", string(recs[2].Key))
	assert.Empty(t, recs[2].Value)

	assert.Nil(t, r.Tail())
	assert.Equal(t, int64(len(data)), r.Offset())

	// Exhausted readers stay exhausted.
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_EmptyLog(t *testing.T) {
	recs, r := readAll(t, nil)
	assert.Empty(t, recs)
	assert.Nil(t, r.Tail())
}

func TestReader_TruncatedTail(t *testing.T) {
	valid := encode(t, Put([]byte("a"), []byte("1")), Put([]byte("b"), []byte("2")))
	last := encode(t, Put([]byte("c"), []byte("33333")))

	cases := []struct {
		name   string
		tail   []byte
		reason string
	}{
		{"partial header", last[:7], ReasonTruncatedHeader},
		{"partial body", last[:len(last)-2], ReasonTruncatedBody},
		{"garbage", []byte{0xde, 0xad, 0xbe}, ReasonTruncatedHeader},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := append(append([]byte{}, valid...), tc.tail...)

			recs, r := readAll(t, data)

			require.Len(t, recs, 2)
			tail := r.Tail()
			require.NotNil(t, tail)
			assert.Equal(t, tc.reason, tail.Reason)
			assert.Equal(t, int64(len(valid)), tail.Offset)
			assert.Equal(t, int64(len(tc.tail)), tail.Discarded)
			assert.False(t, tail.MidFile())
		})
	}
}

func TestReader_ChecksumMismatchStopsReplay(t *testing.T) {
	first := encode(t, Put([]byte("a"), []byte("1")))
	second := encode(t, Put([]byte("b"), []byte("2")))
	third := encode(t, Put([]byte("c"), []byte("3")))

	second[len(second)-1] ^= 0xff
	data := bytes.Join([][]byte{first, second, third}, nil)

	recs, r := readAll(t, data)

	require.Len(t, recs, 1)
	assert.Equal(t, "a", string(recs[0].Key))

	tail := r.Tail()
	require.NotNil(t, tail)
	assert.Equal(t, ReasonChecksum, tail.Reason)
	assert.Equal(t, int64(len(first)), tail.Offset)
	assert.Equal(t, int64(len(second)+len(third)), tail.Discarded)
	assert.Equal(t, int64(len(third)), tail.Trailing)
	assert.True(t, tail.MidFile())
}

func TestReader_StructuralFailures(t *testing.T) {
	good := encode(t, Put([]byte("a"), []byte("1")))

	unknownOp := encode(t, Put([]byte("b"), []byte("2")))
	unknownOp[0] = 9

	emptyKey := make([]byte, HeaderSize)

	deleteWithValue := encode(t, Put([]byte("b"), []byte("2")))
	deleteWithValue[0] = byte(OpDelete)

	hugeLength := encode(t, Put([]byte("b"), []byte("2")))
	binary.LittleEndian.PutUint32(hugeLength[9:13], 1<<31)

	cases := []struct {
		name   string
		bad    []byte
		reason string
	}{
		{"unknown op", unknownOp, ReasonUnknownOp},
		{"empty key", emptyKey, ReasonEmptyKey},
		{"delete with value", deleteWithValue, ReasonDeleteWithValue},
		{"length past end of file", hugeLength, ReasonTruncatedBody},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := append(append([]byte{}, good...), tc.bad...)

			recs, r := readAll(t, data)

			require.Len(t, recs, 1)
			require.NotNil(t, r.Tail())
			assert.Equal(t, tc.reason, r.Tail().Reason)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestReader_PropagatesReadErrors(t *testing.T) {
	r := NewReader(failingReader{}, 100)

	_, err := r.Next()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Nil(t, r.Tail())
}
