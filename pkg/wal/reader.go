package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Reasons reported by CorruptTail.
const (
	ReasonTruncatedHeader = "truncated header"
	ReasonTruncatedBody   = "truncated body"
	ReasonUnknownOp       = "unknown op"
	ReasonEmptyKey        = "empty key"
	ReasonDeleteWithValue = "delete carries a value"
	ReasonChecksum        = "checksum mismatch"
)

// CorruptTail describes the first record that failed validation. That record
// and every byte after it are not part of the valid log.
type CorruptTail struct {
	// Offset is where the failing record starts, i.e. the length of the valid prefix.
	Offset int64
	Reason string
	// Discarded is the number of bytes from Offset to the end of the log.
	Discarded int64
	// Trailing counts bytes beyond the failing record's own extent. It is zero
	// when the record runs past the end of the log, which is what a crash
	// during append leaves behind.
	Trailing int64
}

func (t *CorruptTail) Error() string {
	return fmt.Sprintf("wal: %s at offset %d (%d bytes discarded)", t.Reason, t.Offset, t.Discarded)
}

// MidFile reports whether more data follows the failing record.
func (t *CorruptTail) MidFile() bool {
	return t.Trailing > 0
}

// Reader decodes records sequentially from the start of a log. It stops at the
// first record that is structurally invalid or fails its checksum; Next then
// returns io.EOF and Tail describes what was dropped. A Reader cannot be rewound.
type Reader struct {
	r      *bufio.Reader
	size   int64
	offset int64
	tail   *CorruptTail
	err    error
}

// NewReader reads a log of size bytes from r.
func NewReader(r io.Reader, size int64) *Reader {
	return &Reader{
		r:    bufio.NewReaderSize(r, 64*1024),
		size: size,
	}
}

// Next returns the next valid record. It returns io.EOF once the valid part
// of the log is exhausted. Any other error comes from the underlying reader.
func (r *Reader) Next() (Record, error) {
	if r.err != nil {
		return Record{}, r.err
	}

	remaining := r.size - r.offset
	if remaining <= 0 {
		return r.stop(io.EOF)
	}
	if remaining < HeaderSize {
		return r.corrupt(ReasonTruncatedHeader, 0)
	}

	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if isShortRead(err) {
			return r.corrupt(ReasonTruncatedHeader, 0)
		}
		return r.stop(fmt.Errorf("wal: read header at offset %d: %w", r.offset, err))
	}

	op := Op(hdr[0])
	stored := binary.LittleEndian.Uint32(hdr[1:5])
	keyLen := binary.LittleEndian.Uint32(hdr[5:9])
	valLen := binary.LittleEndian.Uint32(hdr[9:13])
	afterHeader := remaining - HeaderSize

	switch {
	case !op.valid():
		return r.corrupt(ReasonUnknownOp, afterHeader)
	case keyLen == 0:
		return r.corrupt(ReasonEmptyKey, afterHeader)
	case op == OpDelete && valLen != 0:
		return r.corrupt(ReasonDeleteWithValue, afterHeader)
	}

	bodyLen := int64(keyLen) + int64(valLen)
	if bodyLen > afterHeader {
		return r.corrupt(ReasonTruncatedBody, 0)
	}

	buf := make([]byte, HeaderSize+bodyLen)
	copy(buf, hdr[:])
	if _, err := io.ReadFull(r.r, buf[HeaderSize:]); err != nil {
		if isShortRead(err) {
			return r.corrupt(ReasonTruncatedBody, 0)
		}
		return r.stop(fmt.Errorf("wal: read body at offset %d: %w", r.offset, err))
	}

	if checksum(buf) != stored {
		return r.corrupt(ReasonChecksum, afterHeader-bodyLen)
	}

	r.offset += int64(len(buf))

	rec := Record{Op: op, Key: buf[HeaderSize : HeaderSize+keyLen]}
	if op == OpPut {
		rec.Value = buf[HeaderSize+keyLen:]
	}
	return rec, nil
}

// Offset is the number of bytes of valid log consumed so far.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Tail returns the discarded tail, or nil if the log ended cleanly (or has not
// been read to the end yet).
func (r *Reader) Tail() *CorruptTail {
	return r.tail
}

func (r *Reader) corrupt(reason string, trailing int64) (Record, error) {
	r.tail = &CorruptTail{
		Offset:    r.offset,
		Reason:    reason,
		Discarded: r.size - r.offset,
		Trailing:  trailing,
	}
	return r.stop(io.EOF)
}

func (r *Reader) stop(err error) (Record, error) {
	r.err = err
	return Record{}, err
}

func isShortRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
