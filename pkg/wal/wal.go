package wal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the name of the log inside the data directory.
const FileName = "wal.log"

var ErrClosed = errors.New("wal: closed")

// WAL is the append-only log file. Appends are serialized by a single mutex;
// the order in which callers acquire it is the order of the log.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	path string
	size int64
	seq  uint64

	// failed is set when a failed append could not be rolled back. The file
	// may hold a partial record, so nothing else may be appended after it.
	failed error
}

// ReplayResult summarizes a full pass over the log.
type ReplayResult struct {
	Records    int
	Puts       int
	Deletes    int
	ValidBytes int64
	// Tail is nil when the log ended on a record boundary.
	Tail *CorruptTail
}

// Open creates dir if needed and opens dir/wal.log for appending.
func Open(dir string) (*WAL, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty WAL dir")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	path := filepath.Join(dir, FileName)
	_, statErr := os.Stat(path)
	created := errors.Is(statErr, os.ErrNotExist)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat WAL file: %w", err)
	}

	if created {
		if err := syncDir(dir); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to sync WAL directory: %w", err)
		}
	}

	return &WAL{
		file: file,
		path: path,
		size: info.Size(),
	}, nil
}

// Append writes rec at the end of the log and fsyncs before returning. The
// returned sequence number is the record's position in the log, starting at 1.
// On failure the file is cut back to its previous length.
func (w *WAL) Append(rec Record) (uint64, error) {
	buf, err := rec.MarshalBinary()
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, ErrClosed
	}
	if w.failed != nil {
		return 0, fmt.Errorf("WAL unusable after failed rollback: %w", w.failed)
	}

	if err := w.write(buf); err != nil {
		w.rollback()
		return 0, err
	}

	w.size += int64(len(buf))
	w.seq++
	return w.seq, nil
}

func (w *WAL) write(buf []byte) error {
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAL entry: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL: %w", err)
	}
	return nil
}

func (w *WAL) rollback() {
	if err := w.file.Truncate(w.size); err != nil {
		w.failed = err
		slog.Error("failed to roll back partial WAL entry", "path", w.path, "size", w.size, "error", err)
	}
}

// Replay reads the log from the beginning through a separate read handle and
// calls fn for each valid record in order. Reading stops at the first invalid
// record; that is reported in the result, not as an error. Failing to open the
// file, a read error, or an error from fn is returned.
//
// Appends continue numbering after the last replayed record.
func (w *WAL) Replay(fn func(seq uint64, rec Record) error) (ReplayResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var res ReplayResult

	file, err := os.Open(w.path)
	if err != nil {
		return res, fmt.Errorf("failed to open WAL for reading: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			slog.Warn("failed to close WAL read file", "error", cerr)
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return res, fmt.Errorf("failed to stat WAL for reading: %w", err)
	}

	reader := NewReader(file, info.Size())
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}

		res.Records++
		if rec.Op == OpPut {
			res.Puts++
		} else {
			res.Deletes++
		}

		if err := fn(uint64(res.Records), rec); err != nil {
			return res, fmt.Errorf("WAL replay callback failed: %w", err)
		}
	}

	res.ValidBytes = reader.Offset()
	res.Tail = reader.Tail()
	w.seq = uint64(res.Records)

	return res, nil
}

// TruncateTail drops everything after offset, typically the start of a
// corrupt tail found by Replay.
func (w *WAL) TruncateTail(offset int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrClosed
	}
	if offset < 0 || offset > w.size {
		return fmt.Errorf("truncate offset %d outside log of %d bytes", offset, w.size)
	}

	if err := w.file.Truncate(offset); err != nil {
		return fmt.Errorf("failed to truncate WAL: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL: %w", err)
	}

	w.size = offset
	w.failed = nil
	return nil
}

// Size returns the current length of the log in bytes.
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

func (w *WAL) Path() string {
	return w.path
}

// Close releases the file handle. The log is left as is.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}

	err := w.file.Close()
	w.file = nil
	if err != nil {
		return fmt.Errorf("failed to close WAL file: %w", err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
