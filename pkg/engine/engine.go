// Package engine ties the write-ahead log to the memtable.
//
// Write path: WAL append (fsynced) -> memtable apply. Read path: memtable only.
// The engine keeps one log and one in-memory table; there are no on-disk
// tables or compaction.
package engine

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"lumenkv/pkg/dberrors"
	"lumenkv/pkg/memtable"
	"lumenkv/pkg/wal"
)

// Engine is safe for concurrent use. Create one per data directory with Open
// and share it between all callers.
type Engine struct {
	opts    options
	log     *slog.Logger
	metrics Metrics

	wal   *wal.WAL
	mt    *memtable.Memtable
	order *sequencer

	recovery RecoveryStats
	// readOnly is set when recovery left an unrepaired tail in the log.
	readOnly error
	closed   atomic.Bool
}

// Open opens (or creates) the log in dataDir and replays it before returning.
// Only a failure to open or read the log, or a refused corruption under
// strict recovery, makes Open fail.
func Open(dataDir string, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger.With("component", "engine")

	journal, err := wal.Open(dataDir)
	if err != nil {
		return nil, dberrors.New(dberrors.KindIO, "open", err)
	}
	log.Info("WAL opened", "path", journal.Path(), "bytes", journal.Size())

	e := &Engine{
		opts:    o,
		log:     log,
		metrics: o.metrics,
		wal:     journal,
		mt:      memtable.New(),
		order:   newSequencer(),
	}

	if err := e.recover(); err != nil {
		if cerr := journal.Close(); cerr != nil {
			log.Warn("failed to close WAL after recovery error", "error", cerr)
		}
		return nil, err
	}

	return e, nil
}

// Put stores value under key. It returns once the mutation is durable.
func (e *Engine) Put(key, value []byte) error {
	if err := e.checkKey(key); err != nil {
		return dberrors.New(dberrors.KindInvalidArgument, "put", err)
	}
	if len(value) > e.opts.maxValueBytes {
		return dberrors.New(dberrors.KindInvalidArgument, "put",
			fmt.Errorf("%w: %d bytes exceeds limit of %d", dberrors.ErrInvalidValue, len(value), e.opts.maxValueBytes))
	}

	key, value = bytes.Clone(key), bytes.Clone(value)

	seq, err := e.append("put", wal.Put(key, value))
	if err != nil {
		return err
	}

	e.order.apply(seq, func() { e.mt.Insert(key, value, seq) })
	e.metrics.SetLiveKeys(e.mt.Len())
	return nil
}

// Delete removes key. Deleting an absent key is logged and succeeds; existed
// reports whether a value was removed.
func (e *Engine) Delete(key []byte) (existed bool, err error) {
	if err := e.checkKey(key); err != nil {
		return false, dberrors.New(dberrors.KindInvalidArgument, "delete", err)
	}

	key = bytes.Clone(key)

	seq, err := e.append("delete", wal.Delete(key))
	if err != nil {
		return false, err
	}

	e.order.apply(seq, func() { existed = e.mt.Remove(key) })
	e.metrics.SetLiveKeys(e.mt.Len())
	return existed, nil
}

// Get returns a copy of the value stored under key. It never touches the log.
// An empty key can never be stored, so Get reports it absent instead of
// returning the KindInvalidArgument error Put and Delete give.
func (e *Engine) Get(key []byte) ([]byte, bool) {
	if len(key) == 0 {
		return nil, false
	}
	v, ok := e.mt.Get(key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// Len returns the number of live keys.
func (e *Engine) Len() int {
	return e.mt.Len()
}

// Ascend calls fn for each live key in byte order until fn returns false.
// fn must not call mutating Engine methods.
func (e *Engine) Ascend(fn func(key, value []byte) bool) {
	e.mt.Ascend(fn)
}

// Recovery describes what Open found in the log.
func (e *Engine) Recovery() RecoveryStats {
	return e.recovery
}

// Close releases the log file. Reads keep working from memory; writes fail
// with a KindClosed error.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := e.wal.Close(); err != nil {
		return dberrors.New(dberrors.KindIO, "close", err)
	}
	e.log.Info("engine closed", "live_keys", e.mt.Len())
	return nil
}

func (e *Engine) checkKey(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", dberrors.ErrInvalidKey)
	}
	if len(key) > e.opts.maxKeyBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", dberrors.ErrInvalidKey, len(key), e.opts.maxKeyBytes)
	}
	return nil
}

// append is the durability commit point. The WAL lock is held only inside
// wal.Append; the memtable is updated after it has been released, through
// the sequencer.
func (e *Engine) append(op string, rec wal.Record) (uint64, error) {
	if e.closed.Load() {
		return 0, dberrors.New(dberrors.KindClosed, op, dberrors.ErrClosed)
	}
	if e.readOnly != nil {
		return 0, dberrors.New(dberrors.KindCorruption, op, e.readOnly)
	}

	start := time.Now()
	seq, err := e.wal.Append(rec)
	e.metrics.ObserveAppend(op, rec.EncodedSize(), time.Since(start), err)

	if err != nil {
		if errors.Is(err, wal.ErrClosed) {
			return 0, dberrors.New(dberrors.KindClosed, op, dberrors.ErrClosed)
		}
		e.log.Error("WAL append failed", "op", op, "key_bytes", len(rec.Key), "error", err)
		return 0, dberrors.New(dberrors.KindIO, op, err)
	}
	return seq, nil
}

func (e *Engine) apply(seq uint64, rec wal.Record) {
	switch rec.Op {
	case wal.OpPut:
		e.mt.Insert(rec.Key, rec.Value, seq)
	case wal.OpDelete:
		e.mt.Remove(rec.Key)
	}
}
