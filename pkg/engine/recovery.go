package engine

import (
	"time"

	"lumenkv/pkg/dberrors"
	"lumenkv/pkg/wal"
)

// RecoveryStats summarizes the replay performed by Open.
type RecoveryStats struct {
	Records    int
	Puts       int
	Deletes    int
	LiveKeys   int
	ValidBytes int64
	// Tail is the discarded part of the log, nil if the log was clean.
	Tail *wal.CorruptTail
	// Repaired is true when Tail was cut from the file.
	Repaired bool
	Duration time.Duration
}

// recover replays the whole log into the empty memtable. It runs before Open
// returns, so nothing else can touch the engine yet.
func (e *Engine) recover() error {
	start := time.Now()

	res, err := e.wal.Replay(func(seq uint64, rec wal.Record) error {
		e.apply(seq, rec)
		return nil
	})
	if err != nil {
		e.log.Error("WAL replay failed", "path", e.wal.Path(), "error", err)
		return dberrors.New(dberrors.KindIO, "recover", err)
	}
	e.order.reset(uint64(res.Records))

	stats := RecoveryStats{
		Records:    res.Records,
		Puts:       res.Puts,
		Deletes:    res.Deletes,
		LiveKeys:   e.mt.Len(),
		ValidBytes: res.ValidBytes,
		Tail:       res.Tail,
	}

	var discarded int64
	if tail := res.Tail; tail != nil {
		discarded = tail.Discarded

		if e.opts.strictRecovery && tail.MidFile() {
			e.log.Error("corrupt record inside WAL, refusing to start",
				"offset", tail.Offset,
				"reason", tail.Reason,
				"trailing_bytes", tail.Trailing,
			)
			return dberrors.New(dberrors.KindCorruption, "recover", tail)
		}

		e.log.Warn("discarding corrupt WAL tail",
			"offset", tail.Offset,
			"reason", tail.Reason,
			"discarded_bytes", tail.Discarded,
			"mid_file", tail.MidFile(),
		)

		if e.opts.repairTail {
			if err := e.wal.TruncateTail(tail.Offset); err != nil {
				return dberrors.New(dberrors.KindIO, "recover", err)
			}
			stats.Repaired = true
		} else {
			e.readOnly = tail
			e.log.Warn("tail repair disabled, engine is read-only")
		}
	}

	stats.Duration = time.Since(start)
	e.recovery = stats

	e.log.Info("recovery complete",
		"records", stats.Records,
		"puts", stats.Puts,
		"deletes", stats.Deletes,
		"live_keys", stats.LiveKeys,
		"tail_discarded", stats.Tail != nil,
		"duration", stats.Duration,
	)

	e.metrics.ObserveRecovery(stats.Records, discarded)
	e.metrics.SetLiveKeys(stats.LiveKeys)
	return nil
}
