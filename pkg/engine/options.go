package engine

import (
	"log/slog"
	"time"
)

const (
	DefaultMaxKeyBytes   = 64 << 10
	DefaultMaxValueBytes = 64 << 20
)

// Metrics receives engine measurements. *metrics.Metrics implements it.
type Metrics interface {
	ObserveAppend(op string, bytes int, d time.Duration, err error)
	ObserveRecovery(records int, discardedBytes int64)
	SetLiveKeys(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveAppend(string, int, time.Duration, error) {}
func (nopMetrics) ObserveRecovery(int, int64)                      {}
func (nopMetrics) SetLiveKeys(int)                                 {}

type options struct {
	logger         *slog.Logger
	metrics        Metrics
	maxKeyBytes    int
	maxValueBytes  int
	strictRecovery bool
	repairTail     bool
}

func defaultOptions() options {
	return options{
		logger:        slog.Default(),
		metrics:       nopMetrics{},
		maxKeyBytes:   DefaultMaxKeyBytes,
		maxValueBytes: DefaultMaxValueBytes,
		repairTail:    true,
	}
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLimits bounds key and value sizes. Non-positive values keep the default.
func WithLimits(maxKeyBytes, maxValueBytes int) Option {
	return func(o *options) {
		if maxKeyBytes > 0 {
			o.maxKeyBytes = maxKeyBytes
		}
		if maxValueBytes > 0 {
			o.maxValueBytes = maxValueBytes
		}
	}
}

// WithStrictRecovery makes Open fail when a checksum failure is followed by
// more log data, instead of discarding everything from that record on. A
// record cut short by the end of the file is always tolerated.
func WithStrictRecovery(strict bool) Option {
	return func(o *options) {
		o.strictRecovery = strict
	}
}

// WithTailRepair controls whether a discarded tail is also cut from the file.
// Without repair the engine opens read-only, since records appended after the
// garbage would be lost on the next recovery.
func WithTailRepair(repair bool) Option {
	return func(o *options) {
		o.repairTail = repair
	}
}
