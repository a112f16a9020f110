package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lumenkv"

// Metrics holds the Prometheus collectors for the engine and its transports.
// Each instance owns its registry so several engines can live in one process
// (tests do this).
type Metrics struct {
	reg *prometheus.Registry

	walAppends       *prometheus.CounterVec
	walAppendSeconds prometheus.Histogram
	walBytes         prometheus.Counter
	recoveredRecords prometheus.Gauge
	discardedBytes   prometheus.Gauge
	liveKeys         prometheus.Gauge

	requests       *prometheus.CounterVec
	requestSeconds *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		walAppends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wal_appends_total",
				Help:      "WAL appends by operation and result.",
			},
			[]string{"op", "result"},
		),
		walAppendSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "wal_append_duration_seconds",
				Help:      "Time to write and fsync one WAL record.",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
			},
		),
		walBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wal_written_bytes_total",
				Help:      "Bytes appended to the WAL.",
			},
		),
		recoveredRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "recovery_records",
				Help:      "Valid WAL records replayed at startup.",
			},
		),
		discardedBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "recovery_discarded_bytes",
				Help:      "Bytes of corrupt WAL tail discarded at startup.",
			},
		),
		liveKeys: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_keys",
				Help:      "Keys currently held in the memtable.",
			},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests served by transport, method and status code.",
			},
			[]string{"transport", "method", "code"},
		),
		requestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request latency by transport and method.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"transport", "method"},
		),
	}
}

// ObserveAppend records one WAL append attempt.
func (m *Metrics) ObserveAppend(op string, bytes int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.walAppends.WithLabelValues(op, result).Inc()
	if err == nil {
		m.walAppendSeconds.Observe(d.Seconds())
		m.walBytes.Add(float64(bytes))
	}
}

func (m *Metrics) ObserveRecovery(records int, discardedBytes int64) {
	m.recoveredRecords.Set(float64(records))
	m.discardedBytes.Set(float64(discardedBytes))
}

func (m *Metrics) SetLiveKeys(n int) {
	m.liveKeys.Set(float64(n))
}

// ObserveRequest records a request served by a transport ("http", "grpc").
func (m *Metrics) ObserveRequest(transport, method, code string, d time.Duration) {
	m.requests.WithLabelValues(transport, method, code).Inc()
	m.requestSeconds.WithLabelValues(transport, method).Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
