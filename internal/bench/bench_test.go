package bench

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	failKey string
}

func newMemKV() *memKV { return &memKV{data: map[string][]byte{}} }

func (m *memKV) Put(_ context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if string(key) == m.failKey {
		return errors.New("rejected")
	}
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[string(key)]
	return v, ok, nil
}

func (m *memKV) Delete(_ context.Context, key []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[string(key)]
	delete(m.data, string(key))
	return ok, nil
}

func (m *memKV) Close() error { return nil }

func TestRunPuts(t *testing.T) {
	kv := newMemKV()

	res, err := RunPuts(context.Background(), kv, Config{Requests: 103, Concurrency: 10, ValueSize: 128})
	require.NoError(t, err)

	assert.Equal(t, 103, res.TotalOps)
	assert.Equal(t, 103, res.SuccessfulOps)
	assert.Equal(t, 0, res.FailedOps)
	assert.Len(t, kv.data, 103)
	for _, v := range kv.data {
		assert.Len(t, v, 128)
	}
	assert.LessOrEqual(t, res.MinLatency, res.P50)
	assert.LessOrEqual(t, res.P50, res.P99)
	assert.LessOrEqual(t, res.P99, res.MaxLatency)
}

func TestRunPuts_CountsFailures(t *testing.T) {
	kv := newMemKV()
	kv.failKey = "bench_0_0"

	res, err := RunPuts(context.Background(), kv, Config{Requests: 4, Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedOps)
	assert.Equal(t, 3, res.SuccessfulOps)
	assert.EqualError(t, res.FirstError, "rejected")
}

func TestRunPuts_RejectsZeroRequests(t *testing.T) {
	_, err := RunPuts(context.Background(), newMemKV(), Config{})
	assert.Error(t, err)
}

func TestPercentile(t *testing.T) {
	sorted := make([]time.Duration, 100)
	for i := range sorted {
		sorted[i] = time.Duration(i+1) * time.Millisecond
	}

	assert.Equal(t, 50*time.Millisecond, percentile(sorted, 50))
	assert.Equal(t, 99*time.Millisecond, percentile(sorted, 99))
	assert.Equal(t, time.Millisecond, percentile(sorted[:1], 99))
}

func TestResult_Print(t *testing.T) {
	var buf bytes.Buffer
	Result{TotalOps: 2, P99: time.Millisecond}.Print(&buf)
	assert.Contains(t, buf.String(), "p99 Latency: 1ms")
}
