// Package bench drives a lumenkv server with puts and reports latency.
package bench

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"lumenkv/pkg/client"
)

type Config struct {
	Requests    int
	Concurrency int
	ValueSize   int
	KeyPrefix   string
}

type Result struct {
	TotalOps      int
	SuccessfulOps int
	FailedOps     int
	Duration      time.Duration
	OpsPerSec     float64
	AvgLatency    time.Duration
	MinLatency    time.Duration
	MaxLatency    time.Duration
	P50           time.Duration
	P99           time.Duration
	// FirstError is the first failure seen, if any.
	FirstError error
}

// RunPuts issues cfg.Requests puts spread over cfg.Concurrency goroutines,
// each with a random value of cfg.ValueSize bytes.
func RunPuts(ctx context.Context, kv client.KV, cfg Config) (Result, error) {
	if cfg.Requests <= 0 {
		return Result{}, fmt.Errorf("requests must be positive, got %d", cfg.Requests)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Concurrency > cfg.Requests {
		cfg.Concurrency = cfg.Requests
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "bench"
	}

	value := make([]byte, cfg.ValueSize)
	if _, err := rand.Read(value); err != nil {
		return Result{}, fmt.Errorf("generate payload: %w", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failed   int
		firstErr error
	)
	latencies := make([]time.Duration, 0, cfg.Requests)

	opsPerGoroutine := cfg.Requests / cfg.Concurrency
	remainder := cfg.Requests % cfg.Concurrency

	start := time.Now()
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()

			ops := opsPerGoroutine
			if goroutineID < remainder {
				ops++
			}

			for j := 0; j < ops; j++ {
				if ctx.Err() != nil {
					return
				}
				key := []byte(fmt.Sprintf("%s_%d_%d", cfg.KeyPrefix, goroutineID, j))

				opStart := time.Now()
				err := kv.Put(ctx, key, value)
				latency := time.Since(opStart)

				mu.Lock()
				if err != nil {
					failed++
					if firstErr == nil {
						firstErr = err
					}
				}
				latencies = append(latencies, latency)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	res := summarize(latencies, time.Since(start))
	res.TotalOps = len(latencies)
	res.FailedOps = failed
	res.SuccessfulOps = res.TotalOps - failed
	res.FirstError = firstErr
	if res.Duration > 0 {
		res.OpsPerSec = float64(res.SuccessfulOps) / res.Duration.Seconds()
	}
	return res, ctx.Err()
}

func summarize(latencies []time.Duration, elapsed time.Duration) Result {
	res := Result{Duration: elapsed}
	if len(latencies) == 0 {
		return res
	}

	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, lat := range sorted {
		sum += lat
	}
	res.AvgLatency = sum / time.Duration(len(sorted))
	res.MinLatency = sorted[0]
	res.MaxLatency = sorted[len(sorted)-1]
	res.P50 = percentile(sorted, 50)
	res.P99 = percentile(sorted, 99)
	return res
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func (r Result) Print(w io.Writer) {
	fmt.Fprintf(w, "  Total Operations: %d\n", r.TotalOps)
	fmt.Fprintf(w, "  Successful: %d\n", r.SuccessfulOps)
	fmt.Fprintf(w, "  Failed: %d\n", r.FailedOps)
	fmt.Fprintf(w, "  Duration: %v\n", r.Duration)
	fmt.Fprintf(w, "  Operations/sec: %.2f\n", r.OpsPerSec)
	fmt.Fprintf(w, "  Avg Latency: %v\n", r.AvgLatency)
	fmt.Fprintf(w, "  Min Latency: %v\n", r.MinLatency)
	fmt.Fprintf(w, "  p50 Latency: %v\n", r.P50)
	fmt.Fprintf(w, "  p99 Latency: %v\n", r.P99)
	fmt.Fprintf(w, "  Max Latency: %v\n", r.MaxLatency)
	if r.FirstError != nil {
		fmt.Fprintf(w, "  First Error: %v\n", r.FirstError)
	}
}
