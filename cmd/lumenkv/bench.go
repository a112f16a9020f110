package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lumenkv/internal/bench"
	"lumenkv/internal/rpc"
	"lumenkv/pkg/client"
)

var (
	benchTarget    string
	benchTransport string
	benchCfg       bench.Config
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure put latency against a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		kv, err := dialTarget(benchTransport, benchTarget)
		if err != nil {
			return err
		}
		defer kv.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "=== LumenKV Benchmark ===")
		fmt.Fprintf(out, "Target: %s (%s)\n", benchTarget, benchTransport)
		fmt.Fprintf(out, "Puts: %d, concurrency %d, %d byte values\n\n", benchCfg.Requests, benchCfg.Concurrency, benchCfg.ValueSize)

		res, err := bench.RunPuts(ctx, kv, benchCfg)
		res.Print(out)
		if err != nil {
			return err
		}
		if res.FailedOps > 0 {
			return fmt.Errorf("%d of %d puts failed", res.FailedOps, res.TotalOps)
		}
		return nil
	},
}

func init() {
	f := benchCmd.Flags()
	f.StringVar(&benchTarget, "target", "127.0.0.1:50051", "server address")
	f.StringVar(&benchTransport, "transport", "grpc", "transport to use: grpc or http")
	f.IntVar(&benchCfg.Requests, "requests", 10000, "number of puts")
	f.IntVar(&benchCfg.Concurrency, "concurrency", 1, "concurrent callers")
	f.IntVar(&benchCfg.ValueSize, "value-size", 128, "value size in bytes")
	f.StringVar(&benchCfg.KeyPrefix, "key-prefix", "bench", "prefix for generated keys")
}

func dialTarget(transport, target string) (client.KV, error) {
	switch transport {
	case "grpc":
		c, err := rpc.Dial(target)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "http":
		return client.NewHTTPClient(target), nil
	default:
		return nil, fmt.Errorf("unknown transport %q, want grpc or http", transport)
	}
}
