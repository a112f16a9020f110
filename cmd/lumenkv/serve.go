package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpapi "lumenkv/internal/http"
	"lumenkv/internal/rpc"
	"lumenkv/pkg/config"
	"lumenkv/pkg/engine"
	"lumenkv/pkg/metrics"
	"lumenkv/pkg/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the data directory and serve the REST and gRPC APIs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := initConfig(configPath)
		if err != nil {
			return err
		}
		log := initLogger(&cfg, os.Stdout)

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return serve(ctx, cfg, log)
	},
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) (err error) {
	var m *metrics.Metrics
	engineOpts := []engine.Option{
		engine.WithLogger(log),
		engine.WithLimits(cfg.Engine.MaxKeyBytes, cfg.Engine.MaxValueBytes),
		engine.WithStrictRecovery(cfg.Engine.StrictRecovery),
		engine.WithTailRepair(cfg.Engine.RepairTail),
	}
	if cfg.Metrics.Enabled {
		m = metrics.New()
		engineOpts = append(engineOpts, engine.WithMetrics(m))
	}

	tracer, err := tracing.New(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if serr := tracer.Shutdown(context.Background()); serr != nil {
			log.Warn("failed to flush traces", "error", serr)
		}
	}()

	eng, err := engine.Open(cfg.Engine.DataDir, engineOpts...)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	stats := eng.Recovery()
	log.Info("engine initialised",
		"data_dir", cfg.Engine.DataDir,
		"recovered", stats.LiveKeys,
		"wal_ops", stats.Records,
	)

	var stops []func() error
	defer func() {
		for i := len(stops) - 1; i >= 0; i-- {
			if serr := stops[i](); serr != nil {
				log.Error("failed to stop server", "error", serr)
			}
		}
	}()

	if cfg.Server.GRPCAddr != "" {
		rpcOpts := rpc.Options{Logger: log, Tracer: tracer, ShutdownTimeout: cfg.Server.ShutdownTimeout}
		if m != nil {
			rpcOpts.Metrics = m
		}
		grpcServer := rpc.NewServer(eng, cfg.Server.GRPCAddr, rpcOpts)
		if err := grpcServer.Start(); err != nil {
			return err
		}
		stops = append(stops, grpcServer.Stop)
	}

	if cfg.Server.HTTPAddr != "" {
		httpOpts := httpapi.Options{
			Logger:            log,
			Tracer:            tracer,
			MetricsPath:       cfg.Metrics.Path,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
			ShutdownTimeout:   cfg.Server.ShutdownTimeout,
			MaxValueBytes:     int64(cfg.Engine.MaxValueBytes),
		}
		if m != nil {
			httpOpts.Metrics = m
			httpOpts.MetricsHandler = m.Handler()
		}
		httpServer := httpapi.NewServer(eng, cfg.Server.HTTPAddr, httpOpts)
		if err := httpServer.Start(); err != nil {
			return err
		}
		stops = append(stops, httpServer.Stop)
	}

	log.Info("lumenkv is running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
