package main

import (
	"io"
	"log/slog"

	"lumenkv/pkg/config"
)

// initConfig loads the YAML config. A missing file yields config.Default().
func initConfig(path string) (config.Config, error) {
	return config.Load(path)
}

// initLogger installs a JSON or text slog.Logger as the default.
func initLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.Logger.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{AddSource: level == slog.LevelDebug, Level: level}
	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("logger initialized", "level", level.String(), "json", cfg.Logger.JSON)
	return logger
}
