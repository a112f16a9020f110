package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the root of the server configuration. Fields map one to one to
// the YAML file; environment overrides are applied on top by Load.
type Config struct {
	Logger  LoggerConfig  `yaml:"logger"`
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	HTTPAddr          string        `yaml:"http_addr"`
	GRPCAddr          string        `yaml:"grpc_addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type EngineConfig struct {
	DataDir        string `yaml:"data_dir"`
	MaxKeyBytes    int    `yaml:"max_key_bytes"`
	MaxValueBytes  int    `yaml:"max_value_bytes"`
	StrictRecovery bool   `yaml:"strict_recovery"`
	RepairTail     bool   `yaml:"repair_tail"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Environment variables that override the file.
const (
	EnvDataDir  = "DATA_DIR"
	EnvBindAddr = "BIND_ADDR"
	EnvHTTPAddr = "HTTP_ADDR"
	EnvLogLevel = "LOG_LEVEL"
)

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			HTTPAddr:          ":8080",
			GRPCAddr:          "0.0.0.0:50051",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Engine: EngineConfig{
			DataDir:       "./data",
			MaxKeyBytes:   64 << 10,
			MaxValueBytes: 64 << 20,
			RepairTail:    true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "http://localhost:14268/api/traces",
			ServiceName: "lumenkv",
		},
	}
}

// Load reads the YAML file at path on top of Default. A missing file is not an
// error. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Info("config file not found, using default config", "path", path)
		case err != nil:
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		c.Engine.DataDir = v
	}
	if v, ok := lookup(EnvBindAddr); ok && v != "" {
		c.Server.GRPCAddr = v
	}
	if v, ok := lookup(EnvHTTPAddr); ok && v != "" {
		c.Server.HTTPAddr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logger.Level = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := c.Logger.SlogLevel(); err != nil {
		return err
	}
	if c.Engine.DataDir == "" {
		return errors.New("config: engine.data_dir is required")
	}
	if c.Engine.MaxKeyBytes <= 0 {
		return fmt.Errorf("config: engine.max_key_bytes must be positive, got %d", c.Engine.MaxKeyBytes)
	}
	if c.Engine.MaxValueBytes <= 0 {
		return fmt.Errorf("config: engine.max_value_bytes must be positive, got %d", c.Engine.MaxValueBytes)
	}
	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		return errors.New("config: at least one of server.http_addr and server.grpc_addr is required")
	}
	if c.Server.ShutdownTimeout < 0 || c.Server.ReadHeaderTimeout < 0 {
		return errors.New("config: server timeouts must not be negative")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("config: metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return errors.New("config: tracing.endpoint is required when tracing is enabled")
	}
	return nil
}

// SlogLevel parses Level case-insensitively.
func (l LoggerConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: unknown logger.level %q", l.Level)
	}
	return level, nil
}
