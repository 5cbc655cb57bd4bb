// Package config loads drainpool settings from YAML or JSON files
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jzx17/drainpool/pkg/queue"
	"github.com/jzx17/drainpool/pkg/worker"
)

// FileConfig is the layout of a configuration file
type FileConfig struct {
	Pool     PoolConfig     `yaml:"pool" json:"pool"`
	Workload WorkloadConfig `yaml:"workload" json:"workload"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// PoolConfig holds pool and queue settings
type PoolConfig struct {
	Workers             int    `yaml:"workers" json:"workers"`
	QueueCapacity       int    `yaml:"queue_capacity" json:"queue_capacity"`
	MaxRecordedFailures int    `yaml:"max_recorded_failures" json:"max_recorded_failures"`
	MetricsNamespace    string `yaml:"metrics_namespace" json:"metrics_namespace"`
}

// WorkloadConfig describes the units a demo run generates
type WorkloadConfig struct {
	Units int `yaml:"units" json:"units"`
	Size  int `yaml:"size" json:"size"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when no file is given
func Default() *FileConfig {
	return &FileConfig{
		Pool: PoolConfig{
			Workers:          8,
			MetricsNamespace: "drainpool",
		},
		Workload: WorkloadConfig{
			Units: 1000,
			Size:  999,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile reads a configuration file. Fields missing from the file keep
// their Default values.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration
func (f *FileConfig) Validate() error {
	if f.Pool.Workers <= 0 {
		return fmt.Errorf("pool.workers must be positive")
	}
	if f.Pool.QueueCapacity < 0 {
		return fmt.Errorf("pool.queue_capacity must be non-negative")
	}
	if f.Pool.MaxRecordedFailures < 0 {
		return fmt.Errorf("pool.max_recorded_failures must be non-negative")
	}
	if f.Workload.Units < 0 {
		return fmt.Errorf("workload.units must be non-negative")
	}
	if f.Workload.Size < 0 {
		return fmt.Errorf("workload.size must be non-negative")
	}
	if _, err := parseLevel(f.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(f.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", f.Log.Format)
	}
	return nil
}

// ToPoolConfig converts the pool section into a worker.PoolConfig. Logger,
// clock and metrics registerer are left for the caller to set.
func (f *FileConfig) ToPoolConfig() *worker.PoolConfig {
	config := worker.DefaultPoolConfig()
	config.Workers = f.Pool.Workers
	config.MaxRecordedFailures = f.Pool.MaxRecordedFailures
	if f.Pool.MetricsNamespace != "" {
		config.MetricsNamespace = f.Pool.MetricsNamespace
	}
	return config
}

// QueueOptions returns the queue options for the pool section
func (f *FileConfig) QueueOptions() []queue.Option {
	if f.Pool.QueueCapacity > 0 {
		return []queue.Option{queue.WithCapacity(f.Pool.QueueCapacity)}
	}
	return nil
}

// NewLogger builds a logger writing to w. An empty level means info and an
// empty format means text.
func NewLogger(config LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(config.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", config.Format)
	}

	return slog.New(handler), nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}
