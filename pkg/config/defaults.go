package config

import (
	"strings"
	"time"

	"github.com/marmos91/smbc/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyClientDefaults(&cfg.Client)
	applyAsyncDefaults(&cfg.Async)
	applyMemoryDefaults(&cfg.Memory)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "WARN"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	// A CLI writes its results to stdout.
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyClientDefaults sets connection defaults.
func applyClientDefaults(cfg *ClientConfig) {
	if cfg.Backend == "" {
		cfg.Backend = BackendSMB2
	}
	cfg.Backend = strings.ToLower(cfg.Backend)

	if cfg.Workgroup == "" {
		cfg.Workgroup = "WORKGROUP"
	}
	if cfg.Username == "" {
		cfg.Username = "guest"
	}
	if cfg.Port == 0 {
		cfg.Port = 445
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ReadChunk == 0 {
		cfg.ReadChunk = 4 * bytesize.KiB
	}
}

// applyAsyncDefaults sets async worker defaults.
func applyAsyncDefaults(cfg *AsyncConfig) {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 64
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 5 * time.Second
	}
}

// applyMemoryDefaults sets memory backend defaults.
func applyMemoryDefaults(cfg *MemoryConfig) {
	if cfg.Workgroup == "" {
		cfg.Workgroup = "WORKGROUP"
	}
	for i := range cfg.Shares {
		if cfg.Shares[i].Capacity == 0 {
			cfg.Shares[i].Capacity = bytesize.GiB
		}
	}
}

// GetDefaultConfig returns a Config with all default values applied.
//
// The memory backend gets one writable share so `smbc --backend memory`
// works without further setup.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Memory: MemoryConfig{
			Shares: []MemoryShareConfig{
				{Server: "localhost", Name: "public", Comment: "Public share"},
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
