package config

import (
	"testing"
	"time"

	"github.com/marmos91/smbc/internal/bytesize"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected default log level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected default log output 'stderr', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Client(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Client.Backend != BackendSMB2 {
		t.Errorf("Expected default backend 'smb2', got %q", cfg.Client.Backend)
	}
	if cfg.Client.Workgroup != "WORKGROUP" || cfg.Client.Username != "guest" || cfg.Client.Password != "" {
		t.Errorf("Unexpected default credentials %+v", cfg.Client.Defaults())
	}
	if cfg.Client.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", cfg.Client.Timeout)
	}
	if cfg.Client.ReadChunk != 4*bytesize.KiB {
		t.Errorf("Expected default read chunk 4KiB, got %v", cfg.Client.ReadChunk)
	}
}

func TestApplyDefaults_Async(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Async.Enabled {
		t.Error("Expected async disabled by default")
	}
	if cfg.Async.QueueSize != 64 {
		t.Errorf("Expected default queue size 64, got %d", cfg.Async.QueueSize)
	}
	if cfg.Async.StopTimeout != 5*time.Second {
		t.Errorf("Expected default stop timeout 5s, got %v", cfg.Async.StopTimeout)
	}
}

func TestApplyDefaults_Metrics(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)

	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}

	cfg = &Config{}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 0 {
		t.Errorf("Expected no metrics port while disabled, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "debug", Format: "json", Output: "/tmp/smbc.log"},
		Client: ClientConfig{
			Backend:   "MEMORY",
			Workgroup: "CORP",
			Username:  "alice",
			Port:      1445,
			Timeout:   time.Second,
			ReadChunk: 64 * bytesize.KiB,
		},
		Async: AsyncConfig{QueueSize: 4, StopTimeout: time.Minute},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "/tmp/smbc.log" {
		t.Errorf("Expected output preserved, got %q", cfg.Logging.Output)
	}
	if cfg.Client.Backend != BackendMemory {
		t.Errorf("Expected backend normalized to 'memory', got %q", cfg.Client.Backend)
	}
	if cfg.Client.Workgroup != "CORP" || cfg.Client.Username != "alice" {
		t.Errorf("Expected credentials preserved, got %+v", cfg.Client.Defaults())
	}
	if cfg.Client.Port != 1445 || cfg.Client.Timeout != time.Second || cfg.Client.ReadChunk != 64*bytesize.KiB {
		t.Errorf("Expected client values preserved, got %+v", cfg.Client)
	}
	if cfg.Async.QueueSize != 4 || cfg.Async.StopTimeout != time.Minute {
		t.Errorf("Expected async values preserved, got %+v", cfg.Async)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Default config should be valid, got: %v", err)
	}
}
