package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", "logging:\n  level: INFO\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) {
			select {
			case changes <- cfg:
			default:
			}
		}, nil)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("logging:\n  level: ERROR\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.Logging.Level != "ERROR" {
			t.Errorf("Expected reloaded level 'ERROR', got %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_ReportsInvalidConfig(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", "logging:\n  level: INFO\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		_ = Watch(ctx, path, func(*Config) {
			t.Error("onChange must not run for an invalid config")
		}, func(err error) {
			select {
			case errs <- err:
			default:
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("client:\n  backend: nfs\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Error("Expected a reload error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload error")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "config.yaml")

	if err := Watch(context.Background(), path, func(*Config) {}, nil); err == nil {
		t.Fatal("Expected error watching a missing directory")
	}
}
