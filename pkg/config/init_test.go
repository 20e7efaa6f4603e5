package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smbc", "config.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read generated config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# smbc configuration file") {
		t.Error("Expected generated config to start with the header comment")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Generated config is not loadable: %v", err)
	}
	if cfg.Client.Backend != BackendSMB2 {
		t.Errorf("Expected backend 'smb2', got %q", cfg.Client.Backend)
	}
	if len(cfg.Memory.Shares) != 1 {
		t.Errorf("Expected default memory share, got %d shares", len(cfg.Memory.Shares))
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: INFO\n"), 0644); err != nil {
		t.Fatalf("Failed to seed config: %v", err)
	}

	err := InitConfigToPath(path, false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Unexpected error message: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "logging:\n  level: INFO\n" {
		t.Error("Existing config must not be modified")
	}
}

func TestInitConfigToPath_Force(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: INFO\n"), 0644); err != nil {
		t.Fatalf("Failed to seed config: %v", err)
	}

	if err := InitConfigToPath(path, true); err != nil {
		t.Fatalf("InitConfigToPath with force failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load overwritten config: %v", err)
	}
	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected default level after overwrite, got %q", cfg.Logging.Level)
	}
}

func TestInitConfig_DefaultLocation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if DefaultConfigExists() {
		t.Fatal("Expected no default config before init")
	}

	path, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if path != GetDefaultConfigPath() {
		t.Errorf("Expected %q, got %q", GetDefaultConfigPath(), path)
	}
	if !DefaultConfigExists() {
		t.Error("Expected default config to exist after init")
	}
}
