package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
port: 60000
storage: /tmp/blocks
hole_puncher:
  ip: 10.0.0.1
  port: 60001
  public_key: "CC"
secret_key: "AA"
public_key: "BB"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 60000 || cfg.Storage != "/tmp/blocks" {
		t.Fatalf("Config = %+v, unexpected values", cfg)
	}
	if cfg.HolePuncher.IP != "10.0.0.1" || cfg.HolePuncher.Port != 60001 {
		t.Fatalf("HolePuncher = %+v, unexpected values", cfg.HolePuncher)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
secret_key: "AA"
public_key: "BB"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 50000 {
		t.Fatalf("Port = %d, want default 50000", cfg.Port)
	}
	if cfg.Storage != "./block_data" {
		t.Fatalf("Storage = %q, want default ./block_data", cfg.Storage)
	}
}

func TestLoadMissingKeysErrors(t *testing.T) {
	path := writeConfig(t, `port: 1234`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected error for missing secret_key/public_key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}
