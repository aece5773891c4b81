package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  path: /tmp/test.db\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Server.ListenAddr != "127.0.0.1" {
		t.Errorf("ListenAddr default = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.HTTPPort != 8090 {
		t.Errorf("HTTPPort default = %d", cfg.Server.HTTPPort)
	}
	if cfg.Rcon.HealthInterval != 5*time.Second {
		t.Errorf("HealthInterval default = %v", cfg.Rcon.HealthInterval)
	}
	if cfg.Rcon.Timeout != 5*time.Second {
		t.Errorf("Timeout default = %v", cfg.Rcon.Timeout)
	}
	if cfg.Auth.TokenDuration != 24*time.Hour {
		t.Errorf("TokenDuration default = %v", cfg.Auth.TokenDuration)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  listen_addr: 0.0.0.0
  http_port: 9000
rcon:
  health_interval: 30s
  scripts_dir: /opt/scripts
integrations:
  relay_token: sekrit
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.ListenAddr != "0.0.0.0" || cfg.Server.HTTPPort != 9000 {
		t.Errorf("server config = %+v", cfg.Server)
	}
	if cfg.Rcon.HealthInterval != 30*time.Second {
		t.Errorf("HealthInterval = %v", cfg.Rcon.HealthInterval)
	}
	if cfg.Rcon.ScriptsDir != "/opt/scripts" {
		t.Errorf("ScriptsDir = %q", cfg.Rcon.ScriptsDir)
	}
	if cfg.Integrations.RelayToken != "sekrit" {
		t.Errorf("RelayToken = %q", cfg.Integrations.RelayToken)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of missing file should fail")
	}
}
