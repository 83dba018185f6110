package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
target:
  base_url: http://localhost:9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.StateDir != "data" {
		t.Errorf("state dir = %q, want data", cfg.StateDir)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Storage.SQLite.Path != filepath.Join("data", "relay.db") {
		t.Errorf("sqlite path = %q", cfg.Storage.SQLite.Path)
	}
	if cfg.DeadLetter.RetentionDays != 30 {
		t.Errorf("retention = %d, want 30", cfg.DeadLetter.RetentionDays)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.RecoveryTimeout != 60*time.Second {
		t.Errorf("breaker defaults not applied: %+v", cfg.Breaker)
	}
	if cfg.Target.DeliverPath != "/metadata" || cfg.Target.Timeout != 15*time.Second {
		t.Errorf("target defaults not applied: %+v", cfg.Target)
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("RELAY_TARGET_URL", "http://target.example:9000")
	t.Setenv("RELAY_TOKEN", "s3cret")

	path := writeConfig(t, `
target:
  base_url: ${RELAY_TARGET_URL}
  auth_token: ${RELAY_TOKEN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target.BaseURL != "http://target.example:9000" {
		t.Errorf("base url = %q", cfg.Target.BaseURL)
	}
	if cfg.Target.AuthToken != "s3cret" {
		t.Errorf("auth token = %q", cfg.Target.AuthToken)
	}
}

func TestLoadExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `
state_dir: /var/lib/relay
server:
  port: 9090
storage:
  backend: postgres
breaker:
  failure_threshold: 10
  recovery_timeout: 120s
retry:
  network:
    base: 2s
    cap: 30s
    max_retries: 7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StateDir != "/var/lib/relay" {
		t.Errorf("state dir = %q", cfg.StateDir)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "postgres" {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.Breaker.FailureThreshold != 10 || cfg.Breaker.RecoveryTimeout != 120*time.Second {
		t.Errorf("breaker = %+v", cfg.Breaker)
	}

	override, ok := cfg.Retry["network"]
	if !ok {
		t.Fatal("network retry override missing")
	}
	if override.Base != 2*time.Second || override.Cap != 30*time.Second || override.MaxRetries != 7 {
		t.Errorf("retry override = %+v", override)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestStatePaths(t *testing.T) {
	cfg := &AppConfig{StateDir: "/var/lib/relay"}

	if got := cfg.BreakerStatePath(); got != filepath.Join("/var/lib/relay", "breaker_state.json") {
		t.Errorf("breaker path = %q", got)
	}
	if got := cfg.RecoveryStatePath(); got != filepath.Join("/var/lib/relay", "recovery_state.json") {
		t.Errorf("recovery path = %q", got)
	}
	if got := cfg.OutageHistoryPath(); got != filepath.Join("/var/lib/relay", "outage_history.json") {
		t.Errorf("outage path = %q", got)
	}
}
