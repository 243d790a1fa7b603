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
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
postgres:
  dsn: "postgres://localhost/minutecast?sslmode=disable"
scraper:
  base_url: "https://example.test"
  timeout: 15s
  workers: 5
  adapters: ["matchcentre"]
session:
  capability_ttl: 1h
retry:
  max_attempts: 2
reconcile:
  fill_strategy: leave_blank
  gap_tolerance: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Postgres.DSN == "" {
		t.Error("DSN not loaded")
	}
	if cfg.Scraper.BaseURL != "https://example.test" {
		t.Errorf("BaseURL = %q", cfg.Scraper.BaseURL)
	}
	if cfg.Scraper.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Scraper.Timeout)
	}
	if len(cfg.Scraper.Adapters) != 1 || cfg.Scraper.Adapters[0] != "matchcentre" {
		t.Errorf("Adapters = %v", cfg.Scraper.Adapters)
	}
	if cfg.Session.CapabilityTTL != time.Hour {
		t.Errorf("CapabilityTTL = %v, want 1h", cfg.Session.CapabilityTTL)
	}
	if cfg.Retry.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", cfg.Retry.MaxAttempts)
	}
	if cfg.Reconcile.FillStrategy != "leave_blank" || cfg.Reconcile.GapTolerance != 5 {
		t.Errorf("Reconcile = %+v", cfg.Reconcile)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
postgres:
  dsn: "postgres://localhost/minutecast"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.BaseURL != "https://www.whoscored.com" {
		t.Errorf("BaseURL default = %q", cfg.Scraper.BaseURL)
	}
	if cfg.Scraper.Workers != 3 {
		t.Errorf("Workers default = %d", cfg.Scraper.Workers)
	}
	if len(cfg.Scraper.Adapters) != 3 {
		t.Errorf("Adapters default = %v", cfg.Scraper.Adapters)
	}
	if cfg.Retry.MaxAttempts != 4 || cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("Retry defaults = %+v", cfg.Retry)
	}
	if cfg.Reconcile.GapTolerance != 3 || cfg.Reconcile.PossessionEpsilon != 5.0 {
		t.Errorf("Reconcile defaults = %+v", cfg.Reconcile)
	}
	if cfg.Session.ProbeURL != "https://www.whoscored.com/" {
		t.Errorf("ProbeURL default = %q", cfg.Session.ProbeURL)
	}
	if cfg.Discovery.PageTimeout != 20*time.Second {
		t.Errorf("PageTimeout default = %v", cfg.Discovery.PageTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() of missing file: want error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "scraper: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() of invalid yaml: want error")
	}
}
