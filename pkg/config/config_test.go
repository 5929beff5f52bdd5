package config

import "testing"

func TestNewDefaults(t *testing.T) {
	cfg := New()
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("expected memory backend default, got %q", cfg.Storage.Backend)
	}
	if cfg.Transaction.IsolationDefaultLevel != "read_committed" {
		t.Fatalf("expected read_committed default, got %q", cfg.Transaction.IsolationDefaultLevel)
	}
	if cfg.Cache.NodeEntries <= 0 {
		t.Fatalf("expected positive node cache entries, got %d", cfg.Cache.NodeEntries)
	}
}

func TestLoadFileMissingIsNotError(t *testing.T) {
	cfg, err := LoadFile("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port preserved, got %d", cfg.Server.Port)
	}
}
