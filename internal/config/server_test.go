package config

import (
	"testing"
	"time"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.MaxConcurrentGames != 1000 {
		t.Fatalf("MaxConcurrentGames = %d, want 1000", cfg.MaxConcurrentGames)
	}
	if cfg.JanitorInterval != time.Second {
		t.Fatalf("JanitorInterval = %v, want 1s", cfg.JanitorInterval)
	}
	if cfg.PostgresDSN != "" {
		t.Fatalf("PostgresDSN = %q, want empty", cfg.PostgresDSN)
	}
	if !cfg.AutoMigrate {
		t.Fatal("AutoMigrate should default to true")
	}
	if cfg.NotifyEnabled || cfg.NotifyWorkers != 2 || cfg.NotifyRetryMax != 3 {
		t.Fatalf("unexpected notify defaults: %+v", cfg)
	}
}

func TestLoadServerParseTypes(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_GAMES", "8")
	t.Setenv("INPUT_RATE_PER_SEC", "12.5")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("WS_READ_LIMIT_BYTES", "1024")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.MaxConcurrentGames != 8 {
		t.Fatalf("MaxConcurrentGames = %d, want 8", cfg.MaxConcurrentGames)
	}
	if cfg.InputRatePerSec != 12.5 {
		t.Fatalf("InputRatePerSec = %v, want 12.5", cfg.InputRatePerSec)
	}
	if cfg.ShutdownTimeout != 3*time.Second || cfg.WSReadLimitBytes != 1024 {
		t.Fatalf("unexpected server config: %+v", cfg)
	}
}

func TestLoadServerRejectsBadNumber(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_GAMES", "many")

	if _, err := LoadServer(); err == nil {
		t.Fatal("LoadServer() expected error, got nil")
	}
}
