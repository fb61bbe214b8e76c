package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_SaneBaseline(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Store.PrimaryKeyType != "id" {
		t.Fatalf("expected default primary key type %q, got %q", "id", cfg.Store.PrimaryKeyType)
	}
	if cfg.Runner.Parallelism <= 0 {
		t.Fatalf("expected positive default parallelism, got %d", cfg.Runner.Parallelism)
	}
	if cfg.Cache.Redis.Enabled {
		t.Fatal("expected redis cache disabled by default")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sequencer.json")
	body := `{"store":{"dsn":"postgres://x","primary_key_type":"uuid"},"runner":{"parallelism":9}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.DSN != "postgres://x" {
		t.Fatalf("expected overridden dsn, got %q", cfg.Store.DSN)
	}
	if cfg.Store.PrimaryKeyType != "uuid" {
		t.Fatalf("expected overridden primary key type, got %q", cfg.Store.PrimaryKeyType)
	}
	if cfg.Runner.Parallelism != 9 {
		t.Fatalf("expected overridden parallelism, got %d", cfg.Runner.Parallelism)
	}
	// Unset fields retain their defaults.
	if cfg.Runner.DefaultMaxAttempts != DefaultConfig().Runner.DefaultMaxAttempts {
		t.Fatal("expected unset runner fields to keep default values")
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sequencer.yaml")
	body := "store:\n  dsn: postgres://y\nobservability:\n  logging:\n    format: json\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.DSN != "postgres://y" {
		t.Fatalf("expected overridden dsn, got %q", cfg.Store.DSN)
	}
	if cfg.Observability.Logging.Format != "json" {
		t.Fatalf("expected overridden log format, got %q", cfg.Observability.Logging.Format)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("SEQUENCER_STORE_DSN", "postgres://env")
	t.Setenv("SEQUENCER_PARALLELISM", "16")
	t.Setenv("SEQUENCER_REPORTING_TELESCOPE", "true")
	t.Setenv("SEQUENCER_REDIS_ENABLED", "yes")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Store.DSN != "postgres://env" {
		t.Fatalf("expected env-overridden dsn, got %q", cfg.Store.DSN)
	}
	if cfg.Runner.Parallelism != 16 {
		t.Fatalf("expected env-overridden parallelism, got %d", cfg.Runner.Parallelism)
	}
	if !cfg.Reporting.Telescope {
		t.Fatal("expected telescope enabled from env")
	}
	if !cfg.Cache.Redis.Enabled {
		t.Fatal("expected redis cache enabled from env")
	}
}

func TestParseBool(t *testing.T) {
	cases := map[string]bool{
		"true": true, "1": true, "yes": true, "TRUE": true,
		"false": false, "0": false, "no": false, "": false,
	}
	for in, want := range cases {
		if got := parseBool(in); got != want {
			t.Fatalf("parseBool(%q) = %v, want %v", in, got, want)
		}
	}
}
