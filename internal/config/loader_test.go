package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.Storage != StorageMemory || cfg.Addr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Profiler.TopK != 10 || cfg.Database.DBName != "resultgrid" {
		t.Fatalf("unexpected nested defaults: %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `server:
  addr: ":9090"
  allowed_origins:
    - "https://grid.example.com"
storage:
  driver: Postgres
database:
  host: db.internal
  port: 6543
profile:
  workers: 8
frequency:
  top_k: 5
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RESULTGRID_DATABASE_HOST", "db.override")
	t.Setenv("RESULTGRID_PROFILE_CACHE_SIZE", "64")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.Addr != ":9090" || len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://grid.example.com" {
		t.Fatalf("server section not applied: %+v", cfg)
	}
	if cfg.Storage != StoragePostgres {
		t.Fatalf("expected postgres storage, got %q", cfg.Storage)
	}
	if cfg.Database.Host != "db.override" || cfg.Database.Port != 6543 {
		t.Fatalf("database section not applied: %+v", cfg.Database)
	}
	if cfg.Profiler.Workers != 8 || cfg.Profiler.TopK != 5 || cfg.Profiler.CacheSize != 64 {
		t.Fatalf("profiler section not applied: %+v", cfg.Profiler)
	}
}

func TestLoadRejectsUnknownStorage(t *testing.T) {
	t.Setenv("RESULTGRID_STORAGE_DRIVER", "redis")
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected unknown storage driver to be rejected")
	}
}
