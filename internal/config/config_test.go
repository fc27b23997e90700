package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Gateway.Workers != 8 {
		t.Fatalf("expected 8 gateway workers, got %d", cfg.Gateway.Workers)
	}
	interval, err := cfg.SweepInterval()
	if err != nil {
		t.Fatalf("SweepInterval: %v", err)
	}
	if interval != 10*time.Second {
		t.Fatalf("expected 10s sweep interval, got %s", interval)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: 9090
gateway:
  workers: 4
sweep:
  interval: 30s
motd: "Welcome!"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Gateway.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Gateway.Workers)
	}
	interval, _ := cfg.SweepInterval()
	if interval != 30*time.Second {
		t.Fatalf("expected 30s interval, got %s", interval)
	}
	if cfg.MOTD != "Welcome!" {
		t.Fatalf("unexpected motd %q", cfg.MOTD)
	}
	// untouched sections keep defaults
	if cfg.Database.Port != 5432 {
		t.Fatalf("expected default db port, got %d", cfg.Database.Port)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sweep:\n  interval: soon\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid sweep interval")
	}
}

func TestDSN(t *testing.T) {
	cfg := Default()
	cfg.Database.Host = "db.internal"
	cfg.Database.Name = "groups"

	dsn := cfg.DSN()
	want := "host=db.internal port=5432 dbname=groups user=groupsystem password=groupsystem sslmode=disable"
	if dsn != want {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}

func TestDSNEnvOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@host/db")
	if got := Default().DSN(); got != "postgres://u:p@host/db" {
		t.Fatalf("expected DATABASE_URL to win, got %q", got)
	}
}
