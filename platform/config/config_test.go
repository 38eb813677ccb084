package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/matching")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000")

	// An empty SWEEP_INTERVAL parses to zero and must be rejected.
	if _, err := Load(); err == nil {
		t.Fatal("expected error for empty SWEEP_INTERVAL")
	}

	t.Setenv("SWEEP_INTERVAL", "2m")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GetSweepInterval() != 2*time.Minute {
		t.Fatalf("expected 2m sweep interval, got %s", cfg.GetSweepInterval())
	}
	if got := cfg.GetCORSOrigins(); len(got) != 1 || got[0] != "http://localhost:3000" {
		t.Fatalf("unexpected CORS origins %v", got)
	}
}

func TestLoadRejectsWildcardWithCredentials(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/matching")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("SWEEP_INTERVAL", "5m")
	t.Setenv("CORS_ORIGINS", "*")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "true")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for wildcard origins with credentials")
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("splitCSV returned %v", got)
	}
}
