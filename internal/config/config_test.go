package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %s, want 8080", cfg.Server.Port)
	}
	if cfg.Sync.Interval != 5*time.Minute {
		t.Errorf("interval = %s, want 5m", cfg.Sync.Interval)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: "9090"
sync:
  interval: 1m
analytics:
  timezone: America/New_York
  risk_free_rate: 0.03
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %s, want 9090", cfg.Server.Port)
	}
	if cfg.Sync.Interval != time.Minute {
		t.Errorf("interval = %s, want 1m", cfg.Sync.Interval)
	}
	if cfg.Analytics.RiskFreeRate != 0.03 {
		t.Errorf("risk free rate = %v, want 0.03", cfg.Analytics.RiskFreeRate)
	}
	// Untouched values keep their defaults.
	if cfg.Source.WindowDays != 90 {
		t.Errorf("window days = %d, want default 90", cfg.Source.WindowDays)
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "America/New_York" {
		t.Errorf("location = %s", loc)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://env:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("port = %s, want 7070", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://env/db" {
		t.Errorf("database url = %s", cfg.Database.URL)
	}
	if cfg.Redis.URL != "redis://env:6379" {
		t.Errorf("redis url = %s", cfg.Redis.URL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"zero interval":    "sync:\n  interval: 0s\n",
		"zero window":      "source:\n  window_days: 0\n",
		"bad timezone":     "analytics:\n  timezone: Nowhere/Nothing\n",
		"negative weights": "analytics:\n  risk:\n    drawdown_weight: -1\n",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: Load accepted invalid config", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("want error for missing file")
	}
}
