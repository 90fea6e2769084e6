package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: "9090"
  publicBaseUrl: https://hitest.example.com
admin:
  password: from-yaml
limits:
  login: 3
  window: 30s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ADMIN_SECRET", "from-env")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("port = %q", cfg.Server.Port)
	}
	if cfg.AdminSecret() != "from-env" {
		t.Fatalf("secret = %q, want env override", cfg.AdminSecret())
	}
	if !cfg.Production() {
		t.Fatalf("expected production env")
	}
	if cfg.Limits.Login != 3 || cfg.Limits.Start != 50 || cfg.Limits.CreateTest != 20 {
		t.Fatalf("unexpected limits %+v", cfg.Limits)
	}
	if got := TTLDuration(cfg.Limits.Window, time.Minute); got != 30*time.Second {
		t.Fatalf("window = %v", got)
	}
}

func TestAdminSecretFallsBackToPassword(t *testing.T) {
	var cfg Config
	if err := cfg.Validate(); err != ErrMissingSecret {
		t.Fatalf("expected missing secret, got %v", err)
	}
	cfg.Admin.Password = "pw"
	if cfg.AdminSecret() != "pw" {
		t.Fatalf("expected password fallback")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("APP_ENV", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Server.Env != "development" {
		t.Fatalf("unexpected defaults %+v", cfg.Server)
	}
	if got := TTLDuration("bogus", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
}
