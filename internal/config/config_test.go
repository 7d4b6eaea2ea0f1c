package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TOKENCAST_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("expected sqlite default backend, got %q", cfg.DBBackend)
	}
	if !cfg.ShowAutoTransition {
		t.Fatal("expected auto transition enabled by default")
	}
	if cfg.ShowEstimatedDuration != time.Hour {
		t.Fatalf("unexpected estimated duration: %v", cfg.ShowEstimatedDuration)
	}
	if cfg.ShowAdvanceFirst {
		t.Fatal("expected advance-first policy off by default")
	}
	if cfg.HTTPAddr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected http addr: %q", cfg.HTTPAddr())
	}
}

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("TOKENCAST_DB_BACKEND", "postgres")
	t.Setenv("TOKENCAST_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("TOKENCAST_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("TOKENCAST_TELEGRAM_GROUP_IDS", " -100123, -100456 ,")
	t.Setenv("TOKENCAST_GENERATOR_TIMEOUT_SECONDS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if len(cfg.TelegramGroups) != 2 || cfg.TelegramGroups[1] != "-100456" {
		t.Fatalf("unexpected telegram groups: %v", cfg.TelegramGroups)
	}
	if cfg.GeneratorTimeout != 5*time.Second {
		t.Fatalf("unexpected generator timeout: %v", cfg.GeneratorTimeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown backend", "TOKENCAST_DB_BACKEND", "oracle"},
		{"zero generator timeout", "TOKENCAST_GENERATOR_TIMEOUT_SECONDS", "0"},
		{"sample rate above one", "TOKENCAST_TRACING_SAMPLE_RATE", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("SWARM_API_KEY", "legacy")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
	if cfg.SwarmAPIKey != "legacy" {
		t.Fatalf("expected legacy key to still apply, got %q", cfg.SwarmAPIKey)
	}
}

func TestLoadProductionRequiresSigningKey(t *testing.T) {
	t.Setenv("TOKENCAST_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without a signing key")
	}

	t.Setenv("TOKENCAST_JWT_SIGNING_KEY", "supersecret")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load to succeed: %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "TOKENCAST_ENVFILE_TEST_NEW=from-file\nTOKENCAST_ENVFILE_TEST_SET=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("TOKENCAST_ENVFILE_TEST_SET", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("TOKENCAST_ENVFILE_TEST_NEW") })

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("TOKENCAST_ENVFILE_TEST_NEW"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("TOKENCAST_ENVFILE_TEST_SET"); got != "from-env" {
		t.Fatalf("existing environment must win, got %q", got)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored, got %v", err)
	}
	if err := LoadEnvFile(""); err != nil {
		t.Fatalf("empty path should be ignored, got %v", err)
	}
}
