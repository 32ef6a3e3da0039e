package config

import (
	"testing"
	"time"
)

func TestLoadWorkerConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("POLL_INTERVAL", "30000")
	t.Setenv("INSTALL_COMMAND", "")
	t.Setenv("DEPLOY_COMMAND", "npx sst deploy")
	t.Setenv("DATABASE_URL", "")

	cfg := LoadWorkerConfig()

	if cfg.DatabaseURL != "" {
		t.Fatalf("expected no default database url, got %q", cfg.DatabaseURL)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %s", cfg.Addr)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Fatalf("expected 30s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.AWS.Region != DefaultAWSRegion {
		t.Fatalf("expected region %s, got %q", DefaultAWSRegion, cfg.AWS.Region)
	}
	if cfg.Toolchain.DeployCommand != "npx sst deploy" {
		t.Fatalf("unexpected deploy command %q", cfg.Toolchain.DeployCommand)
	}
	if cfg.Toolchain.InstallCommand != "" {
		t.Fatalf("expected install command detection by default, got %q", cfg.Toolchain.InstallCommand)
	}
}

func TestLoadWorkerConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("POLL_INTERVAL", "1500")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("REMOVE_COMMAND", "npx sst remove --yes")

	cfg := LoadWorkerConfig()

	if cfg.Addr != ":9090" {
		t.Fatalf("expected addr :9090, got %s", cfg.Addr)
	}
	if cfg.PollInterval != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.AWS.Region != "eu-west-1" {
		t.Fatalf("expected eu-west-1, got %s", cfg.AWS.Region)
	}
	if cfg.Toolchain.RemoveCommand != "npx sst remove --yes" {
		t.Fatalf("unexpected remove command %q", cfg.Toolchain.RemoveCommand)
	}
}

func TestGetIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("WORKER_TEST_INT", "not-a-number")
	if got := GetInt("WORKER_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}
