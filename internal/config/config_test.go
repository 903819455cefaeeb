package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.DeleteConfirmWindow != 3*time.Second {
		t.Fatalf("DeleteConfirmWindow = %v, want 3s", cfg.DeleteConfirmWindow)
	}
	if cfg.GenerationMode != "auto" {
		t.Fatalf("GenerationMode = %q, want %q", cfg.GenerationMode, "auto")
	}
	if cfg.StoreURL != "" {
		t.Fatalf("StoreURL = %q, want empty default", cfg.StoreURL)
	}
	if cfg.AppID != "default-app-id" {
		t.Fatalf("AppID = %q, want %q", cfg.AppID, "default-app-id")
	}
}

func TestLoadUsesExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_ID", "  tenant-7 ")
	t.Setenv("STORE_URL", "memory://")
	t.Setenv("GENERATION_MODE", "MOCK")
	t.Setenv("DELETE_CONFIRM_WINDOW", "500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AppID != "tenant-7" {
		t.Fatalf("AppID = %q, want trimmed value", cfg.AppID)
	}
	if cfg.StoreURL != "memory://" {
		t.Fatalf("StoreURL = %q, want memory://", cfg.StoreURL)
	}
	if cfg.GenerationMode != "mock" {
		t.Fatalf("GenerationMode = %q, want mock", cfg.GenerationMode)
	}
	if cfg.DeleteConfirmWindow != 500*time.Millisecond {
		t.Fatalf("DeleteConfirmWindow = %v, want 500ms", cfg.DeleteConfirmWindow)
	}
}

func TestLoadRejectsRedisNotifierWithoutURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("STORE_NOTIFIER", "redis")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error when REDIS_URL is missing")
	}
}

func TestLoadRejectsUnknownGenerationMode(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("GENERATION_MODE", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for invalid GENERATION_MODE")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("DELETE_CONFIRM_WINDOW", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected parse error")
	}
}

// setCoreEnvEmpty unsets every key so defaults apply. caarlos0/env treats an
// empty variable as unset, which keeps envDefault in effect.
func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_ID",
		"STORE_URL",
		"STORE_NOTIFIER",
		"REDIS_URL",
		"AUTH_SIGNING_KEY",
		"AUTH_INITIAL_TOKEN",
		"AUTH_TOKEN_TTL",
		"GENERATION_MODE",
		"GENERATION_API_URL",
		"GENERATION_API_KEY",
		"GENERATION_MODEL",
		"GENERATION_TIMEOUT",
		"DELETE_CONFIRM_WINDOW",
		"LOG_LEVEL",
		"LOG_FORMAT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
