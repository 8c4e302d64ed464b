package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIntEnvParsesValue(t *testing.T) {
	t.Setenv("CANVASKIT_TEST_INT", "42")
	if got := intEnv("CANVASKIT_TEST_INT", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestIntEnvFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("CANVASKIT_TEST_INT_BAD", "not-a-number")
	if got := intEnv("CANVASKIT_TEST_INT_BAD", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestDurationEnvParsesValue(t *testing.T) {
	t.Setenv("CANVASKIT_TEST_DURATION", "150ms")
	if got := durationEnv("CANVASKIT_TEST_DURATION", time.Second); got != 150*time.Millisecond {
		t.Fatalf("expected 150ms, got %s", got)
	}
}

func TestBoolEnv(t *testing.T) {
	t.Setenv("CANVASKIT_TEST_BOOL", "false")
	if boolEnv("CANVASKIT_TEST_BOOL", true) {
		t.Fatalf("expected false")
	}
	t.Setenv("CANVASKIT_TEST_BOOL", "maybe")
	if !boolEnv("CANVASKIT_TEST_BOOL", true) {
		t.Fatalf("expected fallback true on invalid value")
	}
}

func TestEnvHelpersUseFallbackWhenUnset(t *testing.T) {
	_ = os.Unsetenv("CANVASKIT_TEST_INT_UNSET")
	_ = os.Unsetenv("CANVASKIT_TEST_DURATION_UNSET")

	if got := intEnv("CANVASKIT_TEST_INT_UNSET", 9); got != 9 {
		t.Fatalf("expected fallback 9, got %d", got)
	}
	if got := durationEnv("CANVASKIT_TEST_DURATION_UNSET", 3*time.Second); got != 3*time.Second {
		t.Fatalf("expected fallback 3s, got %s", got)
	}
	if got := int64Env("CANVASKIT_TEST_INT64_UNSET", 12); got != 12 {
		t.Fatalf("expected fallback 12, got %d", got)
	}
}

func TestStorageProfileDefaults(t *testing.T) {
	t.Setenv("CANVASKIT_BACKEND_PROFILE", "memory")
	dsn, err := storageProfileDefaultFromEnv()
	if err != nil || dsn != "memory://" {
		t.Fatalf("expected memory DSN, got %q (%v)", dsn, err)
	}

	t.Setenv("CANVASKIT_BACKEND_PROFILE", "durable-local")
	t.Setenv("CANVASKIT_DATA_DIR", "/var/lib/canvaskit")
	dsn, err = storageProfileDefaultFromEnv()
	if err != nil || dsn != "file:///var/lib/canvaskit/state.json" {
		t.Fatalf("expected file DSN, got %q (%v)", dsn, err)
	}

	t.Setenv("CANVASKIT_BACKEND_PROFILE", "production")
	t.Setenv("CANVASKIT_POSTGRES_DSN", "")
	t.Setenv("CANVASKIT_PRODUCTION_DSN", "")
	if _, err := storageProfileDefaultFromEnv(); err == nil {
		t.Fatalf("expected error when production profile has no DSN")
	}
	t.Setenv("CANVASKIT_POSTGRES_DSN", "postgres://localhost/canvaskit")
	dsn, err = storageProfileDefaultFromEnv()
	if err != nil || dsn != "postgres://localhost/canvaskit" {
		t.Fatalf("expected postgres DSN, got %q (%v)", dsn, err)
	}

	t.Setenv("CANVASKIT_BACKEND_PROFILE", "floppy")
	if _, err := storageProfileDefaultFromEnv(); err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}

func TestLoadRulesFromEnv(t *testing.T) {
	t.Setenv("CANVASKIT_RULES_FILE", "")
	rules, path, err := loadRulesFromEnv()
	if err != nil || rules != nil || path != "" {
		t.Fatalf("expected no rules without env var, got %v %q %v", rules, path, err)
	}

	file := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(file, []byte("rules:\n  objective: [keyresult]\n"), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}
	t.Setenv("CANVASKIT_RULES_FILE", file)
	rules, path, err = loadRulesFromEnv()
	if err != nil || len(rules) != 1 || path != file {
		t.Fatalf("expected loaded rules, got %v %q %v", rules, path, err)
	}
}
