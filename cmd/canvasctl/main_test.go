package main

import (
	"testing"
	"time"

	"github.com/prodspace/canvaskit/internal/layout"
)

func TestParseDirection(t *testing.T) {
	cases := map[string]layout.Direction{
		"TB": layout.TopToBottom,
		"bt": layout.BottomToTop,
		"Lr": layout.LeftToRight,
		"RL": layout.RightToLeft,
	}
	for raw, want := range cases {
		got, err := parseDirection(raw)
		if err != nil || got != want {
			t.Fatalf("parseDirection(%q) = %v, %v; want %v", raw, got, err, want)
		}
	}
	if _, err := parseDirection("diagonal"); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("CANVASKIT_TEST_URL", "  http://example:9999  ")
	if got := envOrDefault("CANVASKIT_TEST_URL", "fallback"); got != "http://example:9999" {
		t.Fatalf("expected trimmed env value, got %q", got)
	}
	t.Setenv("CANVASKIT_TEST_URL", "")
	if got := envOrDefault("CANVASKIT_TEST_URL", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestDurationEnv(t *testing.T) {
	t.Setenv("CANVASKIT_TEST_TIMEOUT", "250ms")
	if got := durationEnv("CANVASKIT_TEST_TIMEOUT", time.Second); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", got)
	}
	t.Setenv("CANVASKIT_TEST_TIMEOUT", "eventually")
	if got := durationEnv("CANVASKIT_TEST_TIMEOUT", 2*time.Second); got != 2*time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
}
