package canvaskit

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildStateBackendFromDSN(t *testing.T) {
	backend, err := BuildStateBackendFromDSN("memory://")
	if err != nil {
		t.Fatalf("memory dsn failed: %v", err)
	}
	if _, ok := backend.(*InMemoryStateBackend); !ok {
		t.Fatalf("expected in-memory backend, got %T", backend)
	}

	path := filepath.Join(t.TempDir(), "state.json")
	backend, err = BuildStateBackendFromDSN(path)
	if err != nil {
		t.Fatalf("plain path dsn failed: %v", err)
	}
	fileBackend, ok := backend.(*JSONFileStateBackend)
	if !ok {
		t.Fatalf("expected json file backend, got %T", backend)
	}
	if fileBackend.Path != path {
		t.Fatalf("expected path %q, got %q", path, fileBackend.Path)
	}

	backend, err = BuildStateBackendFromDSN("file://" + filepath.ToSlash(filepath.Join("data", "state.json")))
	if err != nil {
		t.Fatalf("file dsn failed: %v", err)
	}
	fileBackend = backend.(*JSONFileStateBackend)
	if fileBackend.Path != filepath.Join("data", "state.json") {
		t.Fatalf("unexpected relative file path: %q", fileBackend.Path)
	}

	if _, err := BuildStateBackendFromDSN("redis://localhost"); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported scheme error, got %v", err)
	}

	backend, err = BuildStateBackendFromDSN("")
	if err != nil || backend != nil {
		t.Fatalf("expected nil backend for empty dsn, got %v %v", backend, err)
	}
}

func TestRegisteredFactoryShadowsBuiltin(t *testing.T) {
	custom := NewInMemoryStateBackend()
	RegisterStateBackendFactory("testscheme", func(dsn string) (StateBackend, error) {
		return custom, nil
	})
	backend, err := BuildStateBackendFromDSN("testscheme://anything")
	if err != nil {
		t.Fatalf("registered factory dsn failed: %v", err)
	}
	if backend != StateBackend(custom) {
		t.Fatalf("expected registered factory to produce the custom backend")
	}
}

func TestJSONFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	backend := NewJSONFileStateBackend(path)
	state := &persistedState{NextID: 42, Canvases: []Canvas{{ID: 1, Name: "persisted"}}}
	if err := backend.Save(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := backend.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded == nil || loaded.NextID != 42 || len(loaded.Canvases) != 1 {
		t.Fatalf("unexpected loaded state: %+v", loaded)
	}

	missing := NewJSONFileStateBackend(filepath.Join(t.TempDir(), "absent.json"))
	loaded, err = missing.Load()
	if err != nil || loaded != nil {
		t.Fatalf("expected nil state for missing file, got %+v %v", loaded, err)
	}
}

func TestSQLitePathFromDSN(t *testing.T) {
	path, err := sqlitePathFromDSN("sqlite://data/canvas.db")
	if err != nil {
		t.Fatalf("sqlite dsn failed: %v", err)
	}
	if path != filepath.Join("data", "canvas.db") {
		t.Fatalf("unexpected sqlite path: %q", path)
	}
	if _, err := sqlitePathFromDSN(""); err == nil {
		t.Fatalf("expected error for empty sqlite dsn")
	}
}
