package config

import (
	"os"
	"path/filepath"
	"testing"

	"orate-studio/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.ServerURL != "http://127.0.0.1:8000" {
		t.Fatalf("server url = %q", cfg.ServerURL)
	}
	if cfg.PollIntervalMS != 1200 || cfg.PollErrorIntervalMS != 1800 {
		t.Fatalf("poll intervals = %d/%d, want 1200/1800", cfg.PollIntervalMS, cfg.PollErrorIntervalMS)
	}
	if cfg.NotesQuietPeriodMS != 600 {
		t.Fatalf("quiet period = %d, want 600", cfg.NotesQuietPeriodMS)
	}
	if cfg.DownloadDir == "" {
		t.Fatal("expected non-empty download dir")
	}
	if !cfg.NotifyOnCompletion {
		t.Fatal("completion notifications should default on")
	}
}

// TestNormalizeFillsZeroIntervals checks hand-edited files never produce
// zero timers.
func TestNormalizeFillsZeroIntervals(t *testing.T) {
	got := Normalize(domain.Settings{ServerURL: "http://orate.local:9000"})
	if got.ServerURL != "http://orate.local:9000" {
		t.Fatalf("server url = %q, explicit value overwritten", got.ServerURL)
	}
	if got.PollIntervalMS != 1200 || got.HistoryIdleMS != 15000 {
		t.Fatalf("intervals not filled: %+v", got)
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.ServerURL != "http://127.0.0.1:8000" {
		t.Fatalf("server url = %q, want default", got.ServerURL)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := Normalize(domain.Settings{
		ServerURL:      "http://orate.local:9000",
		PollIntervalMS: 700,
		DownloadDir:    "/out",
	})

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}
