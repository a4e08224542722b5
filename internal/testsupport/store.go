package testsupport

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"scribe/internal/catalog"
	"scribe/internal/config"
	"scribe/internal/queue"
	"scribe/internal/transcription"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenCatalog opens a catalog.Store for tests and registers cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecording writes a short tone WAV and registers it in the catalog.
func NewRecording(t testing.TB, store *catalog.Store, cfg *config.Config, title string, seconds float64) *transcription.Recording {
	t.Helper()

	src := filepath.Join(BaseDir(cfg), "incoming", fmt.Sprintf("%s.wav", title))
	WriteWAV(t, src, cfg.Local.SampleRate, seconds)
	rec, err := store.Add(context.Background(), src, title)
	if err != nil {
		t.Fatalf("catalog.Add: %v", err)
	}
	return rec
}
