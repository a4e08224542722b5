package workflow_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"scribe/internal/engine"
	"scribe/internal/executor"
	"scribe/internal/models"
	"scribe/internal/remote"
	"scribe/internal/testsupport"
	"scribe/internal/transcription"
)

type windowDecoder struct {
	mu    sync.Mutex
	calls int
}

func (d *windowDecoder) Decode(samples []float32, sampleRate int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return fmt.Sprintf("window %d", d.calls), nil
}

func (d *windowDecoder) Close() {}

func writeModel(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"encoder.onnx", "decoder.onnx", "tokens.txt"} {
		testsupport.WriteFile(t, filepath.Join(dir, name), 64)
	}
}

func containsInOrder(got []string, want ...string) bool {
	i := 0
	for _, g := range got {
		if i < len(want) && g == want[i] {
			i++
		}
	}
	return i == len(want)
}

func TestLocalTranscriptionEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeModel(t, filepath.Join(cfg.Local.ModelsDir, cfg.Transcription.Model))

	decoder := &windowDecoder{}
	local := executor.NewLocal(executor.LocalOptions{
		Loader: models.NewDirLoader(cfg.Local.ModelsDir),
		Engines: func(*models.Model, transcription.Parameters) (engine.Engine, error) {
			reader := func(string) ([]float32, int, error) { return make([]float32, 2000), 100, nil }
			return engine.NewWindowedEngine(decoder, reader, 10), nil
		},
		Memory: func() (uint64, error) { return 1 << 40, nil },
	})
	t.Cleanup(func() { _ = local.Close() })

	h := newHarness(t, []executor.Executor{local})
	rec := h.recording(t, "interview")
	h.enqueue(t, rec)
	if err := h.mgr.ProcessTasks(context.Background()); err != nil {
		t.Fatalf("ProcessTasks: %v", err)
	}

	history := h.catalog.kinds(rec.ID)
	if !containsInOrder(history, "notStarted", "loading", "progress(0.0)", "progress(0.5)", "done") {
		t.Fatalf("unexpected history %v", history)
	}
	tr := h.transcription(t, rec)
	if len(tr.Segments) != 2 || tr.Segments[0].Text != "window 1" || tr.Segments[1].StartMS != 10000 {
		t.Fatalf("unexpected segments %+v", tr.Segments)
	}
	if !slices.IsSortedFunc(tr.Segments, func(a, b transcription.Segment) int { return int(a.StartMS - b.StartMS) }) {
		t.Fatal("segments out of order")
	}
	if tasks, _ := h.mgr.QueueSnapshot(context.Background()); len(tasks) != 0 {
		t.Fatalf("expected empty queue, got %d", len(tasks))
	}
}

func TestRemoteTranscriptionEndToEnd(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/uploads", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"upload_id":"u1"}`)
	})
	mux.HandleFunc("PUT /v1/uploads/u1/chunks/{n}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/uploads/u1/complete", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"job_id":"j1"}`)
	})
	mux.HandleFunc("GET /v1/jobs/j1", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		polls++
		n := polls
		mu.Unlock()
		if n < 3 {
			_, _ = io.WriteString(w, `{"is_done":false}`)
			return
		}
		_, _ = io.WriteString(w, `{"is_done":true,"segments":[{"start_ms":0,"end_ms":1200,"text":"hello"},{"start_ms":1200,"end_ms":2000,"text":"world"}]}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := remote.New(remote.Options{BaseURL: server.URL, APIKey: "k", ChunkSize: 4096})
	t.Cleanup(func() { _ = client.Close() })
	exec := executor.NewRemote(client, time.Millisecond, nil)

	h := newHarness(t, []executor.Executor{exec}, testsupport.WithRemote(server.URL))
	rec := h.recording(t, "lecture")
	task := h.enqueue(t, rec)
	if task.Strategy != transcription.StrategyRemote {
		t.Fatalf("expected remote strategy, got %s", task.Strategy)
	}
	if err := h.mgr.ProcessTasks(context.Background()); err != nil {
		t.Fatalf("ProcessTasks: %v", err)
	}

	history := h.catalog.kinds(rec.ID)
	if !containsInOrder(history, "notStarted", "uploading(0.0)", "uploading(1.0)", "progress(0.0)", "done") {
		t.Fatalf("unexpected history %v", history)
	}
	tr := h.transcription(t, rec)
	if tr.Text() != "hello world" {
		t.Fatalf("unexpected text %q", tr.Text())
	}
}
