package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"scribe/internal/remote"
	"scribe/internal/services"
	"scribe/internal/testsupport"
	"scribe/internal/transcription"
)

type fakeService struct {
	mu       sync.Mutex
	chunks   int
	received int
	ranges   []string
	auth     string
	complete completeBody
	polls    int
	doneOn   int
}

type completeBody struct {
	Model      string                   `json:"model"`
	Parameters transcription.Parameters `json:"parameters"`
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/uploads", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = r.Header.Get("Authorization")
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"upload_id":"up-1"}`)
	})
	mux.HandleFunc("PUT /v1/uploads/up-1/chunks/{n}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.chunks++
		f.received += len(body)
		f.ranges = append(f.ranges, r.Header.Get("Content-Range"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/uploads/up-1/complete", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&f.complete)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"job_id":"job-9"}`)
	})
	mux.HandleFunc("GET /v1/jobs/job-9", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.polls++
		done := f.polls >= f.doneOn
		f.mu.Unlock()
		if !done {
			_, _ = io.WriteString(w, `{"is_done":false}`)
			return
		}
		_, _ = io.WriteString(w, `{"is_done":true,"segments":[{"start_ms":0,"end_ms":1000,"text":"hello"}]}`)
	})
	mux.HandleFunc("GET /v1/jobs/broken", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"is_done":`)
	})
	mux.HandleFunc("GET /v1/jobs/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such job", http.StatusNotFound)
	})
	return mux
}

func newClient(t *testing.T, f *fakeService, chunk int) *remote.Client {
	t.Helper()
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)
	client := remote.New(remote.Options{BaseURL: server.URL + "/", APIKey: "secret", ChunkSize: chunk})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestUploadFileChunksAndReturnsJobID(t *testing.T) {
	f := &fakeService{doneOn: 1}
	client := newClient(t, f, 1000)
	path := filepath.Join(t.TempDir(), "a.wav")
	testsupport.WriteFile(t, path, 2500)

	var progress []float64
	var jobID string
	for ev := range client.UploadFile(context.Background(), path, transcription.Parameters{Language: "de"}, "whisper-small") {
		if ev.Err != nil {
			t.Fatalf("upload: %v", ev.Err)
		}
		progress = append(progress, ev.Progress)
		jobID = ev.JobID
	}
	if jobID != "job-9" {
		t.Fatalf("expected job-9, got %q", jobID)
	}
	if f.chunks != 3 || f.received != 2500 {
		t.Fatalf("expected 3 chunks / 2500 bytes, got %d / %d", f.chunks, f.received)
	}
	if f.ranges[2] != "bytes 2000-2499/2500" {
		t.Fatalf("unexpected content range %q", f.ranges[2])
	}
	if f.auth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", f.auth)
	}
	if f.complete.Model != "whisper-small" || f.complete.Parameters.Language != "de" {
		t.Fatalf("unexpected completion body %+v", f.complete)
	}
	if progress[0] != 0 || progress[len(progress)-1] != 1 {
		t.Fatalf("unexpected progress %v", progress)
	}
}

func TestGetResultPollsUntilDone(t *testing.T) {
	f := &fakeService{doneOn: 2}
	client := newClient(t, f, 1000)

	first, err := client.GetResult(context.Background(), "job-9")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if first.IsDone {
		t.Fatal("expected first poll to be pending")
	}
	second, err := client.GetResult(context.Background(), "job-9")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if !second.IsDone || len(second.Segments) != 1 || second.Segments[0].Text != "hello" {
		t.Fatalf("unexpected result %+v", second)
	}
}

func TestGetResultErrors(t *testing.T) {
	client := newClient(t, &fakeService{}, 1000)
	tests := []struct {
		name   string
		jobID  string
		marker error
		substr string
	}{
		{name: "malformed", jobID: "broken", marker: services.ErrTransport, substr: "malformed"},
		{name: "non-2xx", jobID: "missing", marker: services.ErrTransport, substr: "404"},
		{name: "empty", jobID: " ", marker: services.ErrValidation, substr: "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.GetResult(context.Background(), tt.jobID)
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Fatalf("expected %q in %q", tt.substr, err.Error())
			}
		})
	}
}

func TestUploadFileMissingAudio(t *testing.T) {
	client := newClient(t, &fakeService{}, 1000)
	var last remote.UploadEvent
	for ev := range client.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), transcription.Parameters{}, "") {
		last = ev
	}
	if !errors.Is(last.Err, services.ErrResource) {
		t.Fatalf("expected resource error, got %v", last.Err)
	}
}

func TestUploadFileServerRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	client := remote.New(remote.Options{BaseURL: server.URL})
	path := filepath.Join(t.TempDir(), "a.wav")
	testsupport.WriteFile(t, path, 10)

	var last remote.UploadEvent
	for ev := range client.UploadFile(context.Background(), path, transcription.Parameters{}, "") {
		last = ev
	}
	if !errors.Is(last.Err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", last.Err)
	}
}
