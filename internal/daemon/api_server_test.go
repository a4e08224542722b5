package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/metrics"
	"scribe/internal/testsupport"
	"scribe/internal/workflow"
)

func newTestDaemon(t *testing.T, token string) (*Daemon, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = token
	store := testsupport.MustOpenStore(t, cfg)
	cat := testsupport.MustOpenCatalog(t, cfg)
	mgr := workflow.NewManager(cfg, store, cat, nil)
	d, err := New(cfg, store, cat, nil, mgr, metrics.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, cfg
}

func serve(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAPIServerQueueAndRecording(t *testing.T) {
	d, cfg := newTestDaemon(t, "")
	rec := testsupport.NewRecording(t, d.catalog, cfg, "Standup", 1)
	if _, _, err := d.Transcribe(context.Background(), rec.ID); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	w := serve(t, d.api.handler, "/api/queue", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var queueResp api.QueueListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &queueResp); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(queueResp.Items) != 1 || queueResp.Items[0].RecordingID != rec.ID || queueResp.Items[0].Position != 1 {
		t.Fatalf("unexpected queue %+v", queueResp.Items)
	}

	w = serve(t, d.api.handler, "/api/recordings/"+rec.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var recResp api.RecordingResponse
	if err := json.Unmarshal(w.Body.Bytes(), &recResp); err != nil {
		t.Fatalf("decode recording: %v", err)
	}
	if recResp.Recording.Title != "Standup" || recResp.Recording.Status.Kind != "notStarted" {
		t.Fatalf("unexpected recording %+v", recResp.Recording)
	}

	if w = serve(t, d.api.handler, "/api/recordings/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = serve(t, d.api.handler, "/api/recordings", "")
	var listResp api.RecordingListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode recordings: %v", err)
	}
	if len(listResp.Recordings) != 1 {
		t.Fatalf("expected 1 recording, got %d", len(listResp.Recordings))
	}
}

func TestAPIServerStatus(t *testing.T) {
	d, _ := newTestDaemon(t, "")
	w := serve(t, d.api.handler, "/api/status", "")
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Running || status.PID == 0 || status.QueueDBPath == "" || status.LockFilePath == "" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestAPIServerRequiresToken(t *testing.T) {
	d, _ := newTestDaemon(t, "s3cret")
	if w := serve(t, d.api.handler, "/api/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(t, d.api.handler, "/api/status", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := serve(t, d.api.handler, "/api/status", "s3cret"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}

func TestAPIServerServesMetrics(t *testing.T) {
	d, _ := newTestDaemon(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.api.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.api.stop()

	resp, err := http.Get("http://" + d.api.addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "scribe_queue_depth") {
		t.Fatalf("unexpected metrics response %d: %s", resp.StatusCode, body)
	}
}
