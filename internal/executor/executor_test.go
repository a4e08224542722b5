package executor_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"scribe/internal/engine"
	"scribe/internal/executor"
	"scribe/internal/models"
	"scribe/internal/remote"
	"scribe/internal/services"
	"scribe/internal/transcription"
)

type recorder struct {
	mu          sync.Mutex
	tr          *transcription.Transcription
	statuses    []transcription.Status
	checkpoints []executor.Checkpoint
}

func newRecorder() *recorder {
	return &recorder{tr: transcription.New("tr-1", "a.wav")}
}

func (r *recorder) envelope(task transcription.Task) *executor.Envelope {
	return &executor.Envelope{
		Task:      task,
		Recording: transcription.Recording{ID: task.RecordingID, FileName: "a.wav", AudioPath: "/audio/a.wav", Duration: 10 * time.Second},
		Update: func(ctx context.Context, mutate func(*transcription.Transcription) error) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			prev := r.tr.Status
			if err := mutate(r.tr); err != nil {
				return err
			}
			if r.tr.Status != prev {
				r.statuses = append(r.statuses, r.tr.Status)
			}
			return nil
		},
		Checkpoint: func(ctx context.Context, cp executor.Checkpoint) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.checkpoints = append(r.checkpoints, cp)
			return nil
		},
	}
}

func (r *recorder) finalize(task transcription.Task, err error) executor.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome := executor.Finalize(r.tr, task, err, time.Now())
	r.statuses = append(r.statuses, r.tr.Status)
	return outcome
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.statuses))
	for i, s := range r.statuses {
		switch s.Kind {
		case transcription.KindProgress, transcription.KindUploading:
			out[i] = fmt.Sprintf("%s(%.1f)", s.Kind, s.Progress)
		default:
			out[i] = string(s.Kind)
		}
	}
	return out
}

func assertKinds(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, got)
		}
	}
}

type fakeLoader struct {
	footprint uint64
	err       error
}

func (f fakeLoader) Load(ctx context.Context, name string) <-chan models.LoadEvent {
	ch := make(chan models.LoadEvent, 2)
	if f.err != nil {
		ch <- models.LoadEvent{Err: f.err}
	} else {
		ch <- models.LoadEvent{Progress: 0.5}
		ch <- models.LoadEvent{Progress: 1, Model: &models.Model{Name: name, FootprintBytes: f.footprint}}
	}
	close(ch)
	return ch
}

type scriptedEngine struct {
	events   []engine.Event
	block    bool
	emitted  chan struct{}
	cancel   chan struct{}
	once     sync.Once
	requests []engine.Request
}

func newScriptedEngine(block bool, events ...engine.Event) *scriptedEngine {
	return &scriptedEngine{events: events, block: block, emitted: make(chan struct{}), cancel: make(chan struct{})}
}

func (e *scriptedEngine) Transcribe(ctx context.Context, req engine.Request) (<-chan engine.Event, error) {
	e.requests = append(e.requests, req)
	ch := make(chan engine.Event)
	go func() {
		defer close(ch)
		for _, ev := range e.events {
			ch <- ev
		}
		close(e.emitted)
		if e.block {
			<-e.cancel
			ch <- engine.Event{Kind: engine.EventCanceled}
		}
	}()
	return ch, nil
}

func (e *scriptedEngine) Cancel() { e.once.Do(func() { close(e.cancel) }) }

func (e *scriptedEngine) Close() error { return nil }

func newLocal(loader models.Loader, eng engine.Engine, available uint64) *executor.Local {
	return executor.NewLocal(executor.LocalOptions{
		Loader: loader,
		Engines: func(*models.Model, transcription.Parameters) (engine.Engine, error) {
			return eng, nil
		},
		Memory:      func() (uint64, error) { return available, nil },
		HeadroomMiB: 1,
	})
}

func localTask() transcription.Task {
	return transcription.Task{ID: "t-1", RecordingID: "r1", Strategy: transcription.StrategyLocal, Model: "whisper-base",
		Parameters: transcription.Parameters{Language: "en"}}
}

func TestLocalTranscribesToDone(t *testing.T) {
	eng := newScriptedEngine(false,
		engine.Event{Kind: engine.EventProgress, Progress: 0.5, OffsetMS: 5000},
		engine.Event{Kind: engine.EventSegment, Segment: transcription.Segment{StartMS: 5000, EndMS: 10000, Text: "second"}},
		engine.Event{Kind: engine.EventSegment, Segment: transcription.Segment{StartMS: 0, EndMS: 5000, Text: "first"}},
		engine.Event{Kind: engine.EventFinished, Progress: 1, OffsetMS: 10000},
	)
	local := newLocal(fakeLoader{footprint: 1 << 20}, eng, 1<<30)
	rec := newRecorder()
	task := localTask()

	err := local.Process(context.Background(), rec.envelope(task))
	if outcome := rec.finalize(task, err); outcome != executor.OutcomeDone {
		t.Fatalf("expected done, got %s (%v)", outcome, err)
	}
	assertKinds(t, rec.kinds(), "loading", "progress(0.0)", "progress(0.5)", "done")
	if len(rec.tr.Segments) != 2 || rec.tr.Segments[0].Text != "first" {
		t.Fatalf("segments not ordered by start: %+v", rec.tr.Segments)
	}
	if len(rec.checkpoints) != 1 || rec.checkpoints[0].OffsetMS != 5000 {
		t.Fatalf("unexpected checkpoints %+v", rec.checkpoints)
	}
	if eng.requests[0].AudioPath != "/audio/a.wav" {
		t.Fatalf("unexpected request %+v", eng.requests[0])
	}
}

func TestLocalResumesFromOffset(t *testing.T) {
	eng := newScriptedEngine(false, engine.Event{Kind: engine.EventFinished, Progress: 1, OffsetMS: 10000})
	local := newLocal(fakeLoader{}, eng, 1<<30)
	rec := newRecorder()
	rec.tr.Segments = []transcription.Segment{{StartMS: 0, EndMS: 4000, Text: "kept"}, {StartMS: 4000, EndMS: 8000, Text: "dropped"}}
	task := localTask()
	task.OffsetMS = 4000

	err := local.Process(context.Background(), rec.envelope(task))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if eng.requests[0].OffsetMS != 4000 {
		t.Fatalf("expected engine to start at checkpoint, got %d", eng.requests[0].OffsetMS)
	}
	if len(rec.tr.Segments) != 1 || rec.tr.Segments[0].Text != "kept" {
		t.Fatalf("expected only segments before checkpoint, got %+v", rec.tr.Segments)
	}
	if rec.statuses[1].Progress != 0.4 {
		t.Fatalf("expected start progress 0.4, got %v", rec.statuses[1].Progress)
	}
}

func TestLocalInsufficientMemory(t *testing.T) {
	eng := newScriptedEngine(false)
	local := newLocal(fakeLoader{footprint: 1 << 30}, eng, 100<<20)
	rec := newRecorder()
	task := localTask()

	err := local.Process(context.Background(), rec.envelope(task))
	if !errors.Is(err, services.ErrResource) {
		t.Fatalf("expected resource error, got %v", err)
	}
	if outcome := rec.finalize(task, err); outcome != executor.OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
	msg := rec.tr.Status.Message
	if msg != "insufficient memory for model whisper-base: 100 MiB available, 1025 MiB required" {
		t.Fatalf("unexpected message %q", msg)
	}
	if len(eng.requests) != 0 {
		t.Fatal("engine should not run without memory")
	}
}

func TestLocalModelLoadFailure(t *testing.T) {
	loadErr := services.Wrap(services.ErrResource, "models", "resolve", "model \"x\" not found", nil)
	local := newLocal(fakeLoader{err: loadErr}, newScriptedEngine(false), 1<<30)
	rec := newRecorder()
	task := localTask()
	err := local.Process(context.Background(), rec.envelope(task))
	rec.finalize(task, err)
	if rec.tr.Status.Kind != transcription.KindError {
		t.Fatalf("expected error status, got %s", rec.tr.Status.Kind)
	}
}

func TestLocalCancel(t *testing.T) {
	eng := newScriptedEngine(true, engine.Event{Kind: engine.EventProgress, Progress: 0.2, OffsetMS: 2000})
	local := newLocal(fakeLoader{}, eng, 1<<30)
	rec := newRecorder()
	task := localTask()

	errCh := make(chan error, 1)
	go func() { errCh <- local.Process(context.Background(), rec.envelope(task)) }()
	<-eng.emitted
	local.Cancel(task.ID, executor.Canceled("user request"))

	err := <-errCh
	if outcome := rec.finalize(task, err); outcome != executor.OutcomeCanceled {
		t.Fatalf("expected canceled, got %s (%v)", outcome, err)
	}
	if rec.tr.Status.Kind != transcription.KindCanceled {
		t.Fatalf("expected canceled status, got %s", rec.tr.Status.Kind)
	}
}

func TestLocalInterruptPauses(t *testing.T) {
	eng := newScriptedEngine(true, engine.Event{Kind: engine.EventProgress, Progress: 0.3, OffsetMS: 3000})
	local := newLocal(fakeLoader{}, eng, 1<<30)
	rec := newRecorder()
	task := localTask()

	errCh := make(chan error, 1)
	go func() { errCh <- local.Process(context.Background(), rec.envelope(task)) }()
	<-eng.emitted
	local.Cancel(task.ID, executor.Interrupted("background time expired"))

	err := <-errCh
	if outcome := rec.finalize(task, err); outcome != executor.OutcomePaused {
		t.Fatalf("expected paused, got %s (%v)", outcome, err)
	}
	st := rec.tr.Status
	if st.Kind != transcription.KindPaused || st.Progress != 0.3 || st.OffsetMS != 3000 || st.TaskID != task.ID {
		t.Fatalf("unexpected paused status %+v", st)
	}
	if st.Message != "background time expired" {
		t.Fatalf("unexpected pause reason %q", st.Message)
	}
}

type fakeAPI struct {
	mu         sync.Mutex
	uploads    int
	progress   []float64
	uploadErr  error
	results    []remote.Result
	polls      int
	pollJobIDs []string
}

func (f *fakeAPI) UploadFile(ctx context.Context, path string, params transcription.Parameters, model string) <-chan remote.UploadEvent {
	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()
	ch := make(chan remote.UploadEvent, len(f.progress)+1)
	if f.uploadErr != nil {
		ch <- remote.UploadEvent{Err: f.uploadErr}
		close(ch)
		return ch
	}
	for _, p := range f.progress {
		ch <- remote.UploadEvent{Progress: p}
	}
	ch <- remote.UploadEvent{Progress: 1, JobID: "job-1"}
	close(ch)
	return ch
}

func (f *fakeAPI) GetResult(ctx context.Context, jobID string) (*remote.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollJobIDs = append(f.pollJobIDs, jobID)
	idx := min(f.polls, len(f.results)-1)
	f.polls++
	result := f.results[idx]
	return &result, nil
}

func remoteTask() transcription.Task {
	return transcription.Task{ID: "t-2", RecordingID: "r2", Strategy: transcription.StrategyRemote, Model: "whisper-large"}
}

func TestRemoteUploadsAndPolls(t *testing.T) {
	api := &fakeAPI{
		progress: []float64{0},
		results: []remote.Result{
			{IsDone: false},
			{IsDone: true, Segments: []transcription.Segment{{StartMS: 2000, EndMS: 3000, Text: "b"}, {StartMS: 0, EndMS: 2000, Text: "a"}}},
		},
	}
	exec := executor.NewRemote(api, time.Millisecond, nil)
	rec := newRecorder()
	task := remoteTask()

	err := exec.Process(context.Background(), rec.envelope(task))
	if outcome := rec.finalize(task, err); outcome != executor.OutcomeDone {
		t.Fatalf("expected done, got %s (%v)", outcome, err)
	}
	assertKinds(t, rec.kinds(), "uploading(0.0)", "uploading(1.0)", "progress(0.0)", "done")
	if api.polls != 2 {
		t.Fatalf("expected 2 polls, got %d", api.polls)
	}
	if len(rec.checkpoints) != 1 || rec.checkpoints[0].RemoteJobID != "job-1" {
		t.Fatalf("expected job id checkpoint, got %+v", rec.checkpoints)
	}
	if rec.tr.Segments[0].Text != "a" {
		t.Fatalf("segments not replaced in order: %+v", rec.tr.Segments)
	}
}

func TestRemoteResumesPollingWithJobID(t *testing.T) {
	api := &fakeAPI{results: []remote.Result{{IsDone: true}}}
	exec := executor.NewRemote(api, time.Millisecond, nil)
	rec := newRecorder()
	task := remoteTask()
	task.RemoteJobID = "job-7"

	if err := exec.Process(context.Background(), rec.envelope(task)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if api.uploads != 0 {
		t.Fatalf("expected no upload, got %d", api.uploads)
	}
	if api.pollJobIDs[0] != "job-7" {
		t.Fatalf("expected poll of job-7, got %v", api.pollJobIDs)
	}
	assertKinds(t, rec.kinds(), "loading", "progress(0.0)")
}

func TestRemoteFailures(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeAPI
		want string
	}{
		{
			name: "upload rejected",
			api:  &fakeAPI{uploadErr: services.Wrap(services.ErrTransport, "remote", "upload chunk", "unexpected status 500", nil)},
			want: "unexpected status 500",
		},
		{
			name: "server error payload",
			api:  &fakeAPI{results: []remote.Result{{ErrorMessage: "audio too short"}}},
			want: "remote transcription failed: audio too short",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := executor.NewRemote(tt.api, time.Millisecond, nil)
			rec := newRecorder()
			task := remoteTask()
			err := exec.Process(context.Background(), rec.envelope(task))
			if !errors.Is(err, services.ErrTransport) {
				t.Fatalf("expected transport error, got %v", err)
			}
			rec.finalize(task, err)
			if rec.tr.Status.Kind != transcription.KindError || rec.tr.Status.Message != tt.want {
				t.Fatalf("unexpected status %+v", rec.tr.Status)
			}
		})
	}
}

func TestRemoteCancelDuringPolling(t *testing.T) {
	api := &fakeAPI{results: []remote.Result{{IsDone: false}}}
	exec := executor.NewRemote(api, 5*time.Millisecond, nil)
	rec := newRecorder()
	task := remoteTask()
	task.RemoteJobID = "job-3"

	errCh := make(chan error, 1)
	go func() { errCh <- exec.Process(context.Background(), rec.envelope(task)) }()
	deadline := time.After(2 * time.Second)
	for {
		api.mu.Lock()
		polls := api.polls
		api.mu.Unlock()
		if polls > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("never polled")
		case <-time.After(time.Millisecond):
		}
	}
	exec.Cancel(task.ID, executor.Canceled("user request"))
	err := <-errCh
	if executor.OutcomeOf(err) != executor.OutcomeCanceled {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want executor.Outcome
	}{
		{nil, executor.OutcomeDone},
		{executor.Canceled("x"), executor.OutcomeCanceled},
		{context.Canceled, executor.OutcomeCanceled},
		{executor.Interrupted("x"), executor.OutcomePaused},
		{services.Wrap(services.ErrResource, "c", "o", "m", nil), executor.OutcomeFailed},
		{errors.New("plain"), executor.OutcomeFailed},
	}
	for _, tt := range tests {
		if got := executor.OutcomeOf(tt.err); got != tt.want {
			t.Fatalf("OutcomeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestFinalizeKeepsExistingTerminalStatus(t *testing.T) {
	tr := transcription.New("id", "f.wav")
	tr.Status = transcription.Canceled()
	if got := executor.Finalize(tr, localTask(), nil, time.Now()); got != executor.OutcomeCanceled {
		t.Fatalf("expected canceled to win, got %s", got)
	}
	if tr.Status.Kind != transcription.KindCanceled {
		t.Fatalf("status overwritten: %+v", tr.Status)
	}
}
