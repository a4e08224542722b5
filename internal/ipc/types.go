package ipc

import "scribe/internal/api"

// Task mirrors the HTTP API task DTO.
type Task = api.Task

// Recording mirrors the HTTP API recording DTO.
type Recording = api.Recording

// Segment mirrors the HTTP API segment DTO.
type Segment = api.Segment

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and scheduler status.
type StatusResponse struct {
	Running       bool   `json:"running"`
	PID           int    `json:"pid"`
	Processing    bool   `json:"processing"`
	InBackground  bool   `json:"in_background"`
	CurrentTask   *Task  `json:"current_task"`
	LastTask      *Task  `json:"last_task"`
	LastError     string `json:"last_error"`
	Queued        int    `json:"queued"`
	Runnable      int    `json:"runnable"`
	QueueDBPath   string `json:"queue_db_path"`
	CatalogDBPath string `json:"catalog_db_path"`
	LockPath      string `json:"lock_path"`
}

// StopRequest stops the daemon process.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// AddRecordingRequest registers an audio file.
type AddRecordingRequest struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

// AddRecordingResponse returns the new catalog entry.
type AddRecordingResponse struct {
	Recording Recording `json:"recording"`
}

// TranscribeRequest enqueues a task. Empty fields fall back to config.
type TranscribeRequest struct {
	RecordingID string `json:"recording_id"`
	Strategy    string `json:"strategy"`
	Model       string `json:"model"`
	Language    string `json:"language"`
	Translate   *bool  `json:"translate"`
}

// TranscribeResponse reports the queued task.
type TranscribeResponse struct {
	Task  Task `json:"task"`
	Added bool `json:"added"`
}

// CancelRequest cancels the task for a recording.
type CancelRequest struct {
	RecordingID string `json:"recording_id"`
}

// CancelResponse reports whether a task was canceled.
type CancelResponse struct {
	Canceled bool `json:"canceled"`
}

// CancelAllRequest cancels every task.
type CancelAllRequest struct{}

// CancelAllResponse reports the number of tasks canceled.
type CancelAllResponse struct {
	Canceled int `json:"canceled"`
}

// ResumeRequest resumes the paused task for a recording.
type ResumeRequest struct {
	RecordingID string `json:"recording_id"`
}

// ResumeResponse returns the task now at the head of the queue.
type ResumeResponse struct {
	Task Task `json:"task"`
}

// QueueListRequest lists the queue.
type QueueListRequest struct{}

// QueueListResponse contains queue entries in processing order.
type QueueListResponse struct {
	Items []Task `json:"items"`
}

// ShowRecordingRequest fetches one recording with its segments.
type ShowRecordingRequest struct {
	RecordingID string `json:"recording_id"`
}

// ShowRecordingResponse returns the recording.
type ShowRecordingResponse struct {
	Recording Recording `json:"recording"`
}

// RecordingListRequest lists the catalog.
type RecordingListRequest struct{}

// RecordingListResponse returns catalog entries without segments.
type RecordingListResponse struct {
	Recordings []Recording `json:"recordings"`
}

// LifecycleRequest forwards an app lifecycle event: background, foreground,
// or suspend.
type LifecycleRequest struct {
	Event string `json:"event"`
}

// LifecycleResponse describes the effect.
type LifecycleResponse struct {
	Message string `json:"message"`
}

// LogTailRequest asks for daemon log lines.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse contains log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
