package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Task describes a queued transcription request.
type Task struct {
	ID            string  `json:"id"`
	Position      int     `json:"position"`
	RecordingID   string  `json:"recordingId"`
	Strategy      string  `json:"strategy"`
	Model         string  `json:"model,omitempty"`
	Language      string  `json:"language,omitempty"`
	Translate     bool    `json:"translate"`
	RemoteJobID   string  `json:"remoteJobId,omitempty"`
	OffsetMS      int64   `json:"offsetMs,omitempty"`
	Paused        bool    `json:"paused"`
	PauseProgress float64 `json:"pauseProgress,omitempty"`
	Active        bool    `json:"active"`
	CreatedAt     string  `json:"createdAt,omitempty"`
	UpdatedAt     string  `json:"updatedAt,omitempty"`
}

// Status mirrors a transcription status.
type Status struct {
	Kind        string  `json:"kind"`
	Progress    float64 `json:"progress"`
	OffsetMS    int64   `json:"offsetMs,omitempty"`
	Message     string  `json:"message,omitempty"`
	Description string  `json:"description"`
	At          string  `json:"at,omitempty"`
}

// Segment is a time-stamped span of text.
type Segment struct {
	StartMS int64  `json:"startMs"`
	EndMS   int64  `json:"endMs"`
	Text    string `json:"text"`
}

// Recording describes a catalog entry and its latest transcription.
type Recording struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	FileName  string    `json:"fileName"`
	AudioPath string    `json:"audioPath"`
	Date      string    `json:"date,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
	Model     string    `json:"model,omitempty"`
	Status    Status    `json:"status"`
	Segments  []Segment `json:"segments,omitempty"`
	Text      string    `json:"text,omitempty"`
}

// WorkflowStatus summarizes scheduler state.
type WorkflowStatus struct {
	Running      bool   `json:"running"`
	Processing   bool   `json:"processing"`
	InBackground bool   `json:"inBackground"`
	CurrentTask  *Task  `json:"currentTask,omitempty"`
	LastTask     *Task  `json:"lastTask,omitempty"`
	LastError    string `json:"lastError,omitempty"`
	Queued       int    `json:"queued"`
	Runnable     int    `json:"runnable"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	QueueDBPath   string         `json:"queueDbPath"`
	CatalogDBPath string         `json:"catalogDbPath"`
	LockFilePath  string         `json:"lockFilePath"`
	Workflow      WorkflowStatus `json:"workflow"`
}

// QueueListResponse wraps the ordered queue.
type QueueListResponse struct {
	Items []Task `json:"items"`
}

// RecordingResponse wraps a single recording.
type RecordingResponse struct {
	Recording Recording `json:"recording"`
}

// RecordingListResponse wraps the catalog listing.
type RecordingListResponse struct {
	Recordings []Recording `json:"recordings"`
}
