package transcription

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Segment is a time-stamped span of recognized text.
type Segment struct {
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

// Transcription is the per-recording record of the latest attempt.
type Transcription struct {
	ID         string     `json:"id"`
	FileName   string     `json:"file_name"`
	Strategy   Strategy   `json:"strategy,omitempty"`
	Model      string     `json:"model,omitempty"`
	Parameters Parameters `json:"parameters"`
	Segments   []Segment  `json:"segments,omitempty"`
	Status     Status     `json:"status"`
	UpdatedAt  time.Time  `json:"updated_at,omitzero"`
}

// New creates an empty transcription for a recording file.
func New(id, fileName string) *Transcription {
	return &Transcription{ID: id, FileName: fileName, Status: NotStarted()}
}

// Apply moves the status along a legal edge.
func (t *Transcription) Apply(next Status) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status.Kind, next.Kind)
	}
	t.Status = next
	return nil
}

// AppendSegment inserts seg keeping segments ordered by start time.
func (t *Transcription) AppendSegment(seg Segment) {
	idx, _ := slices.BinarySearchFunc(t.Segments, seg.StartMS, func(s Segment, start int64) int {
		if s.StartMS <= start {
			return -1
		}
		return 1
	})
	t.Segments = slices.Insert(t.Segments, idx, seg)
}

// ReplaceSegments swaps in a complete result set.
func (t *Transcription) ReplaceSegments(segs []Segment) {
	out := slices.Clone(segs)
	slices.SortStableFunc(out, func(a, b Segment) int {
		switch {
		case a.StartMS < b.StartMS:
			return -1
		case a.StartMS > b.StartMS:
			return 1
		}
		return 0
	})
	t.Segments = out
}

// ResetForAttempt prepares the record for a new run of task. Local attempts
// starting from zero discard earlier segments; a resumed local attempt keeps
// the segments before its checkpoint. Remote attempts keep segments until the
// result replaces them.
func (t *Transcription) ResetForAttempt(task Task) {
	t.Status = NotStarted()
	t.Strategy = task.Strategy
	t.Model = task.Model
	t.Parameters = task.Parameters
	if task.Strategy != StrategyLocal {
		return
	}
	if task.OffsetMS <= 0 {
		t.Segments = nil
		return
	}
	t.Segments = slices.DeleteFunc(t.Segments, func(s Segment) bool {
		return s.StartMS >= task.OffsetMS
	})
}

// Text joins segment text.
func (t *Transcription) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Clone returns a deep copy.
func (t *Transcription) Clone() *Transcription {
	if t == nil {
		return nil
	}
	c := *t
	c.Segments = slices.Clone(t.Segments)
	return &c
}

// Recording is the catalog entry a task refers to.
type Recording struct {
	ID            string         `json:"id"`
	FileName      string         `json:"file_name"`
	AudioPath     string         `json:"audio_path"`
	Title         string         `json:"title"`
	Date          time.Time      `json:"date"`
	Duration      time.Duration  `json:"duration"`
	Transcription *Transcription `json:"transcription,omitempty"`
}
