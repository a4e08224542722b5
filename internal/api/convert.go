package api

import (
	"time"

	"scribe/internal/transcription"
	"scribe/internal/workflow"
)

// FromTask converts a queue task to its API representation. position is
// 1-based; pass 0 when unknown.
func FromTask(task transcription.Task, position int) Task {
	dto := Task{
		ID:            task.ID,
		Position:      position,
		RecordingID:   task.RecordingID,
		Strategy:      string(task.Strategy),
		Model:         task.Model,
		Language:      task.Parameters.Language,
		Translate:     task.Parameters.Translate,
		RemoteJobID:   task.RemoteJobID,
		OffsetMS:      task.OffsetMS,
		Paused:        task.Paused,
		PauseProgress: task.PauseProgress,
		CreatedAt:     formatTime(task.CreatedAt),
		UpdatedAt:     formatTime(task.UpdatedAt),
	}
	return dto
}

// FromTasks converts the ordered queue, flagging the task currently running.
func FromTasks(tasks []transcription.Task, activeID string) []Task {
	out := make([]Task, 0, len(tasks))
	for i, task := range tasks {
		dto := FromTask(task, i+1)
		dto.Active = activeID != "" && task.ID == activeID
		out = append(out, dto)
	}
	return out
}

// FromStatus converts a transcription status.
func FromStatus(status transcription.Status) Status {
	return Status{
		Kind:        string(status.Kind),
		Progress:    status.Progress,
		OffsetMS:    status.OffsetMS,
		Message:     status.Message,
		Description: status.Describe(),
		At:          formatTime(status.At),
	}
}

// FromRecording converts a catalog recording. Segments are included only when
// withSegments is set.
func FromRecording(rec *transcription.Recording, withSegments bool) Recording {
	if rec == nil {
		return Recording{}
	}
	dto := Recording{
		ID:        rec.ID,
		Title:     rec.Title,
		FileName:  rec.FileName,
		AudioPath: rec.AudioPath,
		Date:      formatTime(rec.Date),
		Status:    FromStatus(transcription.NotStarted()),
	}
	if rec.Duration > 0 {
		dto.Duration = rec.Duration.Round(time.Second).String()
	}
	tr := rec.Transcription
	if tr == nil {
		return dto
	}
	dto.Strategy = string(tr.Strategy)
	dto.Model = tr.Model
	dto.Status = FromStatus(tr.Status)
	if withSegments {
		dto.Text = tr.Text()
		dto.Segments = make([]Segment, 0, len(tr.Segments))
		for _, seg := range tr.Segments {
			dto.Segments = append(dto.Segments, Segment{StartMS: seg.StartMS, EndMS: seg.EndMS, Text: seg.Text})
		}
	}
	return dto
}

// FromStatusSummary converts scheduler diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:      summary.Running,
		Processing:   summary.Processing,
		InBackground: summary.InBackground,
		LastError:    summary.LastError,
		Queued:       summary.Queued,
		Runnable:     summary.Runnable,
	}
	if summary.CurrentTask != nil {
		task := FromTask(*summary.CurrentTask, 0)
		task.Active = true
		status.CurrentTask = &task
	}
	if summary.LastTask != nil {
		task := FromTask(*summary.LastTask, 0)
		status.LastTask = &task
	}
	return status
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
