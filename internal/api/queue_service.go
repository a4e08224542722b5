package api

import (
	"context"

	"scribe/internal/transcription"
)

// QueueReader abstracts the reads needed for API queries.
type QueueReader interface {
	QueueSnapshot(ctx context.Context) ([]transcription.Task, error)
	CurrentTaskID() (string, bool)
}

// RecordingReader abstracts catalog reads.
type RecordingReader interface {
	Recording(ctx context.Context, id string) (*transcription.Recording, error)
	List(ctx context.Context) ([]transcription.Recording, error)
}

// QueueService exposes read-only queue and catalog operations returning DTOs.
type QueueService struct {
	queue   QueueReader
	catalog RecordingReader
}

// NewQueueService constructs a QueueService around the provided readers.
func NewQueueService(queue QueueReader, catalog RecordingReader) *QueueService {
	if queue == nil {
		return nil
	}
	return &QueueService{queue: queue, catalog: catalog}
}

// List returns the ordered queue.
func (s *QueueService) List(ctx context.Context) ([]Task, error) {
	if s == nil || s.queue == nil {
		return nil, nil
	}
	tasks, err := s.queue.QueueSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	active, _ := s.queue.CurrentTaskID()
	return FromTasks(tasks, active), nil
}

// Recording fetches a single recording with segments. It returns nil when the
// recording is unknown.
func (s *QueueService) Recording(ctx context.Context, id string) (*Recording, error) {
	if s == nil || s.catalog == nil {
		return nil, nil
	}
	rec, err := s.catalog.Recording(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	dto := FromRecording(rec, true)
	return &dto, nil
}

// Recordings lists the catalog without segments.
func (s *QueueService) Recordings(ctx context.Context) ([]Recording, error) {
	if s == nil || s.catalog == nil {
		return nil, nil
	}
	recs, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Recording, 0, len(recs))
	for i := range recs {
		out = append(out, FromRecording(&recs[i], false))
	}
	return out, nil
}
