package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribe/internal/transcription"
)

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTask(ctx context.Context, q rowQuerier, where string, args ...any) (*transcription.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM transcription_tasks WHERE `+where, args...)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return task, err
}

// Enqueue appends task to the tail of the queue unless the recording already
// has a task. It returns the stored task and whether a new row was added.
func (s *Store) Enqueue(ctx context.Context, task transcription.Task) (*transcription.Task, bool, error) {
	if strings.TrimSpace(task.RecordingID) == "" {
		return nil, false, errors.New("enqueue: recording id is required")
	}
	if _, err := transcription.ParseStrategy(string(task.Strategy)); err != nil {
		return nil, false, fmt.Errorf("enqueue: %w", err)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	params, err := encodeParameters(task.Parameters)
	if err != nil {
		return nil, false, err
	}

	var (
		stored *transcription.Task
		added  bool
	)
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		added = false
		existing, err := getTask(ctx, tx, "recording_id = ?", task.RecordingID)
		if err != nil {
			return err
		}
		if existing != nil {
			stored = existing
			return nil
		}
		var tail int64
		if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(position), 0) FROM transcription_tasks").Scan(&tail); err != nil {
			return err
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transcription_tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, task.RecordingID, tail+1, string(task.Strategy), task.Model, params,
			nullableString(task.RemoteJobID), task.OffsetMS, 0, 0.0, formatTime(now), formatTime(now),
		); err != nil {
			return err
		}
		task.Paused = false
		task.PauseProgress = 0
		task.CreatedAt = now
		task.UpdatedAt = now
		stored = &task
		added = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("enqueue task: %w", err)
	}
	return stored, added, nil
}

// Resume places task ahead of every queued task and clears its paused flag.
// An existing row for the recording keeps its checkpoint data; otherwise the
// supplied task is inserted.
func (s *Store) Resume(ctx context.Context, task transcription.Task) (*transcription.Task, error) {
	if strings.TrimSpace(task.RecordingID) == "" {
		return nil, errors.New("resume: recording id is required")
	}
	var stored *transcription.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var head int64
		if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MIN(position), 1) FROM transcription_tasks").Scan(&head); err != nil {
			return err
		}
		now := time.Now().UTC()
		existing, err := getTask(ctx, tx, "recording_id = ?", task.RecordingID)
		if err != nil {
			return err
		}
		if existing != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE transcription_tasks SET position = ?, paused = 0, pause_progress = 0, updated_at = ? WHERE id = ?`,
				head-1, formatTime(now), existing.ID,
			); err != nil {
				return err
			}
			existing.Paused = false
			existing.PauseProgress = 0
			existing.UpdatedAt = now
			stored = existing
			return nil
		}

		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		params, err := encodeParameters(task.Parameters)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transcription_tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, task.RecordingID, head-1, string(task.Strategy), task.Model, params,
			nullableString(task.RemoteJobID), task.OffsetMS, 0, 0.0, formatTime(now), formatTime(now),
		); err != nil {
			return err
		}
		task.Paused = false
		task.PauseProgress = 0
		task.CreatedAt = now
		task.UpdatedAt = now
		stored = &task
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resume task: %w", err)
	}
	return stored, nil
}

// Get fetches a task by identifier. A missing task returns nil without error.
func (s *Store) Get(ctx context.Context, id string) (*transcription.Task, error) {
	task, err := getTask(ensureContext(ctx), s.db, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// FindByRecording returns the task queued for a recording, if any.
func (s *Store) FindByRecording(ctx context.Context, recordingID string) (*transcription.Task, error) {
	task, err := getTask(ensureContext(ctx), s.db, "recording_id = ?", recordingID)
	if err != nil {
		return nil, fmt.Errorf("find task by recording: %w", err)
	}
	return task, nil
}

// PeekHead returns the first runnable (not paused) task without removing it.
func (s *Store) PeekHead(ctx context.Context) (*transcription.Task, error) {
	task, err := getTask(ensureContext(ctx), s.db, "paused = 0 ORDER BY position, created_at LIMIT 1")
	if err != nil {
		return nil, fmt.Errorf("peek head: %w", err)
	}
	return task, nil
}

// RemoveHead deletes and returns the first runnable task.
func (s *Store) RemoveHead(ctx context.Context) (*transcription.Task, error) {
	var head *transcription.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		task, err := getTask(ctx, tx, "paused = 0 ORDER BY position, created_at LIMIT 1")
		if err != nil || task == nil {
			head = nil
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM transcription_tasks WHERE id = ?", task.ID); err != nil {
			return err
		}
		head = task
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove head: %w", err)
	}
	return head, nil
}

// Remove deletes a task by identifier and reports whether a row was deleted.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM transcription_tasks WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("remove task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove task rows affected: %w", err)
	}
	return n > 0, nil
}

// RemoveByRecording deletes the task queued for a recording and returns it.
func (s *Store) RemoveByRecording(ctx context.Context, recordingID string) (*transcription.Task, error) {
	var removed *transcription.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		task, err := getTask(ctx, tx, "recording_id = ?", recordingID)
		if err != nil || task == nil {
			removed = nil
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM transcription_tasks WHERE id = ?", task.ID); err != nil {
			return err
		}
		removed = task
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove task by recording: %w", err)
	}
	return removed, nil
}

// RemoveMany deletes the listed tasks.
func (s *Store) RemoveMany(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.execWithRetry(ctx, "DELETE FROM transcription_tasks WHERE id IN ("+makePlaceholders(len(ids))+")", args...)
	if err != nil {
		return 0, fmt.Errorf("remove tasks: %w", err)
	}
	return res.RowsAffected()
}

// List returns every queued task in processing order, paused tasks included.
func (s *Store) List(ctx context.Context) ([]transcription.Task, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM transcription_tasks ORDER BY position, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []transcription.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// Count returns the number of queued tasks and how many of them are runnable.
func (s *Store) Count(ctx context.Context) (total int, runnable int, err error) {
	err = s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1), COALESCE(SUM(CASE WHEN paused = 0 THEN 1 ELSE 0 END), 0) FROM transcription_tasks",
	).Scan(&total, &runnable)
	if err != nil {
		return 0, 0, fmt.Errorf("count tasks: %w", err)
	}
	return total, runnable, nil
}

// SetRemoteJobID records the server-side job once an upload completes.
func (s *Store) SetRemoteJobID(ctx context.Context, id, jobID string) error {
	return s.updateTask(ctx, "set remote job id",
		"UPDATE transcription_tasks SET remote_job_id = ?, updated_at = ? WHERE id = ?",
		nullableString(jobID), formatTime(time.Now()), id)
}

// SetOffset records the transcription checkpoint in milliseconds.
func (s *Store) SetOffset(ctx context.Context, id string, offsetMS int64) error {
	return s.updateTask(ctx, "set offset",
		"UPDATE transcription_tasks SET offset_ms = ?, updated_at = ? WHERE id = ?",
		max(offsetMS, 0), formatTime(time.Now()), id)
}

// MarkPaused keeps the task queued but excludes it from PeekHead until Resume.
func (s *Store) MarkPaused(ctx context.Context, id string, progress float64, offsetMS int64) error {
	return s.updateTask(ctx, "mark paused",
		"UPDATE transcription_tasks SET paused = ?, pause_progress = ?, offset_ms = ?, updated_at = ? WHERE id = ?",
		boolToInt(true), progress, max(offsetMS, 0), formatTime(time.Now()), id)
}

// ListPaused returns paused tasks in queue order.
func (s *Store) ListPaused(ctx context.Context) ([]transcription.Task, error) {
	tasks, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	paused := tasks[:0]
	for _, task := range tasks {
		if task.Paused {
			paused = append(paused, task)
		}
	}
	return paused, nil
}

// Clear removes every task.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM transcription_tasks")
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

// ClearExcept removes every task other than keepID.
func (s *Store) ClearExcept(ctx context.Context, keepID string) (int64, error) {
	if keepID == "" {
		return s.Clear(ctx)
	}
	res, err := s.execWithRetry(ctx, "DELETE FROM transcription_tasks WHERE id <> ?", keepID)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) updateTask(ctx context.Context, op, query string, args ...any) error {
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, ErrTaskNotFound)
	}
	return nil
}

// ErrTaskNotFound is returned when updating a task that is no longer queued.
var ErrTaskNotFound = errors.New("task not found")
