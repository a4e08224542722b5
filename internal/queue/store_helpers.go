package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scribe/internal/transcription"
)

const taskColumns = "id, recording_id, position, strategy, model, parameters_json, remote_job_id, offset_ms, paused, pause_progress, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*transcription.Task, error) {
	var (
		id            string
		recordingID   string
		position      int64
		strategy      string
		model         string
		paramsJSON    string
		remoteJobID   sql.NullString
		offsetMS      int64
		paused        int64
		pauseProgress float64
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&recordingID,
		&position,
		&strategy,
		&model,
		&paramsJSON,
		&remoteJobID,
		&offsetMS,
		&paused,
		&pauseProgress,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &transcription.Task{
		ID:            id,
		RecordingID:   recordingID,
		Strategy:      transcription.Strategy(strategy),
		Model:         model,
		RemoteJobID:   remoteJobID.String,
		OffsetMS:      offsetMS,
		Paused:        paused != 0,
		PauseProgress: pauseProgress,
	}
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &task.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters for task %s: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}

func encodeParameters(params transcription.Parameters) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode parameters: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
