package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	_ "modernc.org/sqlite"

	"scribe/internal/config"
	"scribe/internal/fileutil"
	"scribe/internal/services"
	"scribe/internal/transcription"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrRecordingNotFound is returned when an operation targets an unknown recording.
var ErrRecordingNotFound = services.Wrap(services.ErrNotFound, "catalog", "lookup", "recording not found", nil)

// Store persists recordings backed by SQLite.
type Store struct {
	db            *sql.DB
	recordingsDir string
}

// Open opens the catalog configured for the daemon.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.CatalogDBPath(), cfg.RecordingsDir())
}

// OpenPath opens a catalog database and the directory audio files are copied into.
func OpenPath(dbPath, recordingsDir string) (*Store, error) {
	if err := os.MkdirAll(recordingsDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure recordings directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	store := &Store{db: db, recordingsDir: recordingsDir}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("catalog schema version %d, expected %d", version, schemaVersion)
	}
	return nil
}

// Add registers audioPath, copying it into the catalog. An empty title is
// derived from the file name.
func (s *Store) Add(ctx context.Context, audioPath, title string) (*transcription.Recording, error) {
	audioPath = strings.TrimSpace(audioPath)
	if audioPath == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "add", "audio path is required", nil)
	}
	if err := fileutil.CheckReadable(audioPath); err != nil {
		return nil, services.Wrap(services.ErrValidation, "catalog", "add", "audio file unavailable", err)
	}
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}

	id := uuid.NewString()
	fileName := id + strings.ToLower(filepath.Ext(audioPath))
	dest := filepath.Join(s.recordingsDir, fileName)
	checksum, err := fileutil.CopyFileVerified(audioPath, dest)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "catalog", "copy audio", "could not store recording", err)
	}

	rec := &transcription.Recording{
		ID:        id,
		FileName:  fileName,
		AudioPath: dest,
		Title:     strings.TrimSpace(title),
		Date:      info.ModTime().UTC(),
	}
	if rec.Title == "" {
		rec.Title = TitleFromPath(audioPath)
	}
	if wav, err := fileutil.ProbeWAV(dest); err == nil {
		rec.Duration = wav.Duration()
	}

	now := formatTime(time.Now())
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO recordings (id, file_name, audio_path, title, recorded_at, duration_ms, checksum, transcription_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		rec.ID, rec.FileName, rec.AudioPath, rec.Title, formatTime(rec.Date), rec.Duration.Milliseconds(), checksum, now, now,
	); err != nil {
		_ = os.Remove(dest)
		return nil, fmt.Errorf("insert recording: %w", err)
	}
	return rec, nil
}

// TitleFromPath turns "weekly_sync-notes.wav" into "Weekly Sync Notes".
func TitleFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return "Untitled Recording"
	}
	return cases.Title(language.Und).String(base)
}

const recordingColumns = "id, file_name, audio_path, title, recorded_at, duration_ms, transcription_json"

func scanRecording(scanner interface{ Scan(dest ...any) error }) (*transcription.Recording, error) {
	var (
		rec         transcription.Recording
		recordedRaw string
		durationMS  int64
		trJSON      sql.NullString
	)
	if err := scanner.Scan(&rec.ID, &rec.FileName, &rec.AudioPath, &rec.Title, &recordedRaw, &durationMS, &trJSON); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, recordedRaw); err == nil {
		rec.Date = t
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if trJSON.Valid && trJSON.String != "" {
		var tr transcription.Transcription
		if err := json.Unmarshal([]byte(trJSON.String), &tr); err != nil {
			return nil, fmt.Errorf("decode transcription for %s: %w", rec.ID, err)
		}
		rec.Transcription = &tr
	}
	return &rec, nil
}

// Recording fetches a recording. A missing recording returns nil without error.
func (s *Store) Recording(ctx context.Context, id string) (*transcription.Recording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// List returns recordings newest first.
func (s *Store) List(ctx context.Context) ([]transcription.Recording, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordingColumns+` FROM recordings ORDER BY recorded_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()
	var out []transcription.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Remove deletes the recording and its stored audio.
func (s *Store) Remove(ctx context.Context, id string) error {
	rec, err := s.Recording(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrRecordingNotFound
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM recordings WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	if err := os.Remove(rec.AudioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove audio: %w", err)
	}
	return nil
}

// UpdateTranscription applies mutate to the recording's Transcription inside
// one transaction, creating the Transcription when absent. The stored result
// is returned. A mutate error aborts the write.
func (s *Store) UpdateTranscription(ctx context.Context, id string, mutate func(*transcription.Transcription) error) (*transcription.Transcription, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecording(tx.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load recording: %w", err)
	}
	tr := rec.Transcription
	if tr == nil {
		tr = transcription.New(uuid.NewString(), rec.FileName)
	}
	if err := mutate(tr); err != nil {
		return nil, err
	}
	tr.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(tr)
	if err != nil {
		return nil, fmt.Errorf("encode transcription: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE recordings SET transcription_json = ?, updated_at = ? WHERE id = ?",
		string(data), formatTime(time.Now()), id,
	); err != nil {
		return nil, fmt.Errorf("store transcription: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transcription: %w", err)
	}
	return tr.Clone(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
