// Package models resolves and verifies local Whisper model directories.
package models

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"scribe/internal/engine"
	"scribe/internal/fileutil"
	"scribe/internal/services"
)

// Model is a verified on-disk Whisper export.
type Model struct {
	Name  string
	Dir   string
	Files engine.WhisperFiles
	// FootprintBytes approximates resident memory once loaded.
	FootprintBytes uint64
}

// LoadEvent reports loader progress. The final event carries Model or Err.
type LoadEvent struct {
	Progress float64
	Model    *Model
	Err      error
}

// Loader loads a model by name, streaming progress.
type Loader interface {
	Load(ctx context.Context, name string) <-chan LoadEvent
}

// footprintFactor covers runtime buffers on top of raw weights.
const footprintFactor = 1.5

type fileRole struct {
	label      string
	candidates []string
}

var modelFiles = []fileRole{
	{label: "encoder", candidates: []string{"encoder.int8.onnx", "encoder.onnx"}},
	{label: "decoder", candidates: []string{"decoder.int8.onnx", "decoder.onnx"}},
	{label: "tokens", candidates: []string{"tokens.txt"}},
}

// DirLoader finds models under a root directory and keeps the last one loaded.
type DirLoader struct {
	root string

	mu      sync.Mutex
	current *Model
}

func NewDirLoader(root string) *DirLoader {
	return &DirLoader{root: root}
}

// Current returns the cached model, if any.
func (l *DirLoader) Current() *Model {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	m := *l.current
	return &m
}

// Load resolves <root>/<name>. The channel is closed after the final event.
func (l *DirLoader) Load(ctx context.Context, name string) <-chan LoadEvent {
	events := make(chan LoadEvent, len(modelFiles)+2)
	go func() {
		defer close(events)
		model, err := l.load(ctx, name, events)
		if err != nil {
			events <- LoadEvent{Err: err}
			return
		}
		events <- LoadEvent{Progress: 1, Model: model}
	}()
	return events
}

func (l *DirLoader) load(ctx context.Context, name string, events chan<- LoadEvent) (*Model, error) {
	if cached := l.Current(); cached != nil && cached.Name == name {
		return cached, nil
	}
	if name == "" || filepath.Base(name) != name {
		return nil, services.Wrap(services.ErrValidation, "models", "resolve", fmt.Sprintf("invalid model name %q", name), nil)
	}
	dir := filepath.Join(l.root, name)
	if err := fileutil.CheckDirReadable(dir); err != nil {
		return nil, services.Wrap(services.ErrResource, "models", "resolve", fmt.Sprintf("model %q not found in %s", name, l.root), err)
	}

	model := &Model{Name: name, Dir: dir}
	var total int64
	for i, role := range modelFiles {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrCanceled, "models", "load", "model load canceled", err)
		}
		path, size, err := findFile(dir, role.candidates)
		if err != nil {
			return nil, services.Wrap(services.ErrResource, "models", "verify",
				fmt.Sprintf("model %q is missing its %s file", name, role.label), err)
		}
		switch role.label {
		case "encoder":
			model.Files.Encoder = path
		case "decoder":
			model.Files.Decoder = path
		case "tokens":
			model.Files.Tokens = path
		}
		total += size
		events <- LoadEvent{Progress: float64(i+1) / float64(len(modelFiles)+1)}
	}
	model.FootprintBytes = uint64(float64(total) * footprintFactor)

	l.mu.Lock()
	l.current = model
	l.mu.Unlock()
	out := *model
	return &out, nil
}

func findFile(dir string, candidates []string) (string, int64, error) {
	var lastErr error
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if err := fileutil.CheckReadable(path); err != nil {
			lastErr = err
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			lastErr = err
			continue
		}
		return path, info.Size(), nil
	}
	return "", 0, lastErr
}

// Unload drops the cached model.
func (l *DirLoader) Unload() {
	l.mu.Lock()
	l.current = nil
	l.mu.Unlock()
}

// Available lists model directories under root.
func (l *DirLoader) Available() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read models dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
