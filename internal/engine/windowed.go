package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"scribe/internal/services"
	"scribe/internal/transcription"
)

// maxWindowSeconds is the longest span Whisper decodes natively.
const maxWindowSeconds = 30

// ErrBusy is returned when Transcribe is called while a run is active.
var ErrBusy = errors.New("engine busy")

// Decoder recognizes text in one window of mono float samples.
type Decoder interface {
	Decode(samples []float32, sampleRate int) (string, error)
	Close()
}

// SampleReader loads mono samples and their rate from an audio file.
type SampleReader func(path string) ([]float32, int, error)

// WindowedEngine drives a Decoder over fixed-size windows of audio.
type WindowedEngine struct {
	decoder       Decoder
	readSamples   SampleReader
	windowSeconds int

	mu       sync.Mutex
	running  bool
	canceled atomic.Bool
}

// NewWindowedEngine wraps decoder. windowSeconds is clamped to (0, 30].
func NewWindowedEngine(decoder Decoder, reader SampleReader, windowSeconds int) *WindowedEngine {
	if windowSeconds <= 0 || windowSeconds > maxWindowSeconds {
		windowSeconds = maxWindowSeconds
	}
	return &WindowedEngine{decoder: decoder, readSamples: reader, windowSeconds: windowSeconds}
}

// Transcribe starts decoding in the background. The returned channel is
// closed after exactly one terminal event (error, canceled, or finished).
func (e *WindowedEngine) Transcribe(ctx context.Context, req Request) (<-chan Event, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	e.running = true
	e.mu.Unlock()
	e.canceled.Store(false)

	samples, sampleRate, err := e.readSamples(req.AudioPath)
	if err != nil {
		e.finish()
		return nil, services.Wrap(services.ErrResource, "engine", "read audio", "could not read audio samples", err)
	}
	if sampleRate <= 0 {
		e.finish()
		return nil, services.Wrap(services.ErrResource, "engine", "read audio", fmt.Sprintf("invalid sample rate %d", sampleRate), nil)
	}

	window := e.windowSeconds
	if s := req.Params.MaxSegmentSeconds; s > 0 && s < window {
		window = s
	}

	events := make(chan Event, 8)
	go func() {
		defer close(events)
		defer e.finish()
		e.run(ctx, samples, sampleRate, window*sampleRate, req.OffsetMS, events)
	}()
	return events, nil
}

func (e *WindowedEngine) run(ctx context.Context, samples []float32, sampleRate, window int, offsetMS int64, events chan<- Event) {
	total := len(samples)
	start := int(offsetMS * int64(sampleRate) / 1000)
	start = min(max(start, 0), total)

	events <- Event{Kind: EventProgress, Progress: fraction(start, total), OffsetMS: toMS(start, sampleRate)}

	for idx := start; idx < total; idx += window {
		if e.canceled.Load() || ctx.Err() != nil {
			events <- Event{Kind: EventCanceled, Progress: fraction(idx, total), OffsetMS: toMS(idx, sampleRate)}
			return
		}
		end := min(idx+window, total)
		text, err := e.decoder.Decode(samples[idx:end], sampleRate)
		if err != nil {
			events <- Event{Kind: EventError, Err: services.Wrap(services.ErrResource, "engine", "decode", "native inference failed", err)}
			return
		}
		if text = strings.TrimSpace(text); text != "" {
			events <- Event{Kind: EventSegment, Segment: transcription.Segment{
				StartMS: toMS(idx, sampleRate),
				EndMS:   toMS(end, sampleRate),
				Text:    text,
			}}
		}
		events <- Event{Kind: EventProgress, Progress: fraction(end, total), OffsetMS: toMS(end, sampleRate)}
	}
	events <- Event{Kind: EventFinished, Progress: 1, OffsetMS: toMS(total, sampleRate)}
}

// Cancel sets the flag checked before each window.
func (e *WindowedEngine) Cancel() {
	e.canceled.Store(true)
}

// Close releases the decoder.
func (e *WindowedEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrBusy
	}
	if e.decoder != nil {
		e.decoder.Close()
		e.decoder = nil
	}
	return nil
}

func (e *WindowedEngine) finish() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

func fraction(n, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(n) / float64(total)
}

func toMS(samples, sampleRate int) int64 {
	return int64(samples) * 1000 / int64(sampleRate)
}
