package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"

	"scribe/internal/config"
	"scribe/internal/engine"
	"scribe/internal/logging"
	"scribe/internal/models"
	"scribe/internal/services"
	"scribe/internal/transcription"
)

// EngineFactory creates an engine for a verified model.
type EngineFactory func(model *models.Model, params transcription.Parameters) (engine.Engine, error)

// MemoryProbe reports bytes of memory available for a new model.
type MemoryProbe func() (uint64, error)

// SystemMemory reads available memory from the host.
func SystemMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// SherpaFactory builds sherpa-onnx engines using the [local] settings.
func SherpaFactory(local config.Local) EngineFactory {
	return func(model *models.Model, params transcription.Parameters) (engine.Engine, error) {
		return engine.NewSherpaEngine(model.Files, engine.SherpaOptions{
			Language:      params.Language,
			Translate:     params.Translate,
			NumThreads:    local.NumThreads,
			SampleRate:    local.SampleRate,
			WindowSeconds: local.WindowSeconds,
		})
	}
}

// Local runs inference in-process and owns the single loaded engine.
type Local struct {
	loader    models.Loader
	newEngine EngineFactory
	memory    MemoryProbe
	headroom  uint64
	logger    *slog.Logger

	runs runs

	mu        sync.Mutex
	engine    engine.Engine
	engineKey string
}

// LocalOptions wires a Local executor.
type LocalOptions struct {
	Loader      models.Loader
	Engines     EngineFactory
	Memory      MemoryProbe
	HeadroomMiB int
	Logger      *slog.Logger
}

func NewLocal(opts LocalOptions) *Local {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	memory := opts.Memory
	if memory == nil {
		memory = SystemMemory
	}
	return &Local{
		loader:    opts.Loader,
		newEngine: opts.Engines,
		memory:    memory,
		headroom:  uint64(max(opts.HeadroomMiB, 0)) << 20,
		logger:    logging.NewComponentLogger(logger, "executor.local"),
	}
}

func (l *Local) Name() string { return string(transcription.StrategyLocal) }

func (l *Local) Cancel(taskID string, cause error) {
	if l.runs.cancel(taskID, cause) {
		l.logger.Info("local cancellation requested", logging.String(logging.FieldTaskID, taskID))
	}
}

// Close releases the loaded engine.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine == nil {
		return nil
	}
	err := l.engine.Close()
	l.engine = nil
	l.engineKey = ""
	return err
}

func (l *Local) Process(ctx context.Context, env *Envelope) error {
	ctx, done := l.runs.start(ctx, env.Task.ID)
	defer done()
	logger := logging.WithContext(ctx, l.logger)

	task := env.Task
	if err := env.update(ctx, func(tr *transcription.Transcription) error {
		tr.ResetForAttempt(task)
		return tr.Apply(transcription.Loading())
	}); err != nil {
		return stopCause(ctx, err)
	}

	model, err := l.loadModel(ctx, task.Model)
	if err != nil {
		return stopCause(ctx, err)
	}
	if err := l.checkMemory(model); err != nil {
		return err
	}
	eng, err := l.engineFor(model, task.Parameters)
	if err != nil {
		return err
	}

	startProgress := 0.0
	if task.OffsetMS > 0 && env.Recording.Duration > 0 {
		startProgress = float64(task.OffsetMS) / float64(env.Recording.Duration.Milliseconds())
	}
	if err := env.setStatus(ctx, transcription.InProgress(startProgress, task.OffsetMS)); err != nil {
		return stopCause(ctx, err)
	}

	events, err := eng.Transcribe(ctx, engine.Request{
		AudioPath: env.Recording.AudioPath,
		Params:    task.Parameters,
		OffsetMS:  task.OffsetMS,
	})
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, eng.Cancel)
	defer stop()

	logger.Info("local transcription started",
		logging.String("model", model.Name),
		logging.Int64("offset_ms", task.OffsetMS))
	sampler := logging.NewProgressSampler(0)

	for ev := range events {
		var handleErr error
		switch ev.Kind {
		case engine.EventSegment:
			seg := ev.Segment
			handleErr = env.update(ctx, func(tr *transcription.Transcription) error {
				tr.AppendSegment(seg)
				return nil
			})
		case engine.EventProgress:
			handleErr = env.setStatus(ctx, transcription.InProgress(ev.Progress, ev.OffsetMS))
			if handleErr == nil {
				handleErr = env.checkpoint(ctx, Checkpoint{OffsetMS: ev.OffsetMS, Progress: ev.Progress})
			}
			if sampler.ShouldLog(ev.Progress*100, "transcribe") {
				logger.Debug("local progress",
					logging.Float64("percent", ev.Progress*100),
					logging.String("at", transcription.FormatOffset(ev.OffsetMS)))
			}
		case engine.EventError:
			return ev.Err
		case engine.EventCanceled:
			return stopCause(ctx, Canceled("engine stopped"))
		case engine.EventFinished:
			logger.Info("local transcription finished")
			return nil
		}
		if handleErr != nil {
			eng.Cancel()
			go drain(events)
			return stopCause(ctx, handleErr)
		}
	}
	return stopCause(ctx, services.Wrap(services.ErrResource, "executor.local", "transcribe", "engine stream ended without a result", nil))
}

func (l *Local) loadModel(ctx context.Context, name string) (*models.Model, error) {
	if l.loader == nil {
		return nil, services.Wrap(services.ErrConfiguration, "executor.local", "load model", "no model loader configured", nil)
	}
	var model *models.Model
	var loadErr error
	for ev := range l.loader.Load(ctx, name) {
		switch {
		case ev.Err != nil:
			loadErr = ev.Err
		case ev.Model != nil:
			model = ev.Model
		}
	}
	if loadErr != nil {
		return nil, loadErr
	}
	if model == nil {
		return nil, services.Wrap(services.ErrResource, "executor.local", "load model", fmt.Sprintf("model %q did not load", name), nil)
	}
	return model, nil
}

func (l *Local) checkMemory(model *models.Model) error {
	l.mu.Lock()
	loaded := l.engine != nil && l.engineKey != "" && keyModel(l.engineKey) == model.Name
	l.mu.Unlock()
	if loaded {
		return nil
	}
	available, err := l.memory()
	if err != nil {
		l.logger.Warn("memory probe failed; skipping check", logging.Error(err))
		return nil
	}
	required := model.FootprintBytes + l.headroom
	if available < required {
		return services.Wrap(services.ErrResource, "executor.local", "memory check",
			fmt.Sprintf("insufficient memory for model %s: %s available, %s required",
				model.Name, formatMiB(available), formatMiB(required)), nil)
	}
	return nil
}

func (l *Local) engineFor(model *models.Model, params transcription.Parameters) (engine.Engine, error) {
	key := engineKey(model.Name, params)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine != nil && l.engineKey == key {
		return l.engine, nil
	}
	if l.engine != nil {
		if err := l.engine.Close(); err != nil {
			l.logger.Warn("engine close failed", logging.Error(err))
		}
		l.engine = nil
		l.engineKey = ""
	}
	if l.newEngine == nil {
		return nil, services.Wrap(services.ErrConfiguration, "executor.local", "create engine", "no engine factory configured", nil)
	}
	eng, err := l.newEngine(model, params)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "executor.local", "create engine", "could not initialise the speech engine", err)
	}
	l.engine = eng
	l.engineKey = key
	return eng, nil
}

func engineKey(model string, params transcription.Parameters) string {
	return fmt.Sprintf("%s\x00%s\x00%t", model, params.Language, params.Translate)
}

func keyModel(key string) string {
	name, _, _ := strings.Cut(key, "\x00")
	return name
}

func formatMiB(bytes uint64) string {
	return fmt.Sprintf("%d MiB", bytes>>20)
}

func drain[T any](ch <-chan T) {
	for range ch {
	}
}
