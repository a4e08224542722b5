package executor

import (
	"context"
	"log/slog"
	"time"

	"scribe/internal/logging"
	"scribe/internal/remote"
	"scribe/internal/services"
	"scribe/internal/transcription"
)

// Remote uploads the recording and polls the service for the result.
type Remote struct {
	api          remote.API
	pollInterval time.Duration
	logger       *slog.Logger

	runs runs
}

func NewRemote(api remote.API, pollInterval time.Duration, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = logging.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Remote{
		api:          api,
		pollInterval: pollInterval,
		logger:       logging.NewComponentLogger(logger, "executor.remote"),
	}
}

func (r *Remote) Name() string { return string(transcription.StrategyRemote) }

func (r *Remote) Cancel(taskID string, cause error) {
	if r.runs.cancel(taskID, cause) {
		r.logger.Info("remote cancellation requested", logging.String(logging.FieldTaskID, taskID))
	}
}

func (r *Remote) Process(ctx context.Context, env *Envelope) error {
	ctx, done := r.runs.start(ctx, env.Task.ID)
	defer done()
	logger := logging.WithContext(ctx, r.logger)

	task := env.Task
	jobID := task.RemoteJobID
	if err := env.update(ctx, func(tr *transcription.Transcription) error {
		tr.ResetForAttempt(task)
		if jobID != "" {
			return tr.Apply(transcription.Loading())
		}
		return tr.Apply(transcription.Uploading(0))
	}); err != nil {
		return stopCause(ctx, err)
	}

	if jobID == "" {
		var err error
		jobID, err = r.upload(ctx, env, logger)
		if err != nil {
			return stopCause(ctx, err)
		}
		if err := env.checkpoint(ctx, Checkpoint{RemoteJobID: jobID}); err != nil {
			return stopCause(ctx, err)
		}
	} else {
		logger.Info("resuming remote job", logging.String("job_id", jobID))
	}

	if err := env.setStatus(ctx, transcription.InProgress(0, 0)); err != nil {
		return stopCause(ctx, err)
	}
	return r.poll(ctx, env, jobID, logger)
}

func (r *Remote) upload(ctx context.Context, env *Envelope, logger *slog.Logger) (string, error) {
	var jobID string
	var uploadErr error
	last := 0.0
	sampler := logging.NewProgressSampler(25)
	for ev := range r.api.UploadFile(ctx, env.Recording.AudioPath, env.Task.Parameters, env.Task.Model) {
		if uploadErr != nil {
			continue
		}
		if ev.Err != nil {
			uploadErr = ev.Err
			continue
		}
		if ev.JobID != "" {
			jobID = ev.JobID
		}
		if ev.Progress == last {
			continue
		}
		last = ev.Progress
		if err := env.setStatus(ctx, transcription.Uploading(ev.Progress)); err != nil {
			uploadErr = err
			continue
		}
		if sampler.ShouldLog(ev.Progress*100, "upload") {
			logger.Debug("upload progress", logging.Float64("percent", ev.Progress*100))
		}
	}
	if uploadErr != nil {
		return "", uploadErr
	}
	if jobID == "" {
		return "", services.Wrap(services.ErrTransport, "executor.remote", "upload", "upload finished without a job id", nil)
	}
	logger.Info("upload complete", logging.String("job_id", jobID))
	return jobID, nil
}

func (r *Remote) poll(ctx context.Context, env *Envelope, jobID string, logger *slog.Logger) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		result, err := r.api.GetResult(ctx, jobID)
		if err != nil {
			return stopCause(ctx, err)
		}
		if result.ErrorMessage != "" {
			return services.Wrap(services.ErrTransport, "executor.remote", "poll",
				"remote transcription failed: "+result.ErrorMessage, nil)
		}
		if result.IsDone {
			segments := result.Segments
			if err := env.update(ctx, func(tr *transcription.Transcription) error {
				tr.ReplaceSegments(segments)
				return nil
			}); err != nil {
				return stopCause(ctx, err)
			}
			logger.Info("remote job finished", logging.Int("segments", len(segments)))
			return nil
		}
		select {
		case <-ctx.Done():
			return stopCause(ctx, ctx.Err())
		case <-ticker.C:
		}
	}
}
