package config

const (
	defaultConfigPath               = "~/.config/scribe/config.toml"
	defaultDataDir                  = "~/.local/share/scribe"
	defaultLogDir                   = "~/.local/share/scribe/logs"
	defaultModelsDir                = "~/.local/share/scribe/models"
	defaultAPIBind                  = "127.0.0.1:7491"
	defaultStrategy                 = "local"
	defaultModel                    = "whisper-base"
	defaultLanguage                 = "en"
	defaultMaxSegmentSeconds        = 30
	defaultNumThreads               = 2
	defaultSampleRate               = 16000
	defaultWindowSeconds            = 30
	defaultMemoryHeadroomMiB        = 256
	defaultRemoteBaseURL            = "http://127.0.0.1:8080"
	defaultChunkSizeKiB             = 1024
	defaultPollIntervalSeconds      = 5
	defaultRequestTimeoutSeconds    = 60
	defaultGrantSeconds             = 30
	defaultContinuationDelaySeconds = 900
	defaultQueuePollInterval        = 5
	defaultErrorRetryInterval       = 10
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogMaxSizeMB             = 20
	defaultLogMaxBackups            = 5
	defaultLogRetentionDays         = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Transcription: Transcription{
			Strategy:          defaultStrategy,
			Model:             defaultModel,
			Language:          defaultLanguage,
			MaxSegmentSeconds: defaultMaxSegmentSeconds,
		},
		Local: Local{
			ModelsDir:         defaultModelsDir,
			NumThreads:        defaultNumThreads,
			SampleRate:        defaultSampleRate,
			WindowSeconds:     defaultWindowSeconds,
			MemoryHeadroomMiB: defaultMemoryHeadroomMiB,
		},
		Remote: Remote{
			BaseURL:               defaultRemoteBaseURL,
			ChunkSizeKiB:          defaultChunkSizeKiB,
			PollIntervalSeconds:   defaultPollIntervalSeconds,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Background: Background{
			GrantSeconds:             defaultGrantSeconds,
			ContinuationDelaySeconds: defaultContinuationDelaySeconds,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			MaxSizeMB:     defaultLogMaxSizeMB,
			MaxBackups:    defaultLogMaxBackups,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
