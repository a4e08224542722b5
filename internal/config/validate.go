package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateLocal(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateBackground(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Strategy {
	case "local", "remote":
	default:
		return fmt.Errorf("transcription.strategy must be local or remote, got %q", c.Transcription.Strategy)
	}
	if strings.TrimSpace(c.Transcription.Model) == "" {
		return errors.New("transcription.model must be set")
	}
	if c.Transcription.MaxSegmentSeconds <= 0 {
		return errors.New("transcription.max_segment_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLocal() error {
	if err := ensurePositiveMap(map[string]int{
		"local.num_threads":    c.Local.NumThreads,
		"local.sample_rate":    c.Local.SampleRate,
		"local.window_seconds": c.Local.WindowSeconds,
	}); err != nil {
		return err
	}
	if c.Local.MemoryHeadroomMiB < 0 {
		return errors.New("local.memory_headroom_mib must be >= 0")
	}
	if c.Transcription.Strategy == "local" && strings.TrimSpace(c.Local.ModelsDir) == "" {
		return errors.New("local.models_dir must be set for the local strategy")
	}
	return nil
}

func (c *Config) validateRemote() error {
	if err := ensurePositiveMap(map[string]int{
		"remote.chunk_size_kib":          c.Remote.ChunkSizeKiB,
		"remote.poll_interval_seconds":   c.Remote.PollIntervalSeconds,
		"remote.request_timeout_seconds": c.Remote.RequestTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Transcription.Strategy != "remote" {
		return nil
	}
	if c.Remote.BaseURL == "" {
		return errors.New("remote.base_url must be set for the remote strategy")
	}
	parsed, err := url.Parse(c.Remote.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("remote.base_url %q is not an absolute URL", c.Remote.BaseURL)
	}
	return nil
}

func (c *Config) validateBackground() error {
	return ensurePositiveMap(map[string]int{
		"background.grant_seconds":              c.Background.GrantSeconds,
		"background.continuation_delay_seconds": c.Background.ContinuationDelaySeconds,
	})
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
