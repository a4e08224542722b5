package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Transcription holds the default parameters captured onto every new task.
type Transcription struct {
	Strategy          string `toml:"strategy"`
	Model             string `toml:"model"`
	Language          string `toml:"language"`
	Translate         bool   `toml:"translate"`
	MaxSegmentSeconds int    `toml:"max_segment_seconds"`
}

// Local configures in-process inference.
type Local struct {
	ModelsDir         string `toml:"models_dir"`
	NumThreads        int    `toml:"num_threads"`
	SampleRate        int    `toml:"sample_rate"`
	WindowSeconds     int    `toml:"window_seconds"`
	MemoryHeadroomMiB int    `toml:"memory_headroom_mib"`
}

// Remote configures the remote transcription service.
type Remote struct {
	BaseURL               string `toml:"base_url"`
	APIKey                string `toml:"api_key"`
	ChunkSizeKiB          int    `toml:"chunk_size_kib"`
	PollIntervalSeconds   int    `toml:"poll_interval_seconds"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Background configures execution grants while the app is backgrounded.
type Background struct {
	GrantSeconds             int  `toml:"grant_seconds"`
	ContinuationDelaySeconds int  `toml:"continuation_delay_seconds"`
	AutoResume               bool `toml:"auto_resume"`
}

// Workflow contains scheduler loop timing.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Logging configures log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	MaxBackups    int    `toml:"max_backups"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Scribe.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Local         Local         `toml:"local"`
	Remote        Remote        `toml:"remote"`
	Background    Background    `toml:"background"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The models directory is created best-effort since it may live on
// storage that is populated separately.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.RecordingsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Local.ModelsDir) != "" {
		_ = os.MkdirAll(c.Local.ModelsDir, 0o755)
	}
	return nil
}

// QueueDBPath returns the task queue database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// CatalogDBPath returns the recording catalog database location.
func (c *Config) CatalogDBPath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// RecordingsDir is where registered audio files are copied.
func (c *Config) RecordingsDir() string {
	return filepath.Join(c.Paths.DataDir, "recordings")
}

// SocketPath returns the daemon IPC socket path.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "scribe.sock")
}

// LockPath returns the daemon single-instance lock path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "scribe.lock")
}

// PollInterval returns the remote poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Remote.PollIntervalSeconds) * time.Second
}

// RequestTimeout returns the per-request timeout for the remote API.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Remote.RequestTimeoutSeconds) * time.Second
}

// GrantDuration is how long a background execution grant lasts.
func (c *Config) GrantDuration() time.Duration {
	return time.Duration(c.Background.GrantSeconds) * time.Second
}

// ContinuationDelay is the delay before a scheduled continuation wakes the scheduler.
func (c *Config) ContinuationDelay() time.Duration {
	return time.Duration(c.Background.ContinuationDelaySeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// Encode writes the effective configuration as TOML. Secrets are masked
// unless reveal is set.
func (c *Config) Encode(w io.Writer, reveal bool) error {
	out := *c
	if !reveal {
		out = c.Redacted()
	}
	encoder := toml.NewEncoder(w)
	encoder.SetIndentTables(true)
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// Redacted returns a copy with secrets masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Remote.APIKey = maskSecret(out.Remote.APIKey)
	out.Paths.APIToken = maskSecret(out.Paths.APIToken)
	return out
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	return "********"
}

// CreateSample writes a sample configuration file populated with defaults.
func CreateSample(path string) error {
	cfg := Default()
	var buf bytes.Buffer
	buf.WriteString("# Scribe configuration\n# Remote API key may also be provided through SCRIBE_REMOTE_API_KEY.\n\n")
	encoder := toml.NewEncoder(&buf)
	encoder.SetIndentTables(true)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encode sample config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
