package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"scribe/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SCRIBE_REMOTE_API_KEY", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "scribe")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Local.ModelsDir != filepath.Join(wantData, "models") {
		t.Fatalf("unexpected models dir: %q", cfg.Local.ModelsDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Transcription.Strategy != "local" {
		t.Fatalf("expected local strategy by default, got %q", cfg.Transcription.Strategy)
	}
	if cfg.Transcription.Language != "en" {
		t.Fatalf("unexpected language: %q", cfg.Transcription.Language)
	}
	if cfg.Background.AutoResume {
		t.Fatal("expected auto resume disabled by default")
	}
	if cfg.QueueDBPath() != filepath.Join(wantData, "queue.db") {
		t.Fatalf("unexpected queue db path: %q", cfg.QueueDBPath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.RecordingsDir(), cfg.Local.ModelsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SCRIBE_REMOTE_API_KEY", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `[paths]
data_dir = "~/scribe-data"

[transcription]
strategy = "Remote"
model = "large-v3"
language = "pt-BR"

[remote]
base_url = "https://transcribe.example.com/"
api_key = "  secret  "
poll_interval_seconds = 2

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "scribe-data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Transcription.Strategy != "remote" {
		t.Fatalf("expected strategy to be lowercased, got %q", cfg.Transcription.Strategy)
	}
	if cfg.Transcription.Language != "pt" {
		t.Fatalf("expected canonical base language, got %q", cfg.Transcription.Language)
	}
	if cfg.Remote.BaseURL != "https://transcribe.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.APIKey != "secret" {
		t.Fatalf("expected trimmed api key, got %q", cfg.Remote.APIKey)
	}
	if cfg.PollInterval().Seconds() != 2 {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestEnvVarSuppliesRemoteAPIKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SCRIBE_REMOTE_API_KEY", "from-env")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Remote.APIKey != "from-env" {
		t.Fatalf("expected api key from env, got %q", cfg.Remote.APIKey)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "auto"},
		{in: "AUTO", want: "auto"},
		{in: "en-US", want: "en"},
		{in: "de", want: "de"},
		{in: "zh-Hant-TW", want: "zh"},
		{in: "not a language!", wantErr: true},
	}
	for _, tc := range tests {
		got, err := config.NormalizeLanguage(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("NormalizeLanguage(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizeLanguage(%q) returned error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeLanguage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "SCRIBE_REMOTE_API_KEY") {
		t.Fatalf("sample config missing api key hint: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Transcription.Model != config.Default().Transcription.Model {
		t.Fatalf("unexpected sample model: %q", cfg.Transcription.Model)
	}
	if !strings.Contains(cfg.Paths.DataDir, "scribe") {
		t.Fatalf("expected data dir to contain scribe, got %q", cfg.Paths.DataDir)
	}
}

func TestEncodeMasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Remote.APIKey = "sk-live"
	cfg.Paths.APIToken = "token"

	var masked bytes.Buffer
	if err := cfg.Encode(&masked, false); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(masked.String(), "sk-live") || strings.Contains(masked.String(), "\"token\"") {
		t.Fatalf("secrets leaked: %s", masked.String())
	}
	if cfg.Remote.APIKey != "sk-live" {
		t.Fatal("encode must not mutate the config")
	}

	var revealed bytes.Buffer
	if err := cfg.Encode(&revealed, true); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(revealed.String(), "sk-live") {
		t.Fatalf("expected api key in revealed output: %s", revealed.String())
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"unknown strategy":      func(c *config.Config) { c.Transcription.Strategy = "cloud" },
		"empty model":           func(c *config.Config) { c.Transcription.Model = " " },
		"zero window":           func(c *config.Config) { c.Local.WindowSeconds = 0 },
		"negative headroom":     func(c *config.Config) { c.Local.MemoryHeadroomMiB = -1 },
		"zero chunk size":       func(c *config.Config) { c.Remote.ChunkSizeKiB = 0 },
		"zero poll interval":    func(c *config.Config) { c.Remote.PollIntervalSeconds = 0 },
		"zero grant":            func(c *config.Config) { c.Background.GrantSeconds = 0 },
		"zero queue poll":       func(c *config.Config) { c.Workflow.QueuePollInterval = 0 },
		"remote without url":    func(c *config.Config) { c.Transcription.Strategy = "remote"; c.Remote.BaseURL = "" },
		"remote relative url":   func(c *config.Config) { c.Transcription.Strategy = "remote"; c.Remote.BaseURL = "transcribe/api" },
		"zero segment duration": func(c *config.Config) { c.Transcription.MaxSegmentSeconds = 0 },
	}
	for name, mutate := range cases {
		cfg := config.Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
