package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
)

// autoLanguage asks the recognizer to detect the spoken language.
const autoLanguage = "auto"

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	c.normalizeRemote()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}
	if c.Local.ModelsDir, err = expandPath(c.Local.ModelsDir); err != nil {
		return fmt.Errorf("models_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeTranscription() error {
	c.Transcription.Strategy = strings.ToLower(strings.TrimSpace(c.Transcription.Strategy))
	if c.Transcription.Strategy == "" {
		c.Transcription.Strategy = defaultStrategy
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	lang, err := NormalizeLanguage(c.Transcription.Language)
	if err != nil {
		return fmt.Errorf("transcription.language: %w", err)
	}
	c.Transcription.Language = lang
	return nil
}

// NormalizeLanguage canonicalizes a BCP 47 tag to its base language code.
// An empty value or "auto" selects automatic detection.
func NormalizeLanguage(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, autoLanguage) {
		return autoLanguage, nil
	}
	tag, err := language.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", value, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}

func (c *Config) normalizeRemote() {
	c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	c.Remote.APIKey = strings.TrimSpace(c.Remote.APIKey)
	if c.Remote.APIKey == "" {
		if value, ok := os.LookupEnv("SCRIBE_REMOTE_API_KEY"); ok {
			c.Remote.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
}
