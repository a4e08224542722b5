package preflight

import (
	"context"
	"strings"

	"scribe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckModel(ctx, cfg.Local.ModelsDir, cfg.Transcription.Model),
	}
	if cfg.Transcription.Strategy == "remote" || strings.TrimSpace(cfg.Remote.BaseURL) != "" {
		results = append(results, CheckRemote(ctx, cfg.Remote.BaseURL, cfg.Remote.APIKey))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
