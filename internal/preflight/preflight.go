package preflight

import (
	"context"

	"narrator/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Options select which checks run.
type Options struct {
	// Network enables checks that call the model endpoints.
	Network bool
}

// RunAll executes the applicable checks for cfg.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Work disk space", cfg.Paths.WorkDir, cfg.Limits.MinFreeDiskMB),
		CheckKey("TTS credentials", cfg.TTSService().APIKey),
	}
	llmSvc := cfg.LLMService()
	visionSvc := cfg.VisionService()
	if !opts.Network {
		results = append(results,
			CheckKey("Commentary LLM credentials", llmSvc.APIKey),
			CheckKey("Vision model credentials", visionSvc.APIKey),
		)
		return results
	}
	results = append(results, CheckLLM(ctx, "Commentary LLM", llmSvc))
	if visionUsesDistinctEndpoint(llmSvc, visionSvc) {
		results = append(results, CheckLLM(ctx, "Vision model", visionSvc))
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// visionUsesDistinctEndpoint is false when the commentary check already
// covers the vision credentials.
func visionUsesDistinctEndpoint(commentary, vision config.ServiceConfig) bool {
	return commentary.APIKey != vision.APIKey || commentary.BaseURL != vision.BaseURL
}
