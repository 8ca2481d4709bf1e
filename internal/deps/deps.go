// Package deps checks the external binaries the pipeline shells out to.
package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"narrator/internal/config"
)

var commandContext = exec.CommandContext

const versionTimeout = 5 * time.Second

// Requirement is one external binary narrator relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// VersionArg prints the version when passed alone. Empty skips the probe.
	VersionArg string
	Optional   bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the binaries cfg points at. Chrome is only required when
// browser provisioning is enabled.
func Requirements(cfg *config.Config) []Requirement {
	chrome := strings.TrimSpace(cfg.Browser.ExecPath)
	if chrome == "" {
		chrome = "google-chrome"
	}
	return []Requirement{
		{Name: "yt-dlp", Command: cfg.YtDlpBinary(), Description: "remote video acquisition", VersionArg: "--version"},
		{Name: "ffmpeg", Command: cfg.FFmpegBinary(), Description: "frame sampling and final mux", VersionArg: "-version"},
		{Name: "ffprobe", Command: cfg.FFprobeBinary(), Description: "media inspection", VersionArg: "-version"},
		{Name: "chrome", Command: chrome, Description: "cookie provisioning for protected hosts", Optional: !cfg.Browser.Enabled},
	}
}

// CheckBinaries evaluates requirements and reports availability.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		if req.VersionArg != "" {
			status.Version = probeVersion(ctx, path, req.VersionArg)
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the required entries that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}

// probeVersion returns the first output line, or "" when the binary fails.
func probeVersion(ctx context.Context, path, arg string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := commandContext(ctx, path, arg).Output()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}
