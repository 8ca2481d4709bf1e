package compositor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"narrator/internal/acquisition"
	"narrator/internal/fileutil"
	"narrator/internal/logging"
	"narrator/internal/services"
	"narrator/internal/speech"
)

const (
	stageName = "compositing"
	// OutputDir holds the deliverable inside the job working directory.
	OutputDir = "output"

	verticalWidth  = 1080
	verticalHeight = 1920
	logoWidth      = 160
	logoMargin     = 20
)

// Runner executes ffmpeg.
type Runner interface {
	Run(ctx context.Context, args ...string) error
}

// Settings configure the mux.
type Settings struct {
	DuckVolume     float64
	AudioBitrate   string
	OutputFormat   string
	AllowedFormats []string
	LogoDir        string
}

// Options are the per-job choices.
type Options struct {
	Style    string
	Vertical bool
}

// Result describes the composed deliverable.
type Result struct {
	Path      string `json:"path"`
	Plan      Plan   `json:"plan"`
	ReEncoded bool   `json:"re_encoded"`
}

// Compositor builds and runs the ffmpeg mux.
type Compositor struct {
	runner   Runner
	settings Settings
	logger   *slog.Logger
}

// New constructs a compositor.
func New(runner Runner, settings Settings, logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if settings.AudioBitrate == "" {
		settings.AudioBitrate = "192k"
	}
	settings.OutputFormat = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(settings.OutputFormat)), ".")
	if settings.OutputFormat == "" {
		settings.OutputFormat = "mp4"
	}
	if len(settings.AllowedFormats) == 0 {
		settings.AllowedFormats = []string{"mp4"}
	}
	return &Compositor{runner: runner, settings: settings, logger: logging.NewComponentLogger(logger, "compositor")}
}

// OutputName is the deliverable file name for a style.
func (c *Compositor) OutputName(style string) string {
	style = strings.TrimSpace(style)
	if style == "" {
		style = "commentary"
	}
	return fmt.Sprintf("final_video_%s.%s", style, c.settings.OutputFormat)
}

// Compose mixes clips over asset and writes the deliverable into outDir.
// The output only appears at its final path once ffmpeg has succeeded.
func (c *Compositor) Compose(ctx context.Context, asset acquisition.VideoAsset, clips []speech.AudioClip, opts Options, outDir string) (Result, error) {
	logger := logging.WithContext(ctx, c.logger)
	if !c.formatAllowed() {
		return Result{}, services.Wrap(services.ErrConfiguration, stageName, "output format",
			fmt.Sprintf("%q is not an allowed output format", c.settings.OutputFormat), nil)
	}
	if err := asset.Validate(); err != nil {
		return Result{}, services.Wrap(services.ErrComposition, stageName, "validate input", "", err)
	}
	plan := NewPlan(clips, asset.Duration)
	if len(plan.Audible()) == 0 {
		return Result{}, services.Wrap(services.ErrComposition, stageName, "plan", "no narration clip fits the video", nil)
	}
	for _, pl := range plan.Audible() {
		if _, err := os.Stat(pl.Path); err != nil {
			return Result{}, services.Wrap(services.ErrComposition, stageName, "validate input", fmt.Sprintf("clip %d", pl.Index), err)
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrComposition, stageName, "create output dir", "", err)
	}

	final := filepath.Join(outDir, c.OutputName(opts.Style))
	tmp := fileutil.TempPath(final)
	logo := c.logoFor(opts.Style)
	args, reencode := c.buildArgs(asset, plan, opts.Vertical, logo, tmp)

	if err := c.runner.Run(ctx, args...); err != nil {
		_ = os.Remove(tmp)
		if ctxErr := services.FromContext(ctx); ctxErr != nil {
			return Result{}, fmt.Errorf("%w: %w", ctxErr, err)
		}
		return Result{}, services.Wrap(services.ErrComposition, stageName, "ffmpeg", "", err)
	}
	if info, err := os.Stat(tmp); err != nil || info.Size() == 0 {
		_ = os.Remove(tmp)
		if err == nil {
			err = errors.New("empty output")
		}
		return Result{}, services.Wrap(services.ErrComposition, stageName, "verify output", "", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return Result{}, services.Wrap(services.ErrComposition, stageName, "finalize output", "", err)
	}

	for _, pl := range plan.Placements {
		if pl.Truncated {
			logger.Info("narration clip truncated to its window",
				logging.String(logging.FieldEventType, "clip_truncated"),
				logging.Int("segment", pl.Index),
				logging.Float64("clip_seconds", pl.ClipDuration),
				logging.Float64("window_seconds", pl.Window),
			)
		}
	}
	logger.Info("video composed",
		logging.String(logging.FieldEventType, "video_composed"),
		logging.String("output", final),
		logging.Int("clips", len(plan.Audible())),
		logging.Int("truncated", len(plan.Truncated())),
		logging.Bool("re_encoded", reencode),
		logging.Bool("logo", logo != ""),
	)
	return Result{Path: final, Plan: plan, ReEncoded: reencode}, nil
}

func (c *Compositor) formatAllowed() bool {
	for _, f := range c.settings.AllowedFormats {
		if strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(f), "."), c.settings.OutputFormat) {
			return true
		}
	}
	return false
}

func (c *Compositor) logoFor(style string) string {
	if c.settings.LogoDir == "" || style == "" {
		return ""
	}
	path := filepath.Join(c.settings.LogoDir, style, "logo.png")
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return path
	}
	return ""
}

// buildArgs renders the ffmpeg invocation. Inputs are the video, then one
// input per audible clip, then the logo when present.
func (c *Compositor) buildArgs(asset acquisition.VideoAsset, plan Plan, vertical bool, logo, out string) ([]string, bool) {
	placements := plan.Audible()
	args := []string{"-i", asset.Path}
	for _, pl := range placements {
		args = append(args, "-i", pl.Path)
	}
	logoInput := -1
	if logo != "" {
		logoInput = len(placements) + 1
		args = append(args, "-i", logo)
	}

	var graph []string
	narration := make([]string, 0, len(placements))
	for i, pl := range placements {
		label := fmt.Sprintf("n%d", i)
		delay := strconv.FormatInt(int64(pl.Offset*1000+0.5), 10)
		graph = append(graph, fmt.Sprintf("[%d:a]atrim=0:%s,asetpts=PTS-STARTPTS,adelay=%s|%s[%s]",
			i+1, formatSeconds(pl.Play), delay, delay, label))
		narration = append(narration, "["+label+"]")
	}
	graph = append(graph, fmt.Sprintf("%samix=inputs=%d:normalize=0:duration=longest[narration]",
		strings.Join(narration, ""), len(narration)))

	audioOut := "[narration]"
	if asset.HasAudio {
		windows := make([]string, 0, len(placements))
		for _, pl := range placements {
			windows = append(windows, fmt.Sprintf("between(t,%s,%s)", formatSeconds(pl.Offset), formatSeconds(pl.End())))
		}
		graph = append(graph,
			fmt.Sprintf("[0:a]volume=%s:enable='%s'[ducked]", formatSeconds(c.settings.DuckVolume), strings.Join(windows, "+")),
			"[ducked][narration]amix=inputs=2:normalize=0:duration=first[mix]",
		)
		audioOut = "[mix]"
	}

	videoOut := "0:v:0"
	reencode := vertical || logoInput >= 0
	if reencode {
		current := "[0:v]"
		if vertical {
			graph = append(graph, fmt.Sprintf(
				"%sscale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1[vpad]",
				current, verticalWidth, verticalHeight, verticalWidth, verticalHeight))
			current = "[vpad]"
		}
		if logoInput >= 0 {
			graph = append(graph,
				fmt.Sprintf("[%d:v]scale=%d:-1[logo]", logoInput, logoWidth),
				fmt.Sprintf("%s[logo]overlay=W-w-%d:%d[vout]", current, logoMargin, logoMargin),
			)
			current = "[vout]"
		}
		videoOut = current
	}

	args = append(args,
		"-filter_complex", strings.Join(graph, ";"),
		"-map", videoOut,
		"-map", audioOut,
	)
	if reencode {
		args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-crf", "20", "-pix_fmt", "yuv420p")
	} else {
		args = append(args, "-c:v", "copy")
	}
	args = append(args,
		"-c:a", "aac",
		"-b:a", c.settings.AudioBitrate,
		"-t", formatSeconds(plan.VideoDuration),
		"-movflags", "+faststart",
		out,
	)
	return args, reencode
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(round3(v), 'f', -1, 64)
}
