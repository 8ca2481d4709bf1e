// Package ffmpeg runs the ffmpeg CLI for frame sampling, scene scoring and
// final muxing.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// FramePattern is the file name pattern used for sampled frames.
const FramePattern = "frame_%05d.jpg"

// Tool runs a fixed ffmpeg binary.
type Tool struct {
	Binary string
}

// Frame is one sampled still image.
type Frame struct {
	Index     int     `json:"index"`
	Path      string  `json:"path"`
	Timestamp float64 `json:"timestamp"`
}

// Score is the scene-change score of one sampled frame, in [0, 1].
type Score struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

func (t Tool) binary() string {
	if b := strings.TrimSpace(t.Binary); b != "" {
		return b
	}
	return "ffmpeg"
}

// Run executes ffmpeg with args. The returned error carries the tail of
// ffmpeg's stderr.
func (t Tool) Run(ctx context.Context, args ...string) error {
	full := append([]string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y"}, args...)
	cmd := commandContext(ctx, t.binary(), full...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), 5))
	}
	return nil
}

// SampleFrames writes one JPEG per 1/fps seconds of video into dir and
// returns them in timeline order. Re-running overwrites previous frames.
func (t Tool) SampleFrames(ctx context.Context, video, dir string, fps float64) ([]Frame, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("sample frames: fps must be positive, got %v", fps)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sample frames: %w", err)
	}
	stale, _ := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	for _, path := range stale {
		_ = os.Remove(path)
	}

	err := t.Run(ctx,
		"-i", video,
		"-vf", "fps="+formatFloat(fps),
		"-q:v", "3",
		filepath.Join(dir, FramePattern),
	)
	if err != nil {
		return nil, fmt.Errorf("sample frames: %w", err)
	}
	return ListFrames(dir, fps)
}

// ListFrames returns the sampled frames already present in dir.
func ListFrames(dir string, fps float64) ([]Frame, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, len(paths))
	for _, path := range paths {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "frame_"), ".jpg"))
		if err != nil || n < 1 {
			continue
		}
		frames = append(frames, Frame{
			Index:     n - 1,
			Path:      path,
			Timestamp: round3(float64(n-1) / fps),
		})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Index < frames[j].Index })
	return frames, nil
}

var (
	ptsPattern   = regexp.MustCompile(`pts_time:([0-9.]+)`)
	scorePattern = regexp.MustCompile(`lavfi\.scene_score=([0-9.]+)`)
)

// SceneScores samples video at fps and reports ffmpeg's scene-change score
// for every sampled frame.
func (t Tool) SceneScores(ctx context.Context, video string, fps float64) ([]Score, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("scene scores: fps must be positive, got %v", fps)
	}
	args := []string{
		"-hide_banner", "-nostdin", "-nostats", "-loglevel", "info",
		"-i", video,
		"-vf", "fps=" + formatFloat(fps) + ",select='gte(scene\\,0)',metadata=print",
		"-an", "-f", "null", "-",
	}
	cmd := commandContext(ctx, t.binary(), args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("scene scores: %w", ctx.Err())
		}
		return nil, fmt.Errorf("scene scores: %w: %s", err, tail(stderr.String(), 5))
	}
	return ParseSceneScores(stderr.String(), fps), nil
}

// ParseSceneScores extracts (pts_time, scene_score) pairs from ffmpeg
// metadata=print output.
func ParseSceneScores(output string, fps float64) []Score {
	var scores []Score
	pending := math.NaN()
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if m := ptsPattern.FindStringSubmatch(line); m != nil {
			if ts, err := strconv.ParseFloat(m[1], 64); err == nil {
				pending = ts
			}
			continue
		}
		m := scorePattern.FindStringSubmatch(line)
		if m == nil || math.IsNaN(pending) {
			continue
		}
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		scores = append(scores, Score{
			Index:     int(math.Round(pending * fps)),
			Timestamp: round3(pending),
			Value:     value,
		})
		pending = math.NaN()
	}
	return scores
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func tail(text string, n int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
