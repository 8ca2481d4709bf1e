// Package speech turns a narration script into one audio clip per segment.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"narrator/internal/commentary"
	"narrator/internal/fileutil"
	"narrator/internal/logging"
	"narrator/internal/media/ffprobe"
	"narrator/internal/services"
)

const stageName = "synthesizing"

// AudioDir holds synthesized clips inside the job working directory.
const AudioDir = "audio"

// Service converts text to encoded audio.
type Service interface {
	Synthesize(ctx context.Context, text, voice, language string) ([]byte, error)
}

// Measurer reports the duration of an audio file.
type Measurer interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// AudioClip is synthesized speech bound to exactly one script segment.
type AudioClip struct {
	Index    int     `json:"index"`
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Start    float64 `json:"start"`
	Window   float64 `json:"window"`
}

// Overruns reports whether the clip is longer than its segment window.
func (c AudioClip) Overruns() bool { return c.Duration > c.Window }

// Settings tune synthesis.
type Settings struct {
	Format      string
	Concurrency int
	// Voices maps a language code to a voice name. A segment's own voice wins.
	Voices map[string]string
}

// Synthesizer fans segments out to the speech service.
type Synthesizer struct {
	service  Service
	measurer Measurer
	settings Settings
	logger   *slog.Logger
}

// NewSynthesizer constructs a synthesizer.
func NewSynthesizer(service Service, measurer Measurer, settings Settings, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	settings.Format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(settings.Format)), ".")
	if settings.Format == "" {
		settings.Format = "mp3"
	}
	return &Synthesizer{
		service:  service,
		measurer: measurer,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "speech"),
	}
}

// ClipName returns the file name of the clip for a segment index.
func (s *Synthesizer) ClipName(index int) string {
	return fmt.Sprintf("clip_%03d.%s", index, s.settings.Format)
}

// Synthesize writes one clip per segment under dir and returns them in
// segment order. Clips are written atomically so a re-run replaces them.
func (s *Synthesizer) Synthesize(ctx context.Context, script commentary.Script, dir string) ([]AudioClip, error) {
	logger := logging.WithContext(ctx, s.logger)
	if len(script.Segments) == 0 {
		return nil, services.Wrap(services.ErrSynthesisService, stageName, "synthesize", "script has no segments", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrSynthesisService, stageName, "create audio dir", "", err)
	}
	started := time.Now()
	clips := make([]AudioClip, len(script.Segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.Concurrency)
	for i, seg := range script.Segments {
		g.Go(func() error {
			clip, err := s.synthesizeSegment(gctx, seg, string(script.Language), dir)
			if err != nil {
				return fmt.Errorf("segment %d: %w", seg.Index, err)
			}
			clips[i] = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := services.FromContext(ctx); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, services.Wrap(services.ErrSynthesisService, stageName, "synthesize", "", err)
	}

	overruns := 0
	total := 0.0
	for _, c := range clips {
		total += c.Duration
		if c.Overruns() {
			overruns++
		}
	}
	logger.Info("speech synthesized",
		logging.String(logging.FieldEventType, "speech_synthesized"),
		logging.Int("clips", len(clips)),
		logging.Float64("speech_seconds", total),
		logging.Int("overruns", overruns),
		logging.Duration("elapsed", time.Since(started)),
	)
	return clips, nil
}

func (s *Synthesizer) synthesizeSegment(ctx context.Context, seg commentary.Segment, language, dir string) (AudioClip, error) {
	voice := strings.TrimSpace(seg.Voice)
	if voice == "" {
		voice = s.settings.Voices[language]
	}
	audio, err := s.service.Synthesize(ctx, seg.Text, voice, language)
	if err != nil {
		return AudioClip{}, err
	}
	path := filepath.Join(dir, s.ClipName(seg.Index))
	if err := fileutil.WriteFileAtomic(path, audio, 0o644); err != nil {
		return AudioClip{}, fmt.Errorf("write clip: %w", err)
	}
	probe, err := s.measurer.Inspect(ctx, path)
	if err != nil {
		return AudioClip{}, fmt.Errorf("measure clip: %w", err)
	}
	duration := probe.DurationSeconds()
	if duration <= 0 {
		return AudioClip{}, fmt.Errorf("clip %s has no measurable duration", filepath.Base(path))
	}
	return AudioClip{
		Index:    seg.Index,
		Path:     path,
		Duration: duration,
		Start:    seg.Start,
		Window:   seg.Window(),
	}, nil
}
