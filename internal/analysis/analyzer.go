package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"narrator/internal/acquisition"
	"narrator/internal/logging"
	"narrator/internal/media/ffmpeg"
	"narrator/internal/services"
)

const (
	stageName = "analyzing"
	// FramesDir holds sampled frames inside the job working directory.
	FramesDir = "frames"
)

// Sampler extracts frames and scene scores from a video.
type Sampler interface {
	SampleFrames(ctx context.Context, video, dir string, fps float64) ([]ffmpeg.Frame, error)
	SceneScores(ctx context.Context, video string, fps float64) ([]ffmpeg.Score, error)
}

// Settings tune frame selection and labelling.
type Settings struct {
	SampleFPS      float64
	SceneThreshold float64
	MaxFrames      int
	DetailedFrames int
	MinConfidence  float64
	Concurrency    int
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		SampleFPS:      1,
		SceneThreshold: 0.3,
		MaxFrames:      12,
		DetailedFrames: 3,
		MinConfidence:  0.7,
		Concurrency:    4,
	}
}

// Analyzer produces a Report for an acquired asset.
type Analyzer struct {
	sampler  Sampler
	vision   VisionService
	settings Settings
	logger   *slog.Logger
}

// NewAnalyzer constructs an analyzer.
func NewAnalyzer(sampler Sampler, vision VisionService, settings Settings, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	if settings.SampleFPS <= 0 {
		settings.SampleFPS = 1
	}
	return &Analyzer{
		sampler:  sampler,
		vision:   vision,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "analysis"),
	}
}

// Analyze samples, selects and labels key frames of asset and writes the
// report to workdir/analysis.json.
func (a *Analyzer) Analyze(ctx context.Context, asset acquisition.VideoAsset, workdir string) (Report, error) {
	logger := logging.WithContext(ctx, a.logger)
	frames, err := a.sampler.SampleFrames(ctx, asset.Path, filepath.Join(workdir, FramesDir), a.settings.SampleFPS)
	if err != nil {
		return Report{}, a.fail(ctx, "sample frames", err)
	}
	if len(frames) == 0 {
		return Report{}, services.Wrap(services.ErrAnalysisService, stageName, "sample frames", "ffmpeg produced no frames", nil)
	}

	scores, err := a.sampler.SceneScores(ctx, asset.Path, a.settings.SampleFPS)
	if err != nil {
		if ctxErr := services.FromContext(ctx); ctxErr != nil {
			return Report{}, ctxErr
		}
		logging.WarnWithContext(logger, "scene scoring failed; selecting frames by spacing only", "scene_scores_unavailable",
			logging.String(logging.FieldErrorHint, "check the ffmpeg build supports the scene filter"),
			logging.String(logging.FieldImpact, "key frames ignore scene changes"),
			logging.Error(err),
		)
		scores = nil
	}

	keyFrames := SelectKeyFrames(Candidates(frames, scores, a.settings.SceneThreshold), a.settings.MaxFrames)
	logger.Info("key frames selected",
		logging.String(logging.FieldEventType, "key_frames_selected"),
		logging.Int("sampled", len(frames)),
		logging.Int("selected", len(keyFrames)),
	)

	report := Report{
		Title:       asset.Title,
		Description: asset.Description,
		Duration:    asset.Duration,
		Frames:      make([]FrameResult, len(keyFrames)),
	}
	for i, c := range keyFrames {
		report.Frames[i] = FrameResult{
			Index:       c.Frame.Index,
			Path:        c.Frame.Path,
			Timestamp:   c.Frame.Timestamp,
			Score:       c.Score,
			SceneChange: c.SceneChange,
		}
	}

	failures := a.label(ctx, &report)
	if err := services.FromContext(ctx); err != nil {
		return Report{}, err
	}
	succeeded := report.Succeeded()
	if len(succeeded) == 0 {
		return Report{}, a.fail(ctx, "label frames", errors.Join(failures...))
	}
	if len(failures) > 0 {
		logging.WarnWithContext(logger, "some frames could not be labelled", "frames_skipped",
			logging.Int("failed", len(failures)),
			logging.Int("succeeded", len(succeeded)),
			logging.String(logging.FieldImpact, "commentary uses the remaining frames"),
			logging.Error(failures[0]),
		)
	}

	labelGroups := make([][]Label, 0, len(succeeded))
	objectGroups := make([][]Label, 0, len(succeeded))
	for _, f := range succeeded {
		labelGroups = append(labelGroups, f.Labels)
		objectGroups = append(objectGroups, f.Objects)
	}
	report.Labels = Aggregate(labelGroups...)
	report.Objects = Aggregate(objectGroups...)

	a.describe(ctx, &report)
	if err := services.FromContext(ctx); err != nil {
		return Report{}, err
	}

	if err := report.Save(filepath.Join(workdir, ReportFile)); err != nil {
		return Report{}, services.Wrap(services.ErrAnalysisService, stageName, "save report", "", err)
	}
	logger.Info("analysis complete",
		logging.String(logging.FieldEventType, "analysis_complete"),
		logging.Int("frames", len(succeeded)),
		logging.Int("labels", len(report.Labels)),
		logging.Int("objects", len(report.Objects)),
		logging.Int("described", len(report.Descriptions())),
	)
	return report, nil
}

// label runs label mode on every key frame in parallel. Results are written
// back by position so timeline order is preserved.
func (a *Analyzer) label(ctx context.Context, report *Report) []error {
	errs := make([]error, len(report.Frames))
	var g errgroup.Group
	g.SetLimit(a.settings.Concurrency)
	for i := range report.Frames {
		frame := &report.Frames[i]
		g.Go(func() error {
			desc, err := a.vision.Describe(ctx, FrameRequest{
				Path:        frame.Path,
				Timestamp:   frame.Timestamp,
				Title:       report.Title,
				Description: report.Description,
			})
			if err != nil {
				frame.Error = err.Error()
				errs[i] = fmt.Errorf("frame %d at %.1fs: %w", frame.Index, frame.Timestamp, err)
				return nil
			}
			frame.Labels = FilterLabels(desc.Labels, a.settings.MinConfidence)
			frame.Objects = FilterLabels(desc.Objects, a.settings.MinConfidence)
			frame.Confidence = desc.Confidence
			return nil
		})
	}
	_ = g.Wait()
	var failures []error
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}

// describe adds detailed descriptions to the most confident frames. Failures
// leave the description empty.
func (a *Analyzer) describe(ctx context.Context, report *Report) {
	if a.settings.DetailedFrames <= 0 {
		return
	}
	positions := make([]int, 0, len(report.Frames))
	for i, f := range report.Frames {
		if f.OK() {
			positions = append(positions, i)
		}
	}
	sort.SliceStable(positions, func(i, j int) bool {
		return report.Frames[positions[i]].Confidence > report.Frames[positions[j]].Confidence
	})
	if len(positions) > a.settings.DetailedFrames {
		positions = positions[:a.settings.DetailedFrames]
	}

	logger := logging.WithContext(ctx, a.logger)
	var g errgroup.Group
	g.SetLimit(a.settings.Concurrency)
	for _, pos := range positions {
		frame := &report.Frames[pos]
		g.Go(func() error {
			desc, err := a.vision.Describe(ctx, FrameRequest{
				Path:        frame.Path,
				Timestamp:   frame.Timestamp,
				Title:       report.Title,
				Description: report.Description,
				Detailed:    true,
				Context: &Aggregated{
					Labels:       report.Labels,
					Objects:      report.Objects,
					FrameLabels:  frame.Labels,
					FrameObjects: frame.Objects,
				},
			})
			if err != nil {
				logger.Warn("detailed frame description failed",
					logging.String(logging.FieldEventType, "frame_description_failed"),
					logging.Float64("timestamp", frame.Timestamp),
					logging.String(logging.FieldImpact, "frame keeps labels only"),
					logging.Error(err),
				)
				return nil
			}
			frame.Description = desc.Description
			return nil
		})
	}
	_ = g.Wait()
}

func (a *Analyzer) fail(ctx context.Context, op string, err error) error {
	if ctxErr := services.FromContext(ctx); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return services.Wrap(services.ErrAnalysisService, stageName, op, "", err)
}
