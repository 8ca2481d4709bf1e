package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"narrator/internal/acquisition"
	"narrator/internal/analysis"
	"narrator/internal/commentary"
	"narrator/internal/compositor"
	"narrator/internal/cookies"
	"narrator/internal/logging"
	"narrator/internal/services"
	"narrator/internal/source"
	"narrator/internal/speech"
	"narrator/internal/stage"
)

// Acquirer obtains a playable local file for a source.
type Acquirer interface {
	Acquire(ctx context.Context, ref source.Reference, workdir string, jar *cookies.Jar) (acquisition.Result, error)
}

// FrameAnalyzer produces the visual analysis report.
type FrameAnalyzer interface {
	Analyze(ctx context.Context, asset acquisition.VideoAsset, workdir string) (analysis.Report, error)
}

// ScriptWriter generates the narration script.
type ScriptWriter interface {
	Generate(ctx context.Context, req commentary.Request, workdir string) (commentary.Script, error)
}

// VoiceSynthesizer renders one clip per script segment.
type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, script commentary.Script, dir string) ([]speech.AudioClip, error)
}

// Composer muxes narration over the source video.
type Composer interface {
	Compose(ctx context.Context, asset acquisition.VideoAsset, clips []speech.AudioClip, opts compositor.Options, outDir string) (compositor.Result, error)
}

// Components are the collaborators behind the five stages.
type Components struct {
	Acquirer    Acquirer
	Analyzer    FrameAnalyzer
	Writer      ScriptWriter
	Synthesizer VoiceSynthesizer
	Composer    Composer
	// WriterFor builds a writer for jobs that name their own provider or
	// model. Nil means such jobs fail at the scripting stage.
	WriterFor func(provider, model string) (ScriptWriter, error)
	// Voices maps a language code to the voice requested in scripts.
	Voices map[string]string
	// Probes run by HealthCheck, keyed by stage name.
	Probes map[string]func(context.Context) error
}

// Stages returns the pipeline handlers in execution order.
func (c Components) Stages() []stage.Handler {
	return []stage.Handler{
		&acquireStage{base: c.base(stage.Acquiring), acquirer: c.Acquirer},
		&analyzeStage{base: c.base(stage.Analyzing), analyzer: c.Analyzer},
		&scriptStage{base: c.base(stage.Scripting), writer: c.Writer, writerFor: c.WriterFor, voices: c.Voices},
		&synthesizeStage{base: c.base(stage.Synthesizing), synth: c.Synthesizer},
		&composeStage{base: c.base(stage.Compositing), composer: c.Composer},
	}
}

func (c Components) base(name string) base {
	return base{name: name, probe: c.Probes[name], logger: logging.NewNop()}
}

type base struct {
	name   string
	probe  func(context.Context) error
	logger *slog.Logger
}

func (b *base) Name() string { return b.name }

func (b *base) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

func (b *base) HealthCheck(ctx context.Context) stage.Health {
	if b.probe == nil {
		return stage.Healthy(b.name)
	}
	if err := b.probe(ctx); err != nil {
		return stage.Unhealthy(b.name, err.Error())
	}
	return stage.Healthy(b.name)
}

func (b *base) missing(what string) error {
	return services.Wrap(services.ErrValidation, b.name, "check inputs", what+" missing", nil)
}

type acquireStage struct {
	base
	acquirer Acquirer
}

func (s *acquireStage) Run(ctx context.Context, art *stage.Artifacts) error {
	res, err := s.acquirer.Acquire(ctx, art.Source, art.WorkDir, art.Jar)
	// The jar survives failed attempts so a retry does not provision again.
	if res.Jar != nil {
		art.Jar = res.Jar
	}
	if res.ProvisionerCalls > 0 {
		art.Note("browser session provisioned cookies")
	}
	if err != nil {
		return err
	}
	if err := res.Asset.Validate(); err != nil {
		return services.Wrap(services.ErrNoMediaFound, s.name, "validate asset", "", err)
	}
	asset := res.Asset
	art.Asset = &asset
	s.logger.Debug("asset ready",
		logging.String("path", asset.Path),
		logging.Float64("duration_seconds", asset.Duration),
		logging.Int("downloads", res.Downloads),
	)
	return nil
}

type analyzeStage struct {
	base
	analyzer FrameAnalyzer
}

func (s *analyzeStage) Run(ctx context.Context, art *stage.Artifacts) error {
	if art.Asset == nil {
		return s.missing("video asset")
	}
	report, err := s.analyzer.Analyze(ctx, *art.Asset, art.WorkDir)
	if err != nil {
		return err
	}
	if len(report.Succeeded()) == 0 {
		return services.Wrap(services.ErrAnalysisService, s.name, "validate report", "no frame was analyzed", nil)
	}
	if skipped := len(report.Frames) - len(report.Succeeded()); skipped > 0 {
		art.Note(fmt.Sprintf("%d of %d key frames skipped", skipped, len(report.Frames)))
	}
	art.Report = &report
	return nil
}

type scriptStage struct {
	base
	writer    ScriptWriter
	writerFor func(provider, model string) (ScriptWriter, error)
	voices    map[string]string
}

func (s *scriptStage) Run(ctx context.Context, art *stage.Artifacts) error {
	if art.Asset == nil {
		return s.missing("video asset")
	}
	if art.Report == nil {
		return s.missing("analysis report")
	}
	writer, err := s.writerForJob(art.Options)
	if err != nil {
		return err
	}
	script, err := writer.Generate(ctx, commentary.Request{
		Asset:    *art.Asset,
		Report:   *art.Report,
		Style:    art.Options.Style,
		Language: art.Options.Language,
		Voice:    s.voices[string(art.Options.Language)],
	}, art.WorkDir)
	if err != nil {
		return err
	}
	if err := script.Validate(art.Asset.Duration); err != nil {
		return services.Wrap(services.ErrGenerationService, s.name, "validate script", "", err)
	}
	art.Script = &script
	return nil
}

func (s *scriptStage) writerForJob(opts stage.Options) (ScriptWriter, error) {
	if opts.Provider == "" && opts.Model == "" {
		return s.writer, nil
	}
	if s.writerFor == nil {
		return nil, services.Wrap(services.ErrConfiguration, s.name, "select model", "per-job model selection is not available", nil)
	}
	writer, err := s.writerFor(string(opts.Provider), opts.Model)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, s.name, "select model", "", err)
	}
	s.logger.Info("script model selected",
		logging.String(logging.FieldEventType, "script_model_selected"),
		logging.String("provider", string(opts.Provider)),
		logging.String("model", opts.Model),
	)
	return writer, nil
}

type synthesizeStage struct {
	base
	synth VoiceSynthesizer
}

func (s *synthesizeStage) Run(ctx context.Context, art *stage.Artifacts) error {
	if art.Script == nil {
		return s.missing("script")
	}
	clips, err := s.synth.Synthesize(ctx, *art.Script, filepath.Join(art.WorkDir, speech.AudioDir))
	if err != nil {
		return err
	}
	if len(clips) != len(art.Script.Segments) {
		return services.Wrap(services.ErrSynthesisService, s.name, "validate clips",
			fmt.Sprintf("%d clips for %d segments", len(clips), len(art.Script.Segments)), nil)
	}
	for _, clip := range clips {
		if clip.Overruns() {
			art.Note(fmt.Sprintf("segment %d runs %.1fs over its window", clip.Index, clip.Duration-clip.Window))
		}
	}
	art.Clips = clips
	return nil
}

type composeStage struct {
	base
	composer Composer
}

func (s *composeStage) Run(ctx context.Context, art *stage.Artifacts) error {
	if art.Asset == nil {
		return s.missing("video asset")
	}
	if len(art.Clips) == 0 {
		return s.missing("audio clips")
	}
	res, err := s.composer.Compose(ctx, *art.Asset, art.Clips, compositor.Options{
		Style:    string(art.Options.Style),
		Vertical: art.Options.Vertical,
	}, filepath.Join(art.WorkDir, compositor.OutputDir))
	if err != nil {
		return err
	}
	info, err := os.Stat(res.Path)
	if err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrComposition, s.name, "validate output", "output missing or empty", err)
	}
	if truncated := res.Plan.Truncated(); len(truncated) > 0 {
		art.Note(fmt.Sprintf("segments %v truncated to fit their windows", truncated))
	}
	art.Output = &res
	return nil
}
