package commentary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"narrator/internal/acquisition"
	"narrator/internal/analysis"
	"narrator/internal/logging"
	"narrator/internal/services"
	"narrator/internal/textutil"
)

const stageName = "scripting"

// tightenFactor shrinks the word budget on the single regeneration.
const tightenFactor = 0.8

// JSONCompleter is the model call the generator depends on.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, system, user string, target any) error
}

// Request describes one script to generate.
type Request struct {
	Asset    acquisition.VideoAsset
	Report   analysis.Report
	Style    Style
	Language Language
	Voice    string
}

// Generator produces narration scripts.
type Generator struct {
	llm    JSONCompleter
	logger *slog.Logger
}

// NewGenerator constructs a generator.
func NewGenerator(llm JSONCompleter, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{llm: llm, logger: logging.NewComponentLogger(logger, "commentary")}
}

type modelReply struct {
	Segments []Segment `json:"segments"`
}

// Generate writes a script for req and saves it to workdir/script.json.
func (g *Generator) Generate(ctx context.Context, req Request, workdir string) (Script, error) {
	logger := logging.WithContext(ctx, g.logger)
	if req.Style == "" {
		req.Style = DefaultStyle
	}
	if req.Language == "" {
		req.Language = DefaultLanguage
	}
	if req.Style.Guide() == "" {
		return Script{}, services.Wrap(services.ErrValidation, stageName, "style", fmt.Sprintf("unsupported style %q", req.Style), nil)
	}

	duration := req.Asset.Duration
	target := TargetDuration(duration)
	input := promptInput{
		Title:       req.Asset.Title,
		Description: req.Asset.Description,
		Duration:    duration,
		Target:      target,
		MaxWords:    max(WordBudget(target, req.Language), 1),
		Language:    req.Language,
		Report:      req.Report,
	}
	system := systemPrompt(req.Style, req.Language)

	script, err := g.attempt(ctx, system, input, req)
	if err != nil {
		return Script{}, err
	}
	if script.EstimatedSeconds > target {
		logger.Info("script too long; regenerating with a tighter budget",
			logging.String(logging.FieldEventType, "script_regenerate"),
			logging.Float64("estimated_seconds", script.EstimatedSeconds),
			logging.Float64("target_seconds", target),
			logging.Int("word_count", script.WordCount),
		)
		input.Retry = true
		input.MaxWords = max(int(float64(input.MaxWords)*tightenFactor), 1)
		retry, err := g.attempt(ctx, system, input, req)
		switch {
		case err == nil:
			script = retry
		case services.FromContext(ctx) != nil:
			return Script{}, err
		default:
			logging.WarnWithContext(logger, "regeneration failed; keeping the first script", "script_regenerate_failed",
				logging.String(logging.FieldImpact, "narration may be truncated during composition"),
				logging.Error(err),
			)
		}
		script.Regenerated = true
	}

	if err := script.Validate(duration); err != nil {
		return Script{}, services.Wrap(services.ErrGenerationService, stageName, "validate", "", err)
	}
	if err := script.Save(filepath.Join(workdir, ScriptFile)); err != nil {
		return Script{}, services.Wrap(services.ErrGenerationService, stageName, "save script", "", err)
	}
	logger.Info("script generated",
		logging.String(logging.FieldEventType, "script_generated"),
		logging.String("style", string(script.Style)),
		logging.String("language", string(script.Language)),
		logging.Int("segments", len(script.Segments)),
		logging.Int("word_count", script.WordCount),
		logging.Float64("estimated_seconds", script.EstimatedSeconds),
	)
	return script, nil
}

func (g *Generator) attempt(ctx context.Context, system string, input promptInput, req Request) (Script, error) {
	var reply modelReply
	if err := g.llm.CompleteJSON(ctx, system, userPrompt(input), &reply); err != nil {
		if ctxErr := services.FromContext(ctx); ctxErr != nil {
			return Script{}, fmt.Errorf("%w: %w", ctxErr, err)
		}
		return Script{}, services.Wrap(services.ErrGenerationService, stageName, "complete", "", err)
	}
	segments := Normalize(reply.Segments, input.Duration)
	if len(segments) == 0 {
		return Script{}, services.Wrap(services.ErrGenerationService, stageName, "normalize",
			fmt.Sprintf("model returned %d segments and none fit the %.1fs video", len(reply.Segments), input.Duration),
			errors.New("no usable segments"))
	}
	for i := range segments {
		segments[i].Voice = req.Voice
	}
	script := Script{
		Style:         req.Style,
		Language:      req.Language,
		Segments:      segments,
		TargetSeconds: input.Target,
	}
	text := script.Text()
	script.WordCount = textutil.WordCount(text)
	script.EstimatedSeconds = round3(EstimateSeconds(text, req.Language))
	return script, nil
}
