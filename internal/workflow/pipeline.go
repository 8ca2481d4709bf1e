package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"narrator/internal/acquisition"
	"narrator/internal/analysis"
	"narrator/internal/commentary"
	"narrator/internal/compositor"
	"narrator/internal/config"
	"narrator/internal/cookies"
	"narrator/internal/logging"
	"narrator/internal/media/ffmpeg"
	"narrator/internal/media/ffprobe"
	"narrator/internal/media/ytdlp"
	"narrator/internal/services/llm"
	"narrator/internal/services/tts"
	"narrator/internal/speech"
	"narrator/internal/stage"
	"narrator/internal/stageexec"
)

// TransferOptions applies the acquisition section of cfg to the default
// yt-dlp transfer profile.
func TransferOptions(cfg *config.Config) ytdlp.Options {
	opts := ytdlp.DefaultOptions()
	a := cfg.Acquisition
	if a.Format != "" {
		opts.Format = a.Format
	}
	if a.UserAgent != "" {
		opts.UserAgent = a.UserAgent
	}
	opts.SleepInterval = a.SleepIntervalMin
	opts.MaxSleepInterval = a.SleepIntervalMax
	if a.HTTPChunkSize > 0 {
		opts.HTTPChunkSize = a.HTTPChunkSize
	}
	if a.Retries > 0 {
		opts.Retries = a.Retries
	}
	if a.FragmentRetries > 0 {
		opts.FragmentRetries = a.FragmentRetries
	}
	if a.SocketTimeout > 0 {
		opts.SocketTimeout = a.SocketTimeout
	}
	if a.ConcurrentFragments > 0 {
		opts.ConcurrentFragments = a.ConcurrentFragments
	}
	return opts
}

// NewComponents wires the production collaborators described by cfg.
func NewComponents(cfg *config.Config, logger *slog.Logger) Components {
	if logger == nil {
		logger = logging.NewNop()
	}
	prober := ffprobe.Prober{Binary: cfg.FFprobeBinary()}
	tool := ffmpeg.Tool{Binary: cfg.FFmpegBinary()}

	var provisioner cookies.Provisioner = cookies.Disabled{}
	switch {
	case cfg.Browser.CookieFile != "":
		provisioner = cookies.File{Path: cfg.Browser.CookieFile}
	case cfg.Browser.Enabled:
		provisioner = cookies.NewBrowser(cookies.BrowserOptions{
			ExecPath:       cfg.Browser.ExecPath,
			Headless:       cfg.Browser.Headless,
			UserAgent:      cfg.Acquisition.UserAgent,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			Settle:         time.Duration(cfg.Browser.SettleSeconds) * time.Second,
			Timeout:        cfg.BrowserTimeout(),
		}, logger)
	}
	engine := acquisition.NewEngine(
		ytdlp.New(ytdlp.WithBinary(cfg.YtDlpBinary()), ytdlp.WithLogger(logger)),
		prober,
		provisioner,
		acquisition.Limits{
			MaxDuration:     cfg.MaxDuration(),
			MaxBytes:        cfg.Limits.MaxUploadBytes,
			DownloadTimeout: cfg.DownloadTimeout(),
		},
		acquisition.WithOptions(TransferOptions(cfg)),
		acquisition.WithRequestSleep(float64(cfg.Acquisition.SleepRequestsMin), float64(cfg.Acquisition.SleepRequestsMax)),
		acquisition.WithLogger(logger),
	)

	vision := cfg.VisionService()
	analyzer := analysis.NewAnalyzer(tool, analysis.NewLLMVision(llm.NewClient(llm.Config{
		APIKey:         vision.APIKey,
		BaseURL:        vision.BaseURL,
		Model:          vision.Model,
		TimeoutSeconds: vision.TimeoutSeconds,
	})), analysis.Settings{
		SampleFPS:      cfg.Vision.SampleFPS,
		SceneThreshold: cfg.Vision.SceneThreshold,
		MaxFrames:      cfg.Vision.MaxFrames,
		DetailedFrames: cfg.Vision.DetailedFrames,
		MinConfidence:  cfg.Vision.MinConfidence,
		Concurrency:    cfg.Vision.Concurrency,
	}, logger)

	newWriter := func(svc config.ServiceConfig) ScriptWriter {
		return commentary.NewGenerator(llm.NewClient(llm.Config{
			APIKey:         svc.APIKey,
			BaseURL:        svc.BaseURL,
			Model:          svc.Model,
			Temperature:    cfg.LLM.Temperature,
			TimeoutSeconds: svc.TimeoutSeconds,
		}), logger)
	}
	svc := cfg.LLMService()

	voices := map[string]string{
		string(commentary.English): cfg.Voice("en"),
		string(commentary.Urdu):    cfg.Voice("ur"),
	}
	speechSvc := cfg.TTSService()
	synth := speech.NewSynthesizer(tts.NewClient(tts.Config{
		APIKey:         speechSvc.APIKey,
		BaseURL:        speechSvc.BaseURL,
		Model:          speechSvc.Model,
		Format:         cfg.TTS.Format,
		TimeoutSeconds: speechSvc.TimeoutSeconds,
	}), prober, speech.Settings{
		Format:      cfg.TTS.Format,
		Concurrency: cfg.TTS.Concurrency,
		Voices:      voices,
	}, logger)

	composer := compositor.New(tool, compositor.Settings{
		DuckVolume:     cfg.Compositor.DuckVolume,
		AudioBitrate:   cfg.Compositor.AudioBitrate,
		OutputFormat:   cfg.Compositor.OutputFormat,
		AllowedFormats: cfg.Limits.AllowedOutputFormats,
		LogoDir:        cfg.Compositor.LogoDir,
	}, logger)

	return Components{
		Acquirer:    engine,
		Analyzer:    analyzer,
		Writer:      newWriter(svc),
		Synthesizer: synth,
		Composer:    composer,
		WriterFor: func(provider, model string) (ScriptWriter, error) {
			jobSvc, err := cfg.LLMServiceFor(provider, model)
			if err != nil {
				return nil, err
			}
			return newWriter(jobSvc), nil
		},
		Voices: voices,
		Probes: map[string]func(context.Context) error{
			stage.Acquiring:    binaryProbe(cfg.YtDlpBinary(), cfg.FFprobeBinary()),
			stage.Analyzing:    all(binaryProbe(cfg.FFmpegBinary()), keyProbe("vision", vision.APIKey)),
			stage.Scripting:    keyProbe("llm", svc.APIKey),
			stage.Synthesizing: all(binaryProbe(cfg.FFprobeBinary()), keyProbe("tts", speechSvc.APIKey)),
			stage.Compositing:  binaryProbe(cfg.FFmpegBinary()),
		},
	}
}

// SettingsFromConfig derives orchestrator settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	initial, maxBackoff := cfg.RetryBackoff()
	timeouts := make(map[string]time.Duration)
	for _, name := range []string{stage.Acquiring, stage.Analyzing, stage.Scripting, stage.Synthesizing, stage.Compositing} {
		timeouts[name] = cfg.StageTimeout(name)
	}
	return Settings{
		WorkRoot:      cfg.Paths.WorkDir,
		OutputDir:     cfg.Paths.OutputDir,
		JobTimeout:    cfg.JobTimeout(),
		StageTimeouts: timeouts,
		LogLevels:     cfg.Logging.StageOverrides,
		Policy: stageexec.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Initial:     initial,
			Max:         maxBackoff,
		},
	}
}

func binaryProbe(binaries ...string) func(context.Context) error {
	return func(context.Context) error {
		for _, bin := range binaries {
			if _, err := exec.LookPath(bin); err != nil {
				return fmt.Errorf("%s not found", bin)
			}
		}
		return nil
	}
}

func keyProbe(service, key string) func(context.Context) error {
	return func(context.Context) error {
		if key == "" {
			return fmt.Errorf("%s api key not configured", service)
		}
		return nil
	}
}

func all(probes ...func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, p := range probes {
			if err := p(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
