package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"narrator/internal/acquisition"
	"narrator/internal/analysis"
	"narrator/internal/commentary"
	"narrator/internal/compositor"
	"narrator/internal/cookies"
	"narrator/internal/media/ffprobe"
	"narrator/internal/media/ytdlp"
	"narrator/internal/notifications"
	"narrator/internal/source"
	"narrator/internal/speech"
	"narrator/internal/workflow"
)

const videoSeconds = 20.0

type fakeAcquirer struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	active  atomic.Int32
	peak    atomic.Int32
	hold    chan struct{}
	started chan struct{}
}

func (f *fakeAcquirer) Acquire(ctx context.Context, _ source.Reference, workdir string, _ *cookies.Jar) (acquisition.Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.hold != nil {
		select {
		case <-f.hold:
		case <-ctx.Done():
			return acquisition.Result{}, ctx.Err()
		}
	}
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	f.mu.Unlock()
	if err != nil {
		return acquisition.Result{}, err
	}
	dir := filepath.Join(workdir, acquisition.VideoDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return acquisition.Result{}, err
	}
	path := filepath.Join(dir, "source.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		return acquisition.Result{}, err
	}
	return acquisition.Result{Asset: acquisition.VideoAsset{Path: path, Duration: videoSeconds, HasAudio: true, Title: "clip"}}, nil
}

// authFetcher rejects every request the way yt-dlp does for login-walled
// posts.
type authFetcher struct {
	lookups   int
	downloads int
}

func (f *authFetcher) Probe(context.Context, string, ytdlp.Options) (ytdlp.Info, error) {
	f.lookups++
	return ytdlp.Info{}, &ytdlp.Error{Op: "probe", Class: ytdlp.FailureAuth, Stderr: "ERROR: login required", Err: errors.New("exit status 1")}
}

func (f *authFetcher) Download(context.Context, string, string, ytdlp.Options, func(ytdlp.Progress)) error {
	f.downloads++
	return errors.New("download must not run")
}

type noInspector struct{}

func (noInspector) Inspect(context.Context, string) (ffprobe.Result, error) {
	return ffprobe.Result{}, errors.New("inspect must not run")
}

type fakeAnalyzer struct{ err error }

func (f *fakeAnalyzer) Analyze(context.Context, acquisition.VideoAsset, string) (analysis.Report, error) {
	if f.err != nil {
		return analysis.Report{}, f.err
	}
	return analysis.Report{
		Title:    "clip",
		Duration: videoSeconds,
		Frames: []analysis.FrameResult{
			{Index: 1, Timestamp: 2, Labels: []analysis.Label{{Name: "street", Confidence: 0.9}}},
			{Index: 2, Timestamp: 9, Error: "vision timeout"},
		},
	}, nil
}

type fakeWriter struct {
	err  error
	seen commentary.Request
}

func (f *fakeWriter) Generate(_ context.Context, req commentary.Request, _ string) (commentary.Script, error) {
	f.seen = req
	if f.err != nil {
		return commentary.Script{}, f.err
	}
	return commentary.Script{
		Style:    req.Style,
		Language: req.Language,
		Segments: []commentary.Segment{
			{Index: 0, Text: "A quiet street at dawn.", Start: 0, End: 6},
			{Index: 1, Text: "Traffic begins to build.", Start: 8, End: 14},
		},
	}, nil
}

type fakeSynth struct {
	// overrun adds seconds to the second clip.
	overrun float64
	block   bool
	entered chan struct{}
}

func (f *fakeSynth) Synthesize(ctx context.Context, script commentary.Script, dir string) ([]speech.AudioClip, error) {
	if f.block {
		if f.entered != nil {
			close(f.entered)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	clips := make([]speech.AudioClip, 0, len(script.Segments))
	for i, seg := range script.Segments {
		path := filepath.Join(dir, "clip.mp3")
		if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
			return nil, err
		}
		duration := seg.Window() - 1
		if i == 1 {
			duration += f.overrun
		}
		clips = append(clips, speech.AudioClip{Index: i, Path: path, Duration: duration, Start: seg.Start, Window: seg.Window()})
	}
	return clips, nil
}

type fakeComposer struct {
	block bool
}

func (f *fakeComposer) Compose(ctx context.Context, asset acquisition.VideoAsset, clips []speech.AudioClip, opts compositor.Options, outDir string) (compositor.Result, error) {
	if f.block {
		<-ctx.Done()
		return compositor.Result{}, ctx.Err()
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return compositor.Result{}, err
	}
	path := filepath.Join(outDir, "final_video_"+opts.Style+".mp4")
	if err := os.WriteFile(path, []byte("final"), 0o644); err != nil {
		return compositor.Result{}, err
	}
	return compositor.Result{Path: path, Plan: compositor.NewPlan(clips, asset.Duration)}, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []string
	last     notifications.Outcome
}

func (r *recordingNotifier) record(status string, out notifications.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.last = out
	return nil
}

func (r *recordingNotifier) NotifyJobSucceeded(_ context.Context, out notifications.Outcome) error {
	return r.record("succeeded", out)
}

func (r *recordingNotifier) NotifyJobFailed(_ context.Context, out notifications.Outcome) error {
	return r.record("failed", out)
}

func (r *recordingNotifier) NotifyJobCancelled(_ context.Context, out notifications.Outcome) error {
	return r.record("cancelled", out)
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

type fixture struct {
	acquirer  *fakeAcquirer
	analyzer  *fakeAnalyzer
	writer    *fakeWriter
	writerFor func(provider, model string) (workflow.ScriptWriter, error)
	synth     *fakeSynth
	composer  *fakeComposer
	notifier  *recordingNotifier
	settings  workflow.Settings
}

func newFixture(root string) *fixture {
	return &fixture{
		acquirer: &fakeAcquirer{},
		analyzer: &fakeAnalyzer{},
		writer:   &fakeWriter{},
		synth:    &fakeSynth{},
		composer: &fakeComposer{},
		notifier: &recordingNotifier{},
		settings: workflow.Settings{
			WorkRoot:  filepath.Join(root, "work"),
			OutputDir: filepath.Join(root, "output"),
		},
	}
}

func (f *fixture) components() workflow.Components {
	return workflow.Components{
		Acquirer:    f.acquirer,
		Analyzer:    f.analyzer,
		Writer:      f.writer,
		Synthesizer: f.synth,
		Composer:    f.composer,
		WriterFor:   f.writerFor,
		Voices:      map[string]string{"en": "alloy", "ur": "nova"},
		Probes: map[string]func(context.Context) error{
			"scripting": func(context.Context) error { return errors.New("llm api key not configured") },
		},
	}
}

func (f *fixture) orchestrator(opts ...workflow.Option) (*workflow.Orchestrator, error) {
	opts = append([]workflow.Option{
		workflow.WithNotifier(f.notifier),
		workflow.WithRetrySleep(func(context.Context, time.Duration) error { return nil }),
	}, opts...)
	return workflow.NewOrchestrator(f.components().Stages(), f.settings, opts...)
}
