package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"narrator/internal/acquisition"
	"narrator/internal/cookies"
	"narrator/internal/queue"
	"narrator/internal/services"
	"narrator/internal/stage"
	"narrator/internal/workflow"
)

func newJob(t *testing.T, style string) *workflow.Job {
	t.Helper()
	job, err := workflow.NewJob(workflow.Request{Source: "https://example.com/watch/clip", Style: style, Language: "en"})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return job
}

func assertWorkDirPurged(t *testing.T, job *workflow.Job) {
	t.Helper()
	dir := job.WorkDir()
	if dir == "" {
		t.Fatal("work dir was never assigned")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("work dir %s should be purged, stat err = %v", dir, err)
	}
}

func TestRunSucceedsAndDeliversOutput(t *testing.T) {
	root := t.TempDir()
	f := newFixture(root)
	store, err := queue.Open(filepath.Join(root, "state", "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	orch, err := f.orchestrator(workflow.WithStore(store))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	job := newJob(t, "funny")

	result := orch.Run(context.Background(), job)
	if !result.Succeeded() || result.State != workflow.StateDone {
		t.Fatalf("result = %+v", result)
	}
	want := filepath.Join(f.settings.OutputDir, job.ID, "final_video_funny.mp4")
	if result.OutputPath != want {
		t.Fatalf("output = %q, want %q", result.OutputPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("deliverable missing: %v", err)
	}
	if _, err := os.Stat(job.WorkDir()); !os.IsNotExist(err) {
		t.Fatalf("work dir should be purged, stat err = %v", err)
	}
	if len(result.Stages) != 5 {
		t.Fatalf("stages = %d", len(result.Stages))
	}
	if notes := result.Stages[1].Notes; len(notes) != 1 || !strings.Contains(notes[0], "1 of 2") {
		t.Fatalf("analysis notes = %v", notes)
	}
	if f.writer.seen.Voice != "alloy" {
		t.Fatalf("voice = %q", f.writer.seen.Voice)
	}

	rec, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	if rec.Status != queue.StatusSucceeded || rec.State != string(workflow.StateDone) || rec.OutputPath != want {
		t.Fatalf("record = %+v", rec)
	}
	if len(rec.Stages) != 5 {
		t.Fatalf("recorded stages = %d", len(rec.Stages))
	}
	if len(f.notifier.statuses) != 1 || f.notifier.statuses[0] != "succeeded" {
		t.Fatalf("notifications = %v", f.notifier.statuses)
	}
}

func TestRunRetriesTransientStageFailure(t *testing.T) {
	f := newFixture(t.TempDir())
	f.acquirer.errs = []error{services.Transient(errors.New("connection reset"))}
	f.settings.Policy.MaxAttempts = 3
	orch, err := f.orchestrator()
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	result := orch.Run(context.Background(), newJob(t, ""))
	if !result.Succeeded() {
		t.Fatalf("result = %+v", result)
	}
	if result.Stages[0].Attempts != 2 {
		t.Fatalf("acquire attempts = %d, want 2", result.Stages[0].Attempts)
	}
}

func TestRunReportsStageFailure(t *testing.T) {
	f := newFixture(t.TempDir())
	f.analyzer.err = services.Wrap(services.ErrAnalysisService, "analyzing", "label frames", "", errors.New("vision unavailable"))
	orch, err := f.orchestrator()
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	job := newJob(t, "")
	result := orch.Run(context.Background(), job)
	if result.Status != queue.StatusFailed || result.State != workflow.StateFailed {
		t.Fatalf("result = %+v", result)
	}
	if result.FailedStage != stage.Analyzing || result.ErrorKind != services.KindAnalysisService {
		t.Fatalf("failure = %s/%s", result.FailedStage, result.ErrorKind)
	}
	if len(result.Stages) != 2 || result.Stages[1].Status != queue.StatusFailed {
		t.Fatalf("stages = %+v", result.Stages)
	}
	if _, err := os.Stat(filepath.Join(f.settings.OutputDir, job.ID)); !os.IsNotExist(err) {
		t.Fatalf("no output expected, stat err = %v", err)
	}
	if f.notifier.last.ErrorKind != string(services.KindAnalysisService) {
		t.Fatalf("notified kind = %q", f.notifier.last.ErrorKind)
	}
	assertWorkDirPurged(t, job)
}

func TestRunClassifiesUnmarkedErrorsByStage(t *testing.T) {
	f := newFixture(t.TempDir())
	f.writer.err = errors.New("model returned nonsense")
	orch, err := f.orchestrator()
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	result := orch.Run(context.Background(), newJob(t, ""))
	if result.ErrorKind != services.KindGenerationService || result.FailedStage != stage.Scripting {
		t.Fatalf("failure = %s/%s", result.FailedStage, result.ErrorKind)
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t.TempDir())
	f.synth.block = true
	f.synth.entered = make(chan struct{})
	orch, err := f.orchestrator()
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-f.synth.entered
		cancel()
	}()
	job := newJob(t, "")
	result := orch.Run(ctx, job)
	if result.Status != queue.StatusCancelled || result.State != workflow.StateCancelled {
		t.Fatalf("result = %+v", result)
	}
	if result.ErrorKind != services.KindCancelled || result.FailedStage != stage.Synthesizing {
		t.Fatalf("failure = %s/%s", result.FailedStage, result.ErrorKind)
	}
	if len(f.notifier.statuses) != 1 || f.notifier.statuses[0] != "cancelled" {
		t.Fatalf("notifications = %v", f.notifier.statuses)
	}
	assertWorkDirPurged(t, job)
}

func TestRunJobTimeout(t *testing.T) {
	f := newFixture(t.TempDir())
	f.composer.block = true
	f.settings.JobTimeout = 200 * time.Millisecond
	orch, err := f.orchestrator()
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	job := newJob(t, "")
	result := orch.Run(context.Background(), job)
	if result.Status != queue.StatusFailed || result.ErrorKind != services.KindTimeout {
		t.Fatalf("result = %+v", result)
	}
	if result.FailedStage != stage.Compositing {
		t.Fatalf("failed stage = %q", result.FailedStage)
	}
	assertWorkDirPurged(t, job)
}

func TestRunAuthFailureThroughAcquisitionEngine(t *testing.T) {
	f := newFixture(t.TempDir())
	f.settings.Policy.MaxAttempts = 3
	fetcher := &authFetcher{}
	comps := f.components()
	comps.Acquirer = acquisition.NewEngine(fetcher, noInspector{}, cookies.Disabled{}, acquisition.Limits{
		MaxDuration: 120 * time.Second,
		MaxBytes:    50 << 20,
	})
	orch, err := workflow.NewOrchestrator(comps.Stages(), f.settings,
		workflow.WithNotifier(f.notifier),
		workflow.WithRetrySleep(func(context.Context, time.Duration) error { return nil }),
	)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	job := newJob(t, "")
	result := orch.Run(context.Background(), job)
	if result.Status != queue.StatusFailed || result.State != workflow.StateFailed {
		t.Fatalf("result = %+v", result)
	}
	if result.ErrorKind != services.KindAuthenticationRequired || result.FailedStage != stage.Acquiring {
		t.Fatalf("failure = %s/%s", result.FailedStage, result.ErrorKind)
	}
	if result.Stages[0].Attempts != 1 || fetcher.lookups != 1 || fetcher.downloads != 0 {
		t.Fatalf("attempts=%d lookups=%d downloads=%d", result.Stages[0].Attempts, fetcher.lookups, fetcher.downloads)
	}
	if state, status := job.State(); state != workflow.StateFailed || status != queue.StatusFailed {
		t.Fatalf("job state = %s/%s", state, status)
	}
	assertWorkDirPurged(t, job)
}

func TestRunUsesPerJobScriptModel(t *testing.T) {
	f := newFixture(t.TempDir())
	chosen := &fakeWriter{}
	var picked string
	f.writerFor = func(provider, model string) (workflow.ScriptWriter, error) {
		picked = provider + "/" + model
		return chosen, nil
	}
	orch, err := f.orchestrator()
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	job, err := workflow.NewJob(workflow.Request{
		Source:   "https://example.com/watch/clip",
		Language: "en",
		Provider: "DeepSeek",
		Model:    " deepseek-reasoner ",
	})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	result := orch.Run(context.Background(), job)
	if !result.Succeeded() {
		t.Fatalf("result = %+v", result)
	}
	if picked != "deepseek/deepseek-reasoner" {
		t.Fatalf("writer chosen for %q", picked)
	}
	if chosen.seen.Asset.Path == "" || f.writer.seen.Asset.Path != "" {
		t.Fatal("script was not written by the per-job writer")
	}
}

func TestRunFailsWhenJobModelUnavailable(t *testing.T) {
	f := newFixture(t.TempDir())
	f.writerFor = func(provider, _ string) (workflow.ScriptWriter, error) {
		return nil, errors.New("llm provider \"" + provider + "\" has no api key configured")
	}
	f.settings.Policy.MaxAttempts = 3
	orch, err := f.orchestrator()
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	job, err := workflow.NewJob(workflow.Request{Source: "https://example.com/watch/clip", Provider: "deepseek"})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	result := orch.Run(context.Background(), job)
	if result.ErrorKind != services.KindConfiguration || result.FailedStage != stage.Scripting {
		t.Fatalf("failure = %s/%s", result.FailedStage, result.ErrorKind)
	}
	if result.Stages[2].Attempts != 1 {
		t.Fatalf("scripting attempts = %d, want 1", result.Stages[2].Attempts)
	}
}

func TestRunFlagsTruncatedSegments(t *testing.T) {
	f := newFixture(t.TempDir())
	f.synth.overrun = 3
	orch, err := f.orchestrator()
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	result := orch.Run(context.Background(), newJob(t, ""))
	if !result.Succeeded() {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Truncated) != 1 || result.Truncated[0] != 1 {
		t.Fatalf("truncated = %v", result.Truncated)
	}
	if notes := result.Stages[3].Notes; len(notes) != 1 || !strings.Contains(notes[0], "segment 1") {
		t.Fatalf("synthesis notes = %v", notes)
	}
	if notes := result.Stages[4].Notes; len(notes) != 1 || !strings.Contains(notes[0], "truncated") {
		t.Fatalf("composition notes = %v", notes)
	}
}

func TestNewOrchestratorRejectsUnknownStage(t *testing.T) {
	f := newFixture(t.TempDir())
	stages := append(f.components().Stages(), unknownStage{})
	if _, err := workflow.NewOrchestrator(stages, f.settings); err == nil {
		t.Fatal("expected error for stage without pipeline state")
	}
}

func TestHealthCheckReportsStageReadiness(t *testing.T) {
	f := newFixture(t.TempDir())
	orch, err := f.orchestrator()
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	health := orch.HealthCheck(context.Background())
	if len(health) != 5 {
		t.Fatalf("health entries = %d", len(health))
	}
	for _, h := range health {
		if want := h.Name != stage.Scripting; h.Ready != want {
			t.Fatalf("%s ready = %v", h.Name, h.Ready)
		}
	}
}

type unknownStage struct{}

func (unknownStage) Name() string                                { return "publishing" }
func (unknownStage) Run(context.Context, *stage.Artifacts) error { return nil }
func (unknownStage) HealthCheck(context.Context) stage.Health    { return stage.Healthy("publishing") }
