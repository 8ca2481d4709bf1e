package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"narrator/internal/queue"
)

func openStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.Open(filepath.Join(t.TempDir(), "state", "jobs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateGetComplete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job := &queue.Job{
		ID:       "job-1",
		Source:   "https://twitter.com/u/status/1",
		Style:    "news",
		Language: "en",
		Vertical: true,
		Provider: "deepseek",
		Model:    "deepseek-chat",
		State:    "created",
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, job); err == nil {
		t.Fatal("duplicate id accepted")
	}
	if err := store.UpdateState(ctx, "job-1", "analyzing", queue.StatusRunning); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != "analyzing" || got.Status != queue.StatusRunning || !got.Vertical || got.Style != "news" ||
		got.Provider != "deepseek" || got.Model != "deepseek-chat" {
		t.Fatalf("job = %+v", got)
	}

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job.Status = queue.StatusFailed
	job.State = "failed"
	job.FailedStage = "synthesizing"
	job.ErrorKind = "SynthesisServiceError"
	job.ErrorMessage = "tts returned 500"
	job.Duration = 1500 * time.Millisecond
	job.Truncated = []int{2}
	job.Stages = []queue.StageRecord{
		{Stage: "acquiring", Status: "succeeded", Attempts: 1, StartedAt: started, DurationMS: 900, Notes: []string{"cookies obtained"}},
		{Stage: "synthesizing", Status: "failed", Attempts: 3, StartedAt: started, ErrorKind: "SynthesisServiceError"},
	}
	if err := store.Complete(ctx, job); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err = store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FailedStage != "synthesizing" || got.ErrorKind != "SynthesisServiceError" || got.Duration != job.Duration {
		t.Fatalf("job = %+v", got)
	}
	if len(got.Stages) != 2 || got.Stages[0].Notes[0] != "cookies obtained" || !got.Stages[1].StartedAt.Equal(started) {
		t.Fatalf("stages = %+v", got.Stages)
	}
	if len(got.Truncated) != 1 || got.Truncated[0] != 2 {
		t.Fatalf("truncated = %v", got.Truncated)
	}
}

func TestMissingJob(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if _, err := store.Get(ctx, "nope"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateState(ctx, "nope", "analyzing", queue.StatusRunning); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("UpdateState: expected ErrNotFound, got %v", err)
	}
	if err := store.Complete(ctx, &queue.Job{ID: "nope"}); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("Complete: expected ErrNotFound, got %v", err)
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, st := range []queue.Status{queue.StatusSucceeded, queue.StatusRunning, queue.StatusFailed} {
		job := &queue.Job{ID: "job-" + string(rune('a'+i)), Source: "x", Status: st, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	all, err := store.List(ctx, queue.Filter{}, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "job-c" || all[2].ID != "job-a" {
		t.Fatalf("order = %v", ids(all))
	}
	finished, err := store.List(ctx, queue.Filter{Statuses: []queue.Status{queue.StatusSucceeded, queue.StatusFailed}}, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(finished) != 1 || finished[0].ID != "job-c" {
		t.Fatalf("filtered = %v", ids(finished))
	}
}

func TestPurgeAndMarkInterrupted(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, job := range []*queue.Job{
		{ID: "done", Source: "x", Status: queue.StatusSucceeded},
		{ID: "live", Source: "x", Status: queue.StatusRunning},
	} {
		if err := store.Create(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.MarkInterrupted(ctx, "daemon restarted")
	if err != nil || n != 1 {
		t.Fatalf("MarkInterrupted = %d, %v", n, err)
	}
	live, _ := store.Get(ctx, "live")
	if live.Status != queue.StatusFailed || live.ErrorMessage != "daemon restarted" {
		t.Fatalf("live = %+v", live)
	}

	if n, err := store.PurgeOlderThan(ctx, time.Hour); err != nil || n != 0 {
		t.Fatalf("PurgeOlderThan(1h) = %d, %v", n, err)
	}
	time.Sleep(5 * time.Millisecond)
	if n, err := store.PurgeOlderThan(ctx, time.Millisecond); err != nil || n != 2 {
		t.Fatalf("PurgeOlderThan(1ms) = %d, %v", n, err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	store, err := queue.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Create(context.Background(), &queue.Job{ID: "persisted", Source: "x"}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	store, err = queue.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if _, err := store.Get(context.Background(), "persisted"); err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
}

func ids(jobs []queue.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
