package testsupport

import (
	"context"
	"testing"
	"time"

	"narrator/internal/config"
	"narrator/internal/queue"
)

// MustOpenStore opens the job history store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg.StorePath())
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// FinishedJob records a terminal job row with the given status and output.
func FinishedJob(t testing.TB, store *queue.Store, id string, status queue.Status, output string) *queue.Job {
	t.Helper()

	ctx := context.Background()
	job := &queue.Job{
		ID:        id,
		Source:    "https://example.com/watch?v=" + id,
		Style:     "news",
		Language:  "en",
		State:     "created",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	job.Status = status
	job.State = "done"
	if status != queue.StatusSucceeded {
		job.State = string(status)
	}
	job.OutputPath = output
	if err := store.Complete(ctx, job); err != nil {
		t.Fatalf("store.Complete: %v", err)
	}
	return job
}
