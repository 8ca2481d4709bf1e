package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"narrator/internal/logging"
	"narrator/internal/staging"
	"narrator/internal/testsupport"
)

type fakePurger struct {
	age   time.Duration
	count int64
}

func (f *fakePurger) PurgeOlderThan(_ context.Context, age time.Duration) (int64, error) {
	f.age = age
	return f.count, nil
}

func TestJanitorSweep(t *testing.T) {
	root := t.TempDir()
	work := filepath.Join(root, "work")
	output := filepath.Join(root, "output")
	testsupport.Age(t, filepath.Join(work, "stale"), 2*time.Hour)
	testsupport.Age(t, filepath.Join(output, "old-job"), 2*time.Hour)
	testsupport.Age(t, filepath.Join(output, "new-job"), time.Minute)

	live, err := staging.Acquire(work, "live")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer live.Release()
	testsupport.Age(t, live.Path, 2*time.Hour)

	purger := &fakePurger{count: 3}
	j := &janitor{
		workRoot:  work,
		outputDir: output,
		grace:     time.Hour,
		retention: 30 * 24 * time.Hour,
		history:   purger,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	res := j.sweep(context.Background())
	if res.WorkDirs != 1 || res.Outputs != 1 || res.HistoryRecords != 3 {
		t.Fatalf("sweep = %+v", res)
	}
	if purger.age != 30*24*time.Hour {
		t.Fatalf("purge age = %s", purger.age)
	}
	if _, err := os.Stat(live.Path); err != nil {
		t.Fatalf("locked work dir removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(output, "new-job")); err != nil {
		t.Fatalf("fresh output removed: %v", err)
	}
}

func TestJanitorRetainsOutput(t *testing.T) {
	root := t.TempDir()
	output := filepath.Join(root, "output")
	testsupport.Age(t, filepath.Join(output, "old-job"), 48*time.Hour)
	j := &janitor{
		workRoot:     filepath.Join(root, "work"),
		outputDir:    output,
		grace:        time.Hour,
		retainOutput: true,
		logger:       logging.NewNop(),
		now:          time.Now,
	}
	if res := j.sweep(context.Background()); res.Outputs != 0 {
		t.Fatalf("outputs removed = %d", res.Outputs)
	}
	if _, err := os.Stat(filepath.Join(output, "old-job")); err != nil {
		t.Fatalf("retained output removed: %v", err)
	}
}
