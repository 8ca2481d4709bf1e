package staging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"narrator/internal/logging"
)

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("set old time: %v", err)
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldUnlockedDirectories(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "old-job")
	recentDir := filepath.Join(root, "recent-job")
	for _, d := range []string{oldDir, recentDir} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	age(t, oldDir, 2*time.Hour)

	result := CleanStale(context.Background(), root, time.Hour, nil)
	if len(result.Removed) != 1 || result.Removed[0] != oldDir {
		t.Fatalf("removed = %v", result.Removed)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatal("old directory should have been removed")
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Fatal("recent directory should still exist")
	}
	if _, err := os.Stat(oldDir + lockSuffix); !os.IsNotExist(err) {
		t.Fatal("lock file of removed directory left behind")
	}
}

func TestCleanStaleSkipsLockedDirectories(t *testing.T) {
	root := t.TempDir()
	dir, err := Acquire(root, "busy-job")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer dir.Release()
	age(t, dir.Path, 3*time.Hour)

	result := CleanStale(context.Background(), root, time.Hour, logging.NewNop())
	if len(result.Removed) != 0 || len(result.Skipped) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if _, err := os.Stat(dir.Path); err != nil {
		t.Fatal("locked directory was removed")
	}
}

func TestCleanStaleRemovesOrphanLocks(t *testing.T) {
	root := t.TempDir()
	orphan := filepath.Join(root, "gone.lock")
	if err := os.WriteFile(orphan, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	age(t, orphan, 2*time.Hour)
	CleanStale(context.Background(), root, time.Hour, nil)
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatal("orphan lock kept")
	}
}

func TestListDirectories(t *testing.T) {
	root := t.TempDir()
	dir, err := Acquire(root, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Release()
	if err := os.WriteFile(dir.Join("a.bin"), make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	dirs, err := ListDirectories(root)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 1 || dirs[0].Name != "job-1" || dirs[0].Size != 10 || !dirs[0].Locked {
		t.Fatalf("dirs = %+v", dirs)
	}
}

func TestAcquireKeepRelease(t *testing.T) {
	root := t.TempDir()
	dir, err := Acquire(root, "job-2")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := Acquire(root, "job-2"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Acquire: expected ErrBusy, got %v", err)
	}

	out := dir.Join("output", "final_video_news.mp4")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(out, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(t.TempDir(), "job-2", "final_video_news.mp4")
	if err := dir.Keep(out, dst); err != nil {
		t.Fatalf("Keep: %v", err)
	}
	if err := dir.Keep("/etc/hostname", dst); err == nil {
		t.Fatal("Keep accepted a path outside the directory")
	}

	if err := dir.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := dir.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if _, err := os.Stat(dir.Path); !os.IsNotExist(err) {
		t.Fatal("directory not removed")
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("kept file missing: %v", err)
	}
	if Locked(dir.Path) {
		t.Fatal("lock still held after release")
	}
}

func TestAcquireRejectsBadIDs(t *testing.T) {
	for _, id := range []string{"", " ", "..", "a/b"} {
		if _, err := Acquire(t.TempDir(), id); err == nil {
			t.Fatalf("Acquire(%q) succeeded", id)
		}
	}
}
