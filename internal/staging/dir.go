// Package staging owns per-job working directories. Each live directory is
// guarded by an exclusive lock file beside it so the janitor never removes a
// directory a running job still uses.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"narrator/internal/fileutil"
)

const lockSuffix = ".lock"

// ErrBusy is returned when another process holds the job directory lock.
var ErrBusy = errors.New("job working directory is locked")

// Dir is an acquired job working directory.
type Dir struct {
	Path string

	lock     *flock.Flock
	mu       sync.Mutex
	released bool
}

// Acquire creates root/<jobID> and takes its lock. A leftover directory from
// an earlier run with the same id is reused.
func Acquire(root, jobID string) (*Dir, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return nil, fmt.Errorf("invalid job id %q", jobID)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	path := filepath.Join(root, jobID)
	lock := flock.New(path + lockSuffix)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBusy, path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	return &Dir{Path: path, lock: lock}, nil
}

// Join returns a path inside the directory.
func (d *Dir) Join(elem ...string) string {
	return filepath.Join(append([]string{d.Path}, elem...)...)
}

// Keep moves a file out of the directory to dst before Release deletes it.
func (d *Dir) Keep(path, dst string) error {
	rel, err := filepath.Rel(d.Path, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s is outside %s", path, d.Path)
	}
	return fileutil.MoveFile(path, dst)
}

// Release removes the directory and its lock file. It is safe to call more
// than once.
func (d *Dir) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil
	}
	d.released = true
	err := os.RemoveAll(d.Path)
	_ = os.Remove(d.lock.Path())
	if uerr := d.lock.Unlock(); uerr != nil && err == nil {
		err = uerr
	}
	return err
}

// Locked reports whether a live job holds the lock for dir.
func Locked(dir string) bool {
	lock := flock.New(dir + lockSuffix)
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if !ok {
		return true
	}
	_ = lock.Unlock()
	return false
}
