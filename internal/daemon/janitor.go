package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"narrator/internal/logging"
	"narrator/internal/staging"
)

// HistoryPurger deletes finished job records older than a cutoff.
type HistoryPurger interface {
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// janitor sweeps what finished or crashed jobs leave behind.
type janitor struct {
	workRoot     string
	outputDir    string
	grace        time.Duration
	retention    time.Duration
	retainOutput bool
	history      HistoryPurger
	logger       *slog.Logger
	now          func() time.Time
}

// SweepResult summarizes one janitor pass.
type SweepResult struct {
	WorkDirs       int
	Outputs        int
	HistoryRecords int64
}

func (j *janitor) run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *janitor) sweep(ctx context.Context) SweepResult {
	var res SweepResult
	cleaned := staging.CleanStale(ctx, j.workRoot, j.grace, j.logger)
	res.WorkDirs = len(cleaned.Removed)
	for _, failure := range cleaned.Errors {
		logging.WarnWithContext(j.logger, "failed to remove stale working directory", "janitor_cleanup_failed",
			logging.String("path", failure.Path),
			logging.String(logging.FieldErrorHint, "check permissions under paths.work_dir"),
			logging.Error(failure.Error),
		)
	}

	if !j.retainOutput {
		res.Outputs = j.sweepOutputs()
	}

	if j.history != nil && j.retention > 0 {
		n, err := j.history.PurgeOlderThan(ctx, j.retention)
		if err != nil {
			logging.WarnWithContext(j.logger, "failed to purge job history", "history_purge_failed",
				logging.String(logging.FieldImpact, "old job records remain"),
				logging.Error(err),
			)
		}
		res.HistoryRecords = n
	}

	if res.WorkDirs > 0 || res.Outputs > 0 || res.HistoryRecords > 0 {
		j.logger.Info("janitor sweep complete",
			logging.String(logging.FieldEventType, "janitor_sweep"),
			logging.Int("work_dirs", res.WorkDirs),
			logging.Int("outputs", res.Outputs),
			logging.Int64("history_records", res.HistoryRecords),
		)
	}
	return res
}

// sweepOutputs removes per-job output directories older than the grace period.
func (j *janitor) sweepOutputs() int {
	entries, err := os.ReadDir(j.outputDir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.logger.Warn("failed to list output directory", logging.String("path", j.outputDir), logging.Error(err))
		}
		return 0
	}
	cutoff := j.now().Add(-j.grace)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.outputDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("failed to remove expired output", logging.String("path", path), logging.Error(err))
			continue
		}
		removed++
	}
	return removed
}
