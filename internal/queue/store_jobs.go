package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const jobColumns = `id, source, style, language, vertical, provider, model, status, state, failed_stage,
	error_kind, error_message, output_path, stages_json, truncated_json, duration_ms, created_at, updated_at`

// Create inserts a new job row. CreatedAt defaults to now.
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return errors.New("queue: job id required")
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = StatusPending
	}
	stages, truncated, err := encodeReports(job)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Source, job.Style, job.Language, boolToInt(job.Vertical), job.Provider, job.Model,
		string(job.Status), job.State,
		job.FailedStage, job.ErrorKind, job.ErrorMessage, job.OutputPath, stages, truncated,
		job.Duration.Milliseconds(), formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateState records a state transition of a running job.
func (s *Store) UpdateState(ctx context.Context, id, state string, status Status) error {
	res, err := s.exec(ctx, `UPDATE jobs SET state = ?, status = ?, updated_at = ? WHERE id = ?`,
		state, string(status), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Complete stores the terminal outcome of a job.
func (s *Store) Complete(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("queue: job required")
	}
	job.UpdatedAt = time.Now().UTC()
	stages, truncated, err := encodeReports(job)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `UPDATE jobs SET status = ?, state = ?, failed_stage = ?, error_kind = ?,
		error_message = ?, output_path = ?, stages_json = ?, truncated_json = ?, duration_ms = ?, updated_at = ?
		WHERE id = ?`,
		string(job.Status), job.State, job.FailedStage, job.ErrorKind, job.ErrorMessage, job.OutputPath,
		stages, truncated, job.Duration.Milliseconds(), formatTime(job.UpdatedAt), job.ID,
	)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	return requireRow(res, job.ID)
}

// Get returns one job or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, err
}

// List returns jobs matching filter, newest first. A limit of zero or less
// returns every match.
func (s *Store) List(ctx context.Context, filter Filter, limit int) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(filter.Statuses)+1)
	if len(filter.Statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(filter.Statuses)) + `)`
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// PurgeOlderThan deletes finished jobs last updated more than age ago.
func (s *Store) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().UTC().Add(-age))
	res, err := s.exec(ctx, `DELETE FROM jobs WHERE status IN (?, ?, ?) AND updated_at < ?`,
		string(StatusSucceeded), string(StatusFailed), string(StatusCancelled), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	return res.RowsAffected()
}

// MarkInterrupted fails every job left pending or running by a previous
// process. It returns the number of rows changed.
func (s *Store) MarkInterrupted(ctx context.Context, message string) (int64, error) {
	res, err := s.exec(ctx, `UPDATE jobs SET status = ?, state = 'failed', error_message = ?, updated_at = ?
		WHERE status IN (?, ?)`,
		string(StatusFailed), message, formatTime(time.Now().UTC()), string(StatusPending), string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("mark interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
