package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job                 Job
		vertical            int
		status              string
		stages, truncated   string
		durationMS          int64
		createdAt, updateAt string
	)
	if err := scanner.Scan(
		&job.ID, &job.Source, &job.Style, &job.Language, &vertical, &job.Provider, &job.Model, &status, &job.State,
		&job.FailedStage, &job.ErrorKind, &job.ErrorMessage, &job.OutputPath,
		&stages, &truncated, &durationMS, &createdAt, &updateAt,
	); err != nil {
		return nil, err
	}
	job.Vertical = vertical != 0
	job.Status = Status(status)
	job.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(stages), &job.Stages); err != nil {
		return nil, fmt.Errorf("decode stages of job %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(truncated), &job.Truncated); err != nil {
		return nil, fmt.Errorf("decode truncated segments of job %s: %w", job.ID, err)
	}
	var err error
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at of job %s: %w", job.ID, err)
	}
	if job.UpdatedAt, err = parseTime(updateAt); err != nil {
		return nil, fmt.Errorf("parse updated_at of job %s: %w", job.ID, err)
	}
	return &job, nil
}

func encodeReports(job *Job) (string, string, error) {
	stages := job.Stages
	if stages == nil {
		stages = []StageRecord{}
	}
	truncated := job.Truncated
	if truncated == nil {
		truncated = []int{}
	}
	s, err := json.Marshal(stages)
	if err != nil {
		return "", "", fmt.Errorf("encode stages: %w", err)
	}
	t, err := json.Marshal(truncated)
	if err != nil {
		return "", "", fmt.Errorf("encode truncated segments: %w", err)
	}
	return string(s), string(t), nil
}

// formatTime uses a fixed-width layout so text ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func placeholders(count int) string {
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
