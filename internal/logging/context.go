package logging

import (
	"context"
	"log/slog"

	"narrator/internal/services"
)

// Field names shared by every component so the JSON log can be filtered
// consistently.
const (
	FieldComponent = "component"
	FieldJobID     = "job_id"
	FieldStage     = "stage"
	// FieldAttempt is the 1-based attempt number of a stage run.
	FieldAttempt = "attempt"
	// FieldRequestID ties a log line to the API request that caused it.
	FieldRequestID = "request_id"
	FieldEventType = "event_type"
	FieldErrorKind = "error_kind"
	// FieldErrorHint suggests the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact states what the user loses because of a warning.
	FieldImpact = "impact"
)

var contextFields = []struct {
	key    string
	lookup func(context.Context) (string, bool)
}{
	{FieldJobID, services.JobIDFromContext},
	{FieldStage, services.StageFromContext},
	{FieldRequestID, services.RequestIDFromContext},
}

// WithContext adds the job, stage and request ids carried by ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var args []any
	for _, field := range contextFields {
		if value, ok := field.lookup(ctx); ok {
			args = append(args, slog.String(field.key, value))
		}
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
