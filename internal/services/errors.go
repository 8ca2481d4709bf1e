package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Failure markers. Each one maps to exactly one Kind reported across the job
// boundary; see KindOf.
var (
	ErrInvalidSource          = errors.New("invalid source")
	ErrDurationExceeded       = errors.New("duration exceeded")
	ErrSizeExceeded           = errors.New("size exceeded")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrDownloadTimeout        = errors.New("download timeout")
	ErrNoMediaFound           = errors.New("no media found")
	ErrAnalysisService        = errors.New("analysis service error")
	ErrGenerationService      = errors.New("generation service error")
	ErrSynthesisService       = errors.New("synthesis service error")
	ErrComposition            = errors.New("composition error")
	ErrTimeout                = errors.New("timeout")
	ErrCancelled              = errors.New("cancelled")

	ErrConfiguration = errors.New("configuration error")
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrTransient     = errors.New("transient failure")
)

// Kind is the stable, caller-facing name of a failure class.
type Kind string

const (
	KindNone                   Kind = ""
	KindInvalidSource          Kind = "InvalidSourceError"
	KindDurationExceeded       Kind = "DurationExceededError"
	KindSizeExceeded           Kind = "SizeExceededError"
	KindAuthenticationRequired Kind = "AuthenticationRequiredError"
	KindDownloadTimeout        Kind = "DownloadTimeoutError"
	KindNoMediaFound           Kind = "NoMediaFoundError"
	KindAnalysisService        Kind = "AnalysisServiceError"
	KindGenerationService      Kind = "GenerationServiceError"
	KindSynthesisService       Kind = "SynthesisServiceError"
	KindComposition            Kind = "CompositionError"
	KindTimeout                Kind = "TimeoutError"
	KindCancelled              Kind = "CancelledError"
	KindConfiguration          Kind = "ConfigurationError"
)

// Order matters: specific acquisition markers win over the generic timeout and
// the stage service markers.
var kindTable = []struct {
	marker error
	kind   Kind
}{
	{ErrCancelled, KindCancelled},
	{ErrInvalidSource, KindInvalidSource},
	{ErrDurationExceeded, KindDurationExceeded},
	{ErrSizeExceeded, KindSizeExceeded},
	{ErrAuthenticationRequired, KindAuthenticationRequired},
	{ErrDownloadTimeout, KindDownloadTimeout},
	{ErrNoMediaFound, KindNoMediaFound},
	{ErrTimeout, KindTimeout},
	{ErrAnalysisService, KindAnalysisService},
	{ErrGenerationService, KindGenerationService},
	{ErrSynthesisService, KindSynthesisService},
	{ErrComposition, KindComposition},
	{ErrConfiguration, KindConfiguration},
}

// KindOf reports the failure kind carried by err, or KindNone when err has no
// recognized marker.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.marker) {
			return entry.kind
		}
	}
	return KindNone
}

// Retryable reports whether a stage may be re-attempted after err. Only
// transient failures qualify; bad input and exceeded limits never do.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindInvalidSource, KindDurationExceeded, KindSizeExceeded,
		KindAuthenticationRequired, KindNoMediaFound, KindCancelled,
		KindConfiguration:
		return false
	}
	return errors.Is(err, ErrTransient)
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Transient marks err as retryable without changing its message.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return &transientError{err: err}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{e.err, ErrTransient} }

// FromContext converts a finished context into the matching marker error, or
// nil when ctx is still live.
func FromContext(ctx context.Context) error {
	if ctx == nil || ctx.Err() == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
	return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
