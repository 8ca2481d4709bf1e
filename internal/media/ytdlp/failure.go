package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Failure classifies a yt-dlp error.
type Failure int

const (
	FailureOther Failure = iota
	FailureAuth
	FailureNotFound
	FailureTimeout
)

func (f Failure) String() string {
	switch f {
	case FailureAuth:
		return "auth"
	case FailureNotFound:
		return "not_found"
	case FailureTimeout:
		return "timeout"
	default:
		return "other"
	}
}

var failurePatterns = []struct {
	class    Failure
	patterns []string
}{
	{FailureAuth, []string{
		"sign in", "login required", "log in", "cookies", "--cookies",
		"rate-limit", "rate limit", "too many requests", "http error 429",
		"confirm you're not a bot", "confirm you are not a bot", "not a bot",
		"http error 403", "forbidden", "private video", "this video is private",
		"authentication", "account", "age-restricted", "nsfw tweet",
	}},
	{FailureNotFound, []string{
		"unsupported url", "no video formats", "no video could be found",
		"http error 404", "not found", "video unavailable", "has been removed",
		"does not exist", "no media",
	}},
	{FailureTimeout, []string{
		"timed out", "timeout", "read operation timed out",
	}},
}

// ClassifyFailure maps yt-dlp stderr text to a failure class.
func ClassifyFailure(stderr string) Failure {
	lower := strings.ToLower(stderr)
	for _, group := range failurePatterns {
		for _, pattern := range group.patterns {
			if strings.Contains(lower, pattern) {
				return group.class
			}
		}
	}
	return FailureOther
}

// Error is returned when yt-dlp exits unsuccessfully.
type Error struct {
	Op     string
	Class  Failure
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("yt-dlp %s failed (%s): %v", e.Op, e.Class, e.Err)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ClassOf returns the failure class of err, or FailureOther.
func ClassOf(err error) Failure {
	var ytErr *Error
	if errors.As(err, &ytErr) {
		return ytErr.Class
	}
	return FailureOther
}

func newError(ctx context.Context, op, stderr string, err error) error {
	class := ClassifyFailure(stderr)
	if ctx.Err() != nil {
		err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			class = FailureTimeout
		}
	}
	return &Error{Op: op, Class: class, Stderr: stderr, Err: err}
}

func lastLine(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
