package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"narrator/internal/config"
)

const userAgent = "narrator/0.1"

// Outcome is the terminal result a notification reports.
type Outcome struct {
	JobID      string
	Source     string
	Style      string
	Status     string
	Stage      string
	ErrorKind  string
	Message    string
	OutputPath string
	Truncated  int
	Duration   time.Duration
}

// Service defines the notification surface exposed to the workflow.
type Service interface {
	NotifyJobSucceeded(ctx context.Context, out Outcome) error
	NotifyJobFailed(ctx context.Context, out Outcome) error
	NotifyJobCancelled(ctx context.Context, out Outcome) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		success:  cfg.Notifications.Success,
		failure:  cfg.Notifications.Failure,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	success  bool
	failure  bool
}

func (n *ntfyService) NotifyJobSucceeded(ctx context.Context, out Outcome) error {
	if !n.success {
		return nil
	}
	message := fmt.Sprintf("Commentary ready: %s", label(out))
	if out.Style != "" {
		message += fmt.Sprintf(" (%s)", out.Style)
	}
	if out.Duration > 0 {
		message += fmt.Sprintf(" in %s", out.Duration.Round(time.Second))
	}
	if out.Truncated > 0 {
		message += fmt.Sprintf("\n%d narration segment(s) trimmed to fit", out.Truncated)
	}
	if path := strings.TrimSpace(out.OutputPath); path != "" {
		message += "\nFile: " + path
	}
	return n.send(ctx, payload{
		title:   "Narrator - Job Complete",
		message: message,
		tags:    []string{"narrator", "job", "completed"},
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, out Outcome) error {
	if !n.failure {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Job failed: %s", label(out))
	if out.Stage != "" {
		fmt.Fprintf(&b, "\nStage: %s", out.Stage)
	}
	if out.ErrorKind != "" {
		fmt.Fprintf(&b, "\nKind: %s", out.ErrorKind)
	}
	if msg := strings.TrimSpace(out.Message); msg != "" {
		fmt.Fprintf(&b, "\n%s", msg)
	}
	return n.send(ctx, payload{
		title:    "Narrator - Job Failed",
		message:  b.String(),
		tags:     []string{"narrator", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyJobCancelled(ctx context.Context, out Outcome) error {
	if !n.failure {
		return nil
	}
	message := fmt.Sprintf("Job cancelled: %s", label(out))
	if out.Stage != "" {
		message += fmt.Sprintf(" during %s", out.Stage)
	}
	return n.send(ctx, payload{
		title:    "Narrator - Job Cancelled",
		message:  message,
		tags:     []string{"narrator", "job", "cancelled"},
		priority: "low",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Narrator - Test",
		message:  "Notification system test",
		tags:     []string{"narrator", "test"},
		priority: "low",
	})
}

func label(out Outcome) string {
	source := strings.TrimSpace(out.Source)
	if source == "" {
		return out.JobID
	}
	return source
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobSucceeded(context.Context, Outcome) error { return nil }
func (noopService) NotifyJobFailed(context.Context, Outcome) error    { return nil }
func (noopService) NotifyJobCancelled(context.Context, Outcome) error { return nil }
func (noopService) TestNotification(context.Context) error            { return nil }

// NewNoop returns a service that discards every notification.
func NewNoop() Service { return noopService{} }
