package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"narrator/internal/config"
	"narrator/internal/notifications"
)

type captured struct {
	title, tags, priority, body string
}

func capture(t *testing.T) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
	}))
	t.Cleanup(server.Close)
	return server, &got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobFailed(context.Background(), notifications.Outcome{JobID: "x"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyFormatsOutcomes(t *testing.T) {
	server, got := capture(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyJobSucceeded(ctx, notifications.Outcome{
		Source: "https://twitter.com/u/status/1", Style: "news", Duration: 61 * time.Second,
		Truncated: 2, OutputPath: "/out/final_video_news.mp4",
	}); err != nil {
		t.Fatalf("NotifyJobSucceeded: %v", err)
	}
	if err := svc.NotifyJobFailed(ctx, notifications.Outcome{
		JobID: "job-9", Stage: "acquiring", ErrorKind: "DurationExceededError", Message: "video is 300s, limit 120s",
	}); err != nil {
		t.Fatalf("NotifyJobFailed: %v", err)
	}
	if err := svc.NotifyJobCancelled(ctx, notifications.Outcome{JobID: "job-10", Stage: "scripting"}); err != nil {
		t.Fatalf("NotifyJobCancelled: %v", err)
	}

	if len(*got) != 3 {
		t.Fatalf("requests = %d", len(*got))
	}
	ok := (*got)[0]
	if ok.title != "Narrator - Job Complete" || ok.tags != "narrator,job,completed" || ok.priority != "" {
		t.Fatalf("success headers = %+v", ok)
	}
	for _, want := range []string{"twitter.com/u/status/1 (news) in 1m1s", "2 narration segment(s)", "File: /out/final_video_news.mp4"} {
		if !strings.Contains(ok.body, want) {
			t.Fatalf("success body missing %q: %q", want, ok.body)
		}
	}
	failed := (*got)[1]
	if failed.priority != "high" || !strings.Contains(failed.body, "Stage: acquiring") || !strings.Contains(failed.body, "Kind: DurationExceededError") {
		t.Fatalf("failure = %+v", failed)
	}
	if c := (*got)[2]; c.body != "Job cancelled: job-10 during scripting" || c.priority != "low" {
		t.Fatalf("cancel = %+v", c)
	}
}

func TestNtfyRespectsToggles(t *testing.T) {
	server, got := capture(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Success = false
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobSucceeded(context.Background(), notifications.Outcome{JobID: "a"}); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 0 {
		t.Fatal("success notification sent while disabled")
	}
}

func TestNtfyReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic is reserved", http.StatusForbidden)
	}))
	defer server.Close()
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
