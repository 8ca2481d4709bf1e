package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestMetadataDecodesInfoAndSkipsDownload(t *testing.T) {
	captured := fakeYtDlp(t, "probe-ok")
	client := New(WithBinary("/opt/yt-dlp"))

	info, err := client.Probe(context.Background(), "https://twitter.com/u/status/123", DefaultOptions().WithCookieFile("/tmp/c.txt"))
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if info.Title != "A Cat Video" || info.Duration != 90.5 || info.Size() != 2048 {
		t.Fatalf("unexpected info: %+v", info)
	}
	args := *captured
	for _, want := range []string{"-J", "--skip-download", "--no-playlist", "--cookies"} {
		if !slices.Contains(args, want) {
			t.Fatalf("expected %s in probe args %v", want, args)
		}
	}
	if slices.Contains(args, "--format") || slices.Contains(args, "--output") {
		t.Fatalf("probe must not carry download arguments: %v", args)
	}
	if args[len(args)-1] != "https://twitter.com/u/status/123" || args[len(args)-2] != "--" {
		t.Fatalf("expected url after --, got %v", args)
	}
}

func TestMetadataClassifiesAuthFailure(t *testing.T) {
	fakeYtDlp(t, "auth-fail")
	_, err := New().Probe(context.Background(), "https://twitter.com/u/status/1", DefaultOptions())
	if err == nil {
		t.Fatal("expected error")
	}
	if ClassOf(err) != FailureAuth {
		t.Fatalf("expected auth failure, got %s (%v)", ClassOf(err), err)
	}
	if !strings.Contains(err.Error(), "Sign in to confirm") {
		t.Fatalf("expected stderr ERROR line in message, got %q", err.Error())
	}
}

func TestDownloadReportsProgressAndWritesFile(t *testing.T) {
	captured := fakeYtDlp(t, "download-ok")
	dir := t.TempDir()
	template := filepath.Join(dir, "video_20240101_000000.%(ext)s")

	var percents []float64
	err := New().Download(context.Background(), "https://example.org/v", template, DefaultOptions(), func(p Progress) {
		percents = append(percents, p.Percent)
	})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if !slices.Equal(percents, []float64{0, 50, 100}) {
		t.Fatalf("unexpected progress %v", percents)
	}
	if _, err := os.Stat(filepath.Join(dir, "video_20240101_000000.mp4")); err != nil {
		t.Fatalf("expected downloaded file: %v", err)
	}
	args := *captured
	if idx := slices.Index(args, "--output"); idx == -1 || args[idx+1] != template {
		t.Fatalf("expected --output %s in %v", template, args)
	}
	if !slices.Contains(args, "--newline") {
		t.Fatalf("expected --newline in %v", args)
	}
}

func TestDownloadNotFound(t *testing.T) {
	fakeYtDlp(t, "not-found")
	err := New().Download(context.Background(), "https://example.org/page", filepath.Join(t.TempDir(), "v.%(ext)s"), DefaultOptions(), nil)
	if ClassOf(err) != FailureNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDownloadTimeout(t *testing.T) {
	fakeYtDlp(t, "hang")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := New().Download(ctx, "https://example.org/v", filepath.Join(t.TempDir(), "v.%(ext)s"), DefaultOptions(), nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if ClassOf(err) != FailureTimeout {
		t.Fatalf("expected timeout class, got %s", ClassOf(err))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded in chain, got %v", err)
	}
}

func TestDownloadRejectsInvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.ConcurrentFragments = 16
	err := New().Download(context.Background(), "https://example.org/v", "v.%(ext)s", opts, nil)
	if err == nil || !strings.Contains(err.Error(), "concurrent fragments") {
		t.Fatalf("expected option validation error, got %v", err)
	}
}

func TestParseProgress(t *testing.T) {
	p, ok := ParseProgress("[download]  42.7% of ~ 12.34MiB at  2.00MiB/s ETA 00:05")
	if !ok {
		t.Fatal("expected progress line to parse")
	}
	if p.Percent != 42.7 || p.Total != "12.34MiB" || p.Speed != "2.00MiB/s" || p.ETA != "00:05" {
		t.Fatalf("unexpected progress %+v", p)
	}
	if _, ok := ParseProgress("[download] Destination: video.mp4"); ok {
		t.Fatal("destination line should not parse as progress")
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		stderr string
		want   Failure
	}{
		{"ERROR: [twitter] 1: NSFW tweet requires authentication", FailureAuth},
		{"ERROR: [instagram] x: Requested content is not available, rate-limit reached or login required", FailureAuth},
		{"ERROR: unable to download video data: HTTP Error 403: Forbidden", FailureAuth},
		{"ERROR: [youtube] abc: Video unavailable", FailureNotFound},
		{"ERROR: Unsupported URL: https://example.org", FailureNotFound},
		{"ERROR: [generic] No video formats found!", FailureNotFound},
		{"ERROR: The read operation timed out", FailureTimeout},
		{"ERROR: ffmpeg exited with code 1", FailureOther},
	}
	for _, tt := range tests {
		if got := ClassifyFailure(tt.stderr); got != tt.want {
			t.Errorf("ClassifyFailure(%q) = %s, want %s", tt.stderr, got, tt.want)
		}
	}
}
