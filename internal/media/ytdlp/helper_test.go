package ytdlp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// fakeYtDlp swaps commandContext for a re-exec of the test binary running
// TestHelperProcess in the given mode. It returns a pointer to the captured
// arguments of the last invocation.
func fakeYtDlp(t *testing.T, mode string) *[]string {
	t.Helper()
	captured := new([]string)
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		*captured = append([]string(nil), args...)
		helperArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], helperArgs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "YTDLP_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return captured
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	output := ""
	for i, arg := range args {
		if arg == "--output" && i+1 < len(args) {
			output = args[i+1]
		}
	}

	switch os.Getenv("YTDLP_HELPER_MODE") {
	case "probe-ok":
		fmt.Println(`{"id":"123","title":"A Cat Video","duration":90.5,"uploader":"cats","view_count":10,"like_count":2,"upload_date":"20240101","ext":"mp4","filesize_approx":2048,"webpage_url":"https://twitter.com/u/status/123","extractor":"twitter"}`)
		os.Exit(0)
	case "auth-fail":
		fmt.Fprintln(os.Stderr, "WARNING: [twitter] something minor")
		fmt.Fprintln(os.Stderr, "ERROR: [twitter] 123: Sign in to confirm you're not a bot. Use --cookies-from-browser or --cookies")
		os.Exit(1)
	case "not-found":
		fmt.Fprintln(os.Stderr, "ERROR: Unsupported URL: https://example.org/page")
		os.Exit(1)
	case "download-ok":
		fmt.Println("[twitter] 123: Downloading guest token")
		fmt.Println("[download]   0.0% of ~  1.00MiB at  Unknown B/s ETA Unknown")
		fmt.Println("[download]  50.0% of ~  1.00MiB at  1.00MiB/s ETA 00:01")
		fmt.Println("[download] 100.0% of    1.00MiB at  1.00MiB/s ETA 00:00")
		path := strings.ReplaceAll(output, "%(ext)s", "mp4")
		if err := os.WriteFile(path, []byte("video-bytes"), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		os.Exit(0)
	case "hang":
		time.Sleep(30 * time.Second)
		os.Exit(0)
	default:
		fmt.Fprintln(os.Stderr, "unknown helper mode")
		os.Exit(3)
	}
}
