package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"narrator/internal/logging"
)

var commandContext = exec.CommandContext

// Info is the subset of yt-dlp's info JSON the pipeline uses.
type Info struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Duration       float64 `json:"duration"`
	Description    string  `json:"description"`
	Uploader       string  `json:"uploader"`
	ViewCount      int64   `json:"view_count"`
	LikeCount      int64   `json:"like_count"`
	UploadDate     string  `json:"upload_date"`
	Ext            string  `json:"ext"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	WebpageURL     string  `json:"webpage_url"`
	Extractor      string  `json:"extractor"`
	IsLive         bool    `json:"is_live"`
}

// Size returns the exact or approximate byte size, or 0 when unknown.
func (i Info) Size() int64 {
	if i.Filesize > 0 {
		return i.Filesize
	}
	return i.FilesizeApprox
}

// Progress is one parsed download progress line.
type Progress struct {
	Percent float64
	Total   string
	Speed   string
	ETA     string
}

// Option configures the client.
type Option func(*Client)

// WithBinary overrides the yt-dlp executable.
func WithBinary(binary string) Option {
	return func(c *Client) {
		if strings.TrimSpace(binary) != "" {
			c.binary = strings.TrimSpace(binary)
		}
	}
}

// WithLogger sets the logger used for yt-dlp diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "yt-dlp")
	}
}

// Client runs yt-dlp.
type Client struct {
	binary string
	logger *slog.Logger
}

// New constructs a client using defaults.
func New(opts ...Option) *Client {
	c := &Client{binary: "yt-dlp", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Binary returns the configured executable.
func (c *Client) Binary() string { return c.binary }

// Probe fetches metadata for url without downloading media.
func (c *Client) Probe(ctx context.Context, url string, opts Options) (Info, error) {
	if strings.TrimSpace(url) == "" {
		return Info{}, errors.New("probe: url required")
	}
	args := append([]string{"-J", "--skip-download"}, opts.requestArgs()...)
	args = append(args, "--", url)

	var stdout bytes.Buffer
	stderr := newTailBuffer(40)
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return Info{}, newError(ctx, "probe", stderr.String(), err)
	}

	var info Info
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return Info{}, fmt.Errorf("probe: decode info json: %w", err)
	}
	return info, nil
}

// Download transfers url to outputTemplate (a yt-dlp output template such as
// "dir/video_20240101_120000.%(ext)s"). progress may be nil.
func (c *Client) Download(ctx context.Context, url, outputTemplate string, opts Options, progress func(Progress)) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("download: url required")
	}
	if strings.TrimSpace(outputTemplate) == "" {
		return errors.New("download: output template required")
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("download: invalid options: %w", err)
	}

	args := append([]string{"--newline", "--progress", "--no-part", "--output", outputTemplate}, opts.Args()...)
	args = append(args, "--", url)

	stderr := newTailBuffer(40)
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("download: stdout pipe: %w", err)
	}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("download: start %s: %w", c.binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if p, ok := ParseProgress(line); ok {
			if progress != nil {
				progress(p)
			}
			continue
		}
		// Errors go to stderr; stdout tail helps when yt-dlp reports
		// failures as warnings.
		stderr.WriteLine(line)
	}
	scanErr := scanner.Err()
	if _, err := io.Copy(io.Discard, stdout); err != nil && scanErr == nil {
		scanErr = err
	}

	if err := cmd.Wait(); err != nil {
		return newError(ctx, "download", stderr.String(), err)
	}
	if scanErr != nil {
		return fmt.Errorf("download: read output: %w", scanErr)
	}
	return nil
}

var progressPattern = regexp.MustCompile(`^\[download\]\s+([\d.]+)%(?:\s+of\s+~?\s*(\S+))?(?:\s+at\s+(\S+))?(?:\s+ETA\s+(\S+))?`)

// ParseProgress extracts progress from a "[download]  42.0% of 10MiB at 1MiB/s ETA 00:05" line.
func ParseProgress(line string) (Progress, bool) {
	m := progressPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Progress{}, false
	}
	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Progress{}, false
	}
	return Progress{Percent: percent, Total: m[2], Speed: m[3], ETA: m[4]}, true
}

// tailBuffer keeps the last n lines written to it.
type tailBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data := append(t.partial, p...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		t.push(string(bytes.TrimRight(data[:idx], "\r")))
		data = data[idx+1:]
	}
	t.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (t *tailBuffer) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.push(line)
}

func (t *tailBuffer) push(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := t.lines
	if len(t.partial) > 0 {
		lines = append(append([]string(nil), lines...), string(t.partial))
	}
	return strings.Join(lines, "\n")
}
