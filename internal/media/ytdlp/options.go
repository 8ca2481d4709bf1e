package ytdlp

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	minChunkSize     = 1 << 20
	maxSleepSeconds  = 30
	maxRetries       = 50
	maxConcurrency   = 4
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var remuxFormats = map[string]struct{}{"mp4": {}, "mkv": {}, "webm": {}, "mov": {}}

// Options are the recognized yt-dlp transfer settings.
type Options struct {
	// Format is the yt-dlp format selector.
	Format    string
	UserAgent string
	// Headers are sent with every request; keys are rendered sorted.
	Headers map[string]string
	// SleepInterval and MaxSleepInterval bound the random delay before each
	// download, in seconds.
	SleepInterval    int
	MaxSleepInterval int
	// SleepRequests is the delay between extraction requests, in seconds.
	SleepRequests float64
	// HTTPChunkSize splits HTTP downloads into ranged chunks of this many bytes.
	HTTPChunkSize       int64
	Retries             int
	FragmentRetries     int
	RetrySleepHTTP      int
	SocketTimeout       int
	ConcurrentFragments int
	// RemuxTo remuxes the result into this container without re-encoding.
	RemuxTo            string
	CookieFile         string
	NoCheckCertificate bool
	ForceIPv4          bool
}

// DefaultOptions returns the conservative transfer profile used for all
// remote acquisitions.
func DefaultOptions() Options {
	return Options{
		Format:    "best",
		UserAgent: defaultUserAgent,
		Headers: map[string]string{
			"Accept":             "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language":    "en-us,en;q=0.5",
			"Sec-Fetch-Mode":     "navigate",
			"Sec-CH-UA":          `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
			"Sec-CH-UA-Mobile":   "?0",
			"Sec-CH-UA-Platform": `"Windows"`,
		},
		SleepInterval:       1,
		MaxSleepInterval:    5,
		SleepRequests:       1,
		HTTPChunkSize:       10 * 1024 * 1024,
		Retries:             10,
		FragmentRetries:     10,
		RetrySleepHTTP:      5,
		SocketTimeout:       30,
		ConcurrentFragments: 1,
		RemuxTo:             "mp4",
		NoCheckCertificate:  true,
		ForceIPv4:           true,
	}
}

// WithHeader returns a copy of o with header key set to value.
func (o Options) WithHeader(key, value string) Options {
	headers := make(map[string]string, len(o.Headers)+1)
	for k, v := range o.Headers {
		headers[k] = v
	}
	headers[key] = value
	o.Headers = headers
	return o
}

// WithCookieFile returns a copy of o that sends the given cookie file.
func (o Options) WithCookieFile(path string) Options {
	o.CookieFile = path
	return o
}

// Validate checks every field against its documented range.
func (o Options) Validate() error {
	var errs []error
	if strings.TrimSpace(o.Format) == "" {
		errs = append(errs, errors.New("format is required"))
	}
	if o.SleepInterval < 0 || o.MaxSleepInterval < o.SleepInterval || o.MaxSleepInterval > maxSleepSeconds {
		errs = append(errs, fmt.Errorf("sleep interval must satisfy 0 <= %d <= %d <= %d", o.SleepInterval, o.MaxSleepInterval, maxSleepSeconds))
	}
	if o.SleepRequests < 0 || o.SleepRequests > maxSleepSeconds {
		errs = append(errs, fmt.Errorf("sleep requests %.2f outside [0, %d]", o.SleepRequests, maxSleepSeconds))
	}
	if o.HTTPChunkSize != 0 && o.HTTPChunkSize < minChunkSize {
		errs = append(errs, fmt.Errorf("http chunk size %d below %d", o.HTTPChunkSize, minChunkSize))
	}
	if o.Retries < 0 || o.Retries > maxRetries || o.FragmentRetries < 0 || o.FragmentRetries > maxRetries {
		errs = append(errs, fmt.Errorf("retries must be within [0, %d]", maxRetries))
	}
	if o.RetrySleepHTTP < 0 || o.RetrySleepHTTP > maxSleepSeconds {
		errs = append(errs, fmt.Errorf("retry sleep %d outside [0, %d]", o.RetrySleepHTTP, maxSleepSeconds))
	}
	if o.SocketTimeout <= 0 {
		errs = append(errs, errors.New("socket timeout must be positive"))
	}
	if o.ConcurrentFragments < 1 || o.ConcurrentFragments > maxConcurrency {
		errs = append(errs, fmt.Errorf("concurrent fragments %d outside [1, %d]", o.ConcurrentFragments, maxConcurrency))
	}
	if o.RemuxTo != "" {
		if _, ok := remuxFormats[o.RemuxTo]; !ok {
			errs = append(errs, fmt.Errorf("unsupported remux container %q", o.RemuxTo))
		}
	}
	for key := range o.Headers {
		if strings.ContainsAny(key, ":\r\n") || strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Errorf("invalid header name %q", key))
		}
	}
	return errors.Join(errs...)
}

// requestArgs are shared by probe and download.
func (o Options) requestArgs() []string {
	args := []string{"--no-playlist", "--socket-timeout", strconv.Itoa(o.SocketTimeout)}
	if ua := strings.TrimSpace(o.UserAgent); ua != "" {
		args = append(args, "--user-agent", ua)
	}
	keys := make([]string, 0, len(o.Headers))
	for key := range o.Headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, "--add-header", key+":"+o.Headers[key])
	}
	if o.SleepRequests > 0 {
		args = append(args, "--sleep-requests", strconv.FormatFloat(o.SleepRequests, 'f', -1, 64))
	}
	if o.CookieFile != "" {
		args = append(args, "--cookies", o.CookieFile)
	}
	if o.NoCheckCertificate {
		args = append(args, "--no-check-certificates")
	}
	if o.ForceIPv4 {
		args = append(args, "--force-ipv4")
	}
	return args
}

// Args renders the download arguments in a stable order.
func (o Options) Args() []string {
	args := []string{"--format", o.Format}
	args = append(args, o.requestArgs()...)
	if o.MaxSleepInterval > 0 {
		args = append(args,
			"--sleep-interval", strconv.Itoa(o.SleepInterval),
			"--max-sleep-interval", strconv.Itoa(o.MaxSleepInterval))
	}
	if o.HTTPChunkSize > 0 {
		args = append(args, "--http-chunk-size", strconv.FormatInt(o.HTTPChunkSize, 10))
	}
	args = append(args,
		"--retries", strconv.Itoa(o.Retries),
		"--fragment-retries", strconv.Itoa(o.FragmentRetries),
		"--concurrent-fragments", strconv.Itoa(o.ConcurrentFragments),
	)
	if o.RetrySleepHTTP > 0 {
		args = append(args, "--retry-sleep", "http:"+strconv.Itoa(o.RetrySleepHTTP))
	}
	if o.RemuxTo != "" {
		args = append(args, "--remux-video", o.RemuxTo)
	}
	return args
}
