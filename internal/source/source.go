// Package source classifies job inputs as local files or remote URLs and
// canonicalizes remote URLs so extractor rules match.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"narrator/internal/services"
)

// Kind distinguishes local files from remote URLs.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Platform tags used to pick request headers and session handling.
const (
	PlatformTwitter   = "twitter"
	PlatformYouTube   = "youtube"
	PlatformTikTok    = "tiktok"
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
	PlatformGeneric   = "generic"
)

// Reference is a validated job input.
type Reference struct {
	Kind     Kind   `json:"kind"`
	Raw      string `json:"raw"`
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`
	Host     string `json:"host,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// IsRemote reports whether the reference points at a URL.
func (r Reference) IsRemote() bool { return r.Kind == KindRemote }

// String returns the canonical URL or absolute path.
func (r Reference) String() string {
	if r.IsRemote() {
		return r.URL
	}
	return r.Path
}

// Domain returns the registrable host used for cookie provisioning.
func (r Reference) Domain() string {
	return strings.TrimPrefix(r.Host, "www.")
}

var hostAliases = map[string]string{
	"x.com":              "twitter.com",
	"www.x.com":          "twitter.com",
	"mobile.x.com":       "twitter.com",
	"mobile.twitter.com": "twitter.com",
	"www.twitter.com":    "twitter.com",
	"m.youtube.com":      "www.youtube.com",
	"youtube.com":        "www.youtube.com",
	"m.facebook.com":     "www.facebook.com",
	"facebook.com":       "www.facebook.com",
	"instagram.com":      "www.instagram.com",
	"tiktok.com":         "www.tiktok.com",
}

var platformHosts = []struct {
	suffix   string
	platform string
}{
	{"twitter.com", PlatformTwitter},
	{"youtube.com", PlatformYouTube},
	{"tiktok.com", PlatformTikTok},
	{"instagram.com", PlatformInstagram},
	{"facebook.com", PlatformFacebook},
	{"fb.watch", PlatformFacebook},
}

// Classify validates input and returns its canonical reference. Inputs that
// are neither well-formed http(s) URLs nor existing regular files fail with
// services.ErrInvalidSource.
func Classify(input string) (Reference, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Reference{}, invalid("empty source", nil)
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return classifyURL(raw, raw)
	case strings.Contains(lower, "://"):
		return Reference{}, invalid(fmt.Sprintf("unsupported scheme in %q", raw), nil)
	}

	ref, err := classifyFile(raw)
	if err == nil {
		return ref, nil
	}
	if looksLikeBareHost(raw) {
		return classifyURL(raw, "https://"+raw)
	}
	return Reference{}, err
}

func classifyURL(raw, candidate string) (Reference, error) {
	parsed, err := url.Parse(candidate)
	if err != nil {
		return Reference{}, invalid(fmt.Sprintf("malformed url %q", raw), err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" || !strings.Contains(host, ".") {
		return Reference{}, invalid(fmt.Sprintf("url %q has no host", raw), nil)
	}

	parsed.Scheme = "https"
	parsed.User = nil
	parsed.Fragment = ""

	if host == "youtu.be" {
		id := strings.Trim(parsed.Path, "/")
		if id == "" {
			return Reference{}, invalid(fmt.Sprintf("short url %q has no video id", raw), nil)
		}
		query := parsed.Query()
		query.Set("v", id)
		parsed.Path = "/watch"
		parsed.RawQuery = query.Encode()
		host = "www.youtube.com"
	}
	if alias, ok := hostAliases[host]; ok {
		host = alias
	}
	if port := parsed.Port(); port != "" && port != "443" && port != "80" {
		parsed.Host = host + ":" + port
	} else {
		parsed.Host = host
	}

	return Reference{
		Kind:     KindRemote,
		Raw:      raw,
		URL:      parsed.String(),
		Host:     host,
		Platform: PlatformFor(host),
	}, nil
}

func classifyFile(raw string) (Reference, error) {
	abs, err := filepath.Abs(raw)
	if err != nil {
		return Reference{}, invalid(fmt.Sprintf("resolve path %q", raw), err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Reference{}, invalid(fmt.Sprintf("%q is not a url or an existing file", raw), nil)
		}
		return Reference{}, invalid(fmt.Sprintf("stat %q", raw), err)
	}
	if !info.Mode().IsRegular() {
		return Reference{}, invalid(fmt.Sprintf("%q is not a regular file", raw), nil)
	}
	f, err := os.Open(abs)
	if err != nil {
		return Reference{}, invalid(fmt.Sprintf("%q is not readable", raw), err)
	}
	_ = f.Close()
	return Reference{Kind: KindLocal, Raw: raw, Path: abs}, nil
}

// looksLikeBareHost accepts "x.com/user/status/1" style input: a dotted host
// with an alphabetic TLD followed by a path.
func looksLikeBareHost(raw string) bool {
	if strings.ContainsAny(raw, " \t\\") || strings.HasPrefix(raw, ".") || strings.HasPrefix(raw, "/") {
		return false
	}
	host, rest, hasPath := strings.Cut(raw, "/")
	if !hasPath || rest == "" {
		return false
	}
	if !strings.Contains(host, ".") || strings.HasSuffix(host, ".") {
		return false
	}
	tld := host[strings.LastIndex(host, ".")+1:]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// PlatformFor maps a canonical host to its platform tag.
func PlatformFor(host string) string {
	host = strings.ToLower(host)
	for _, entry := range platformHosts {
		if host == entry.suffix || strings.HasSuffix(host, "."+entry.suffix) {
			return entry.platform
		}
	}
	return PlatformGeneric
}

// RequiresSession reports platforms known to gate media behind bot checks.
func RequiresSession(platform string) bool {
	switch platform {
	case PlatformTwitter, PlatformInstagram, PlatformTikTok, PlatformFacebook:
		return true
	}
	return false
}

// Origin returns the scheme+host origin used in request headers.
func (r Reference) Origin() string {
	if !r.IsRemote() || r.Host == "" {
		return ""
	}
	return "https://" + r.Host
}

func invalid(message string, err error) error {
	return services.Wrap(services.ErrInvalidSource, "source", "classify", message, err)
}
