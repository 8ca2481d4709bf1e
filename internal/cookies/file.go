package cookies

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// File provisions cookies from a Netscape cookie file exported by the user.
// Only cookies that apply to the requested domain are copied into the job.
type File struct {
	Path string
}

// Provision implements Provisioner.
func (f File) Provision(_ context.Context, domain, dir string) (*Jar, error) {
	all, err := LoadNetscape(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	var matched []Cookie
	for _, c := range all {
		if appliesTo(c.Domain, domain) {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	path := filepath.Join(dir, FileName)
	if err := SaveNetscape(path, matched); err != nil {
		return nil, fmt.Errorf("write cookie file: %w", err)
	}
	return &Jar{
		Domain:     domain,
		Path:       path,
		Cookies:    matched,
		ObtainedAt: time.Now().UTC(),
	}, nil
}

// appliesTo matches a cookie domain against a site domain in either
// direction, so ".youtube.com" serves "youtube.com" and "www.youtube.com"
// serves a request scoped to "youtube.com".
func appliesTo(cookieDomain, domain string) bool {
	c := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cookieDomain), "."))
	d := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
	if c == "" || d == "" {
		return false
	}
	return c == d || strings.HasSuffix(d, "."+c) || strings.HasSuffix(c, "."+d)
}
