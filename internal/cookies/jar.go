package cookies

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"narrator/internal/fileutil"
)

const (
	netscapeHeader = "# Netscape HTTP Cookie File"
	httpOnlyPrefix = "#HttpOnly_"
	// FileName is the cookie file written inside the provisioning directory.
	FileName = "cookies.txt"
)

// Cookie is one harvested cookie.
type Cookie struct {
	Domain            string    `json:"domain"`
	IncludeSubdomains bool      `json:"include_subdomains"`
	Path              string    `json:"path"`
	Secure            bool      `json:"secure"`
	Expires           time.Time `json:"expires"`
	Name              string    `json:"name"`
	Value             string    `json:"value"`
	HTTPOnly          bool      `json:"http_only"`
}

// Session reports cookies without an expiry.
func (c Cookie) Session() bool { return c.Expires.IsZero() }

// Jar is a provisioned, file-backed cookie set scoped to one domain.
type Jar struct {
	Domain     string    `json:"domain"`
	Path       string    `json:"path"`
	Cookies    []Cookie  `json:"-"`
	ObtainedAt time.Time `json:"obtained_at"`
}

// Len returns the number of cookies in the jar.
func (j *Jar) Len() int {
	if j == nil {
		return 0
	}
	return len(j.Cookies)
}

// File returns the cookie file path, or "" for a nil jar.
func (j *Jar) File() string {
	if j == nil {
		return ""
	}
	return j.Path
}

// WriteNetscape writes cookies in the Netscape cookie file format.
func WriteNetscape(w io.Writer, cookies []Cookie) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, netscapeHeader)
	fmt.Fprintln(bw, "# Generated by narrator. Do not edit.")
	fmt.Fprintln(bw)
	for _, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		domain := c.Domain
		if c.HTTPOnly {
			domain = httpOnlyPrefix + domain
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		var expires int64
		if !c.Expires.IsZero() {
			expires = c.Expires.Unix()
		}
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			domain, flag(c.IncludeSubdomains || strings.HasPrefix(c.Domain, ".")), path, flag(c.Secure),
			expires, c.Name, sanitizeValue(c.Value))
	}
	return bw.Flush()
}

// SaveNetscape writes cookies to path with owner-only permissions.
func SaveNetscape(path string, cookies []Cookie) error {
	return fileutil.WriteAtomic(path, 0o600, func(w io.Writer) error {
		return WriteNetscape(w, cookies)
	})
}

// ParseNetscape reads a Netscape cookie file.
func ParseNetscape(r io.Reader) ([]Cookie, error) {
	var cookies []Cookie
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		httpOnly := false
		if strings.HasPrefix(text, httpOnlyPrefix) {
			httpOnly = true
			text = strings.TrimPrefix(text, httpOnlyPrefix)
		} else if strings.HasPrefix(text, "#") || strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 7 {
			return nil, fmt.Errorf("cookie file line %d: expected 7 fields, got %d", line, len(fields))
		}
		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cookie file line %d: expiry: %w", line, err)
		}
		cookie := Cookie{
			Domain:            fields[0],
			IncludeSubdomains: fields[1] == "TRUE",
			Path:              fields[2],
			Secure:            fields[3] == "TRUE",
			Name:              fields[5],
			Value:             strings.Join(fields[6:], "\t"),
			HTTPOnly:          httpOnly,
		}
		if expires > 0 {
			cookie.Expires = time.Unix(expires, 0).UTC()
		}
		cookies = append(cookies, cookie)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cookies, nil
}

// LoadNetscape reads a cookie file from disk.
func LoadNetscape(path string) ([]Cookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseNetscape(f)
}

func flag(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

// Tabs and newlines would corrupt the line format.
func sanitizeValue(v string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(v)
}
