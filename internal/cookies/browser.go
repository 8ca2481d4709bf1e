package cookies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"narrator/internal/logging"
)

// BrowserOptions configures the headless browser provisioner.
type BrowserOptions struct {
	ExecPath       string
	Headless       bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Settle         time.Duration
	Timeout        time.Duration
}

// Browser provisions cookies by launching an isolated Chrome instance for
// every call. Nothing is shared between calls or jobs.
type Browser struct {
	opts   BrowserOptions
	logger *slog.Logger
	// harvest runs inside the browser context; swapped in tests.
	harvest func(ctx context.Context, target string, settle time.Duration) ([]*network.Cookie, error)
}

// NewBrowser constructs a browser provisioner.
func NewBrowser(opts BrowserOptions, logger *slog.Logger) *Browser {
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = 1366
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = 768
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	return &Browser{
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "cookies"),
		harvest: harvestCookies,
	}
}

// Provision implements Provisioner. Failures are logged and reported as a nil
// jar; the browser process and its profile directory are always released.
func (b *Browser) Provision(ctx context.Context, domain, dir string) (*Jar, error) {
	logger := logging.WithContext(ctx, b.logger).With(logging.String("domain", domain))
	started := time.Now()

	jar, err := b.provision(ctx, domain, dir)
	if err != nil {
		logger.Warn("cookie provisioning failed; continuing without cookies",
			logging.Event("cookies_unavailable"),
			logging.String(logging.FieldErrorHint, "check browser.exec_path or install chromium"),
			logging.String(logging.FieldImpact, "authenticated download will not be attempted"),
			logging.Duration("elapsed", time.Since(started)),
			logging.Error(err),
		)
		return nil, nil
	}
	logger.Info("session cookies provisioned",
		logging.Event("cookies_provisioned"),
		logging.Int("cookie_count", jar.Len()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return jar, nil
}

func (b *Browser) provision(ctx context.Context, domain, dir string) (*Jar, error) {
	domain = strings.TrimSpace(strings.TrimPrefix(domain, "."))
	if domain == "" {
		return nil, errors.New("empty domain")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cookie dir: %w", err)
	}
	profile, err := os.MkdirTemp(dir, "chrome-profile-")
	if err != nil {
		return nil, fmt.Errorf("create browser profile: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(profile); err != nil {
			b.logger.Debug("browser profile cleanup failed", logging.String("path", profile), logging.Error(err))
		}
	}()

	ctx, cancelTimeout := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancelTimeout()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions(profile)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(b.debugf),
		chromedp.WithErrorf(b.debugf),
	)
	defer cancelBrowser()

	raw, err := b.harvest(browserCtx, "https://"+domain+"/", b.opts.Settle)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("browser navigation: %w", ctx.Err())
		}
		return nil, err
	}
	harvested := convertCookies(raw)
	if len(harvested) == 0 {
		return nil, errors.New("browser produced no cookies")
	}

	path := filepath.Join(dir, FileName)
	if err := SaveNetscape(path, harvested); err != nil {
		return nil, fmt.Errorf("write cookie file: %w", err)
	}
	return &Jar{
		Domain:     domain,
		Path:       path,
		Cookies:    harvested,
		ObtainedAt: time.Now().UTC(),
	}, nil
}

func (b *Browser) allocatorOptions(profile string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.UserDataDir(profile),
		chromedp.WindowSize(b.opts.ViewportWidth, b.opts.ViewportHeight),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("lang", "en-US"),
	)
	if !b.opts.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if path := strings.TrimSpace(b.opts.ExecPath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	return opts
}

func (b *Browser) debugf(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...), logging.String("source", "chromedp"))
}

func harvestCookies(ctx context.Context, target string, settle time.Duration) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx,
		network.Enable(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	)
	return cookies, err
}

func convertCookies(raw []*network.Cookie) []Cookie {
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		if c == nil || c.Name == "" {
			continue
		}
		cookie := Cookie{
			Domain:            c.Domain,
			IncludeSubdomains: strings.HasPrefix(c.Domain, "."),
			Path:              c.Path,
			Secure:            c.Secure,
			Name:              c.Name,
			Value:             c.Value,
			HTTPOnly:          c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			cookie.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
		}
		out = append(out, cookie)
	}
	return out
}
