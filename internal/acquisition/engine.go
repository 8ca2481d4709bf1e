package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"narrator/internal/cookies"
	"narrator/internal/fileutil"
	"narrator/internal/logging"
	"narrator/internal/media/ffprobe"
	"narrator/internal/media/ytdlp"
	"narrator/internal/services"
	"narrator/internal/source"
	"narrator/internal/textutil"
)

const stageName = "acquiring"

// durationTolerance absorbs container rounding between the probe and ffprobe.
const durationTolerance = time.Second

// Fetcher is the subset of the yt-dlp client used by the engine.
type Fetcher interface {
	Probe(ctx context.Context, url string, opts ytdlp.Options) (ytdlp.Info, error)
	Download(ctx context.Context, url, outputTemplate string, opts ytdlp.Options, progress func(ytdlp.Progress)) error
}

// Inspector reads container metadata from a media file.
type Inspector interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// Limits bounds what an acquired source may be.
type Limits struct {
	MaxDuration     time.Duration
	MaxBytes        int64
	DownloadTimeout time.Duration
}

// Engine acquires sources into a job working directory.
type Engine struct {
	fetcher     Fetcher
	inspector   Inspector
	provisioner cookies.Provisioner
	limits      Limits
	options     ytdlp.Options
	sleepMin    float64
	sleepMax    float64
	logger      *slog.Logger
	now         func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithOptions sets the base yt-dlp options.
func WithOptions(opts ytdlp.Options) Option {
	return func(e *Engine) { e.options = opts }
}

// WithRequestSleep sets the range a per-call request pause is drawn from.
func WithRequestSleep(minSeconds, maxSeconds float64) Option {
	return func(e *Engine) {
		if minSeconds < 0 || maxSeconds < minSeconds {
			return
		}
		e.sleepMin = minSeconds
		e.sleepMax = maxSeconds
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source used for output naming.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs an acquisition engine. A nil provisioner disables
// cookie provisioning.
func NewEngine(fetcher Fetcher, inspector Inspector, provisioner cookies.Provisioner, limits Limits, opts ...Option) *Engine {
	if provisioner == nil {
		provisioner = cookies.Disabled{}
	}
	e := &Engine{
		fetcher:     fetcher,
		inspector:   inspector,
		provisioner: provisioner,
		limits:      limits,
		options:     ytdlp.DefaultOptions(),
		logger:      logging.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "acquisition")
	return e
}

// Acquire produces a playable local file for ref inside workdir. jar holds
// cookies obtained by an earlier attempt of the same job and may be nil.
func (e *Engine) Acquire(ctx context.Context, ref source.Reference, workdir string, jar *cookies.Jar) (Result, error) {
	result := Result{Jar: jar}
	videoDir := filepath.Join(workdir, VideoDir)
	if err := os.RemoveAll(videoDir); err != nil {
		return result, services.Wrap(services.ErrConfiguration, stageName, "prepare", "clear video directory", err)
	}
	if err := os.MkdirAll(videoDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrConfiguration, stageName, "prepare", "create video directory", err)
	}

	var (
		asset VideoAsset
		err   error
	)
	switch ref.Kind {
	case source.KindLocal:
		asset, err = e.acquireLocal(ctx, ref, videoDir)
	case source.KindRemote:
		asset, err = e.acquireRemote(ctx, ref, workdir, videoDir, &result)
	default:
		err = services.Wrap(services.ErrInvalidSource, stageName, "classify", fmt.Sprintf("unknown source kind %q", ref.Kind), nil)
	}
	if err != nil {
		return result, err
	}
	if err := writeMetadata(workdir, asset); err != nil {
		return result, services.Wrap(services.ErrConfiguration, stageName, "write metadata", "", err)
	}
	result.Asset = asset
	return result, nil
}

func (e *Engine) acquireLocal(ctx context.Context, ref source.Reference, videoDir string) (VideoAsset, error) {
	logger := logging.WithContext(ctx, e.logger)
	info, err := os.Stat(ref.Path)
	if err != nil {
		return VideoAsset{}, services.Wrap(services.ErrInvalidSource, stageName, "stat source", ref.Path, err)
	}
	if e.limits.MaxBytes > 0 && info.Size() > e.limits.MaxBytes {
		return VideoAsset{}, services.Wrap(
			services.ErrSizeExceeded,
			stageName,
			"check size",
			fmt.Sprintf("%d bytes exceeds limit of %d bytes", info.Size(), e.limits.MaxBytes),
			nil,
		)
	}

	ext := strings.ToLower(filepath.Ext(ref.Path))
	dst := filepath.Join(videoDir, "source"+ext)
	if err := fileutil.CopyFile(ref.Path, dst); err != nil {
		return VideoAsset{}, services.Wrap(services.ErrConfiguration, stageName, "copy source", "", err)
	}
	logger.Info("local source copied",
		logging.String(logging.FieldEventType, "source_copied"),
		logging.String("source_file", ref.Path),
		logging.Int64("size_bytes", info.Size()),
	)

	title := strings.TrimSuffix(filepath.Base(ref.Path), filepath.Ext(ref.Path))
	asset, err := e.inspect(ctx, dst)
	if err != nil {
		return VideoAsset{}, err
	}
	asset.Title = title
	asset.SafeTitle = textutil.SanitizeTitle(title)
	return asset, nil
}

func (e *Engine) acquireRemote(ctx context.Context, ref source.Reference, workdir, videoDir string, result *Result) (VideoAsset, error) {
	logger := logging.WithContext(ctx, e.logger).With(
		logging.String("source_host", ref.Host),
		logging.String("platform", ref.Platform),
	)
	opts := e.requestOptions(ref)
	sessionDir := filepath.Join(workdir, SessionDir)
	if result.Jar != nil {
		opts = opts.WithCookieFile(result.Jar.File())
	}
	if source.RequiresSession(ref.Platform) {
		logger.Debug("platform commonly gates media behind session checks",
			logging.String(logging.FieldEventType, "session_gated_platform"),
		)
	}

	provisioned := result.Jar != nil
	provision := func(reason string) (bool, error) {
		if provisioned {
			return false, nil
		}
		provisioned = true
		result.ProvisionerCalls++
		logger.Info("provisioning session cookies",
			logging.String(logging.FieldEventType, "cookies_requested"),
			logging.String("reason", reason),
		)
		jar, err := e.provisioner.Provision(ctx, ref.Domain(), sessionDir)
		// Provisioners report failure as "no cookies", so a deadline that
		// expired inside the browser would otherwise read as an auth failure.
		if ctxErr := services.FromContext(ctx); ctxErr != nil {
			return false, ctxErr
		}
		if err != nil {
			return false, services.Wrap(services.ErrAuthenticationRequired, stageName, "provision cookies", "", err)
		}
		if jar == nil || jar.Len() == 0 {
			return false, nil
		}
		result.Jar = jar
		opts = opts.WithCookieFile(jar.File())
		return true, nil
	}

	info, err := e.fetcher.Probe(ctx, ref.URL, opts)
	if err != nil && ytdlp.ClassOf(err) == ytdlp.FailureAuth {
		ok, perr := provision("probe")
		if perr != nil {
			return VideoAsset{}, perr
		}
		if !ok {
			return VideoAsset{}, services.Wrap(services.ErrAuthenticationRequired, stageName, "probe",
				"source requires a session and no cookies could be obtained", err)
		}
		info, err = e.fetcher.Probe(ctx, ref.URL, opts)
	}
	if err != nil {
		return VideoAsset{}, e.remoteFailure(ctx, "probe", err)
	}
	if err := e.checkProbe(info); err != nil {
		return VideoAsset{}, err
	}
	logger.Info("source probed",
		logging.String(logging.FieldEventType, "source_probed"),
		logging.String("title", info.Title),
		logging.Float64("duration_seconds", info.Duration),
		logging.Int64("size_bytes", info.Size()),
	)

	stamp := e.now().UTC().Format("20060102_150405")
	template := filepath.Join(videoDir, "video_"+stamp+".%(ext)s")
	err = e.download(ctx, ref.URL, template, opts, result, logger)
	if err != nil && ytdlp.ClassOf(err) == ytdlp.FailureAuth {
		ok, perr := provision("download")
		if perr != nil {
			return VideoAsset{}, perr
		}
		if !ok {
			return VideoAsset{}, services.Wrap(services.ErrAuthenticationRequired, stageName, "download",
				"download rejected and no new cookies could be obtained", err)
		}
		err = e.download(ctx, ref.URL, template, opts, result, logger)
		if err != nil && ytdlp.ClassOf(err) == ytdlp.FailureAuth {
			return VideoAsset{}, services.Wrap(services.ErrAuthenticationRequired, stageName, "download",
				"download rejected with session cookies", err)
		}
	}
	if err != nil {
		return VideoAsset{}, e.remoteFailure(ctx, "download", err)
	}

	path, err := findDownload(videoDir, "video_"+stamp)
	if err != nil {
		return VideoAsset{}, err
	}
	asset, err := e.inspect(ctx, path)
	if err != nil {
		return VideoAsset{}, err
	}
	title := strings.TrimSpace(info.Title)
	if title == "" {
		title = info.ID
	}
	asset.Title = title
	asset.SafeTitle = textutil.SanitizeTitle(title)
	asset.Description = info.Description
	asset.Uploader = info.Uploader
	asset.UploadDate = info.UploadDate
	asset.ViewCount = info.ViewCount
	asset.LikeCount = info.LikeCount
	asset.SourceURL = firstNonEmpty(info.WebpageURL, ref.URL)
	asset.Extractor = info.Extractor
	return asset, nil
}

func (e *Engine) download(ctx context.Context, url, template string, opts ytdlp.Options, result *Result, logger *slog.Logger) error {
	downloadCtx := ctx
	if e.limits.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		downloadCtx, cancel = context.WithTimeout(ctx, e.limits.DownloadTimeout)
		defer cancel()
	}
	result.Downloads++
	sampler := logging.NewProgressSampler(10)
	start := time.Now()
	err := e.fetcher.Download(downloadCtx, url, template, opts, func(p ytdlp.Progress) {
		if !sampler.ShouldLog(p.Percent, "download") {
			return
		}
		logger.Info("download progress",
			logging.String(logging.FieldEventType, "download_progress"),
			logging.Float64("percent", p.Percent),
			logging.String("speed", p.Speed),
			logging.String("eta", p.ETA),
		)
	})
	if err == nil {
		logger.Info("download complete",
			logging.String(logging.FieldEventType, "download_complete"),
			logging.Duration("elapsed", time.Since(start)),
		)
		return nil
	}
	if ctx.Err() == nil && errors.Is(downloadCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrDownloadTimeout, stageName, "download",
			fmt.Sprintf("exceeded %s", e.limits.DownloadTimeout), err)
	}
	return err
}

// requestOptions returns the per-call yt-dlp options with a jittered request
// pause and origin headers for known platforms.
func (e *Engine) requestOptions(ref source.Reference) ytdlp.Options {
	opts := e.options
	if e.sleepMax > 0 {
		opts.SleepRequests = e.sleepMin + rand.Float64()*(e.sleepMax-e.sleepMin)
	}
	if ref.Platform != source.PlatformGeneric && ref.Host != "" {
		origin := ref.Origin()
		opts = opts.WithHeader("Origin", origin).WithHeader("Referer", origin+"/")
	}
	return opts
}

func (e *Engine) checkProbe(info ytdlp.Info) error {
	if info.IsLive {
		return services.Wrap(services.ErrDurationExceeded, stageName, "probe", "live streams have no bounded duration", nil)
	}
	if e.limits.MaxDuration > 0 && info.Duration > e.limits.MaxDuration.Seconds() {
		return services.Wrap(
			services.ErrDurationExceeded,
			stageName,
			"probe",
			fmt.Sprintf("%.1fs exceeds limit of %s", info.Duration, e.limits.MaxDuration),
			nil,
		)
	}
	if size := info.Size(); e.limits.MaxBytes > 0 && size > e.limits.MaxBytes {
		return services.Wrap(
			services.ErrSizeExceeded,
			stageName,
			"probe",
			fmt.Sprintf("%d bytes exceeds limit of %d bytes", size, e.limits.MaxBytes),
			nil,
		)
	}
	return nil
}

func (e *Engine) inspect(ctx context.Context, path string) (VideoAsset, error) {
	probe, err := e.inspector.Inspect(ctx, path)
	if err != nil {
		if ctxErr := services.FromContext(ctx); ctxErr != nil {
			return VideoAsset{}, ctxErr
		}
		return VideoAsset{}, services.Wrap(services.ErrNoMediaFound, stageName, "ffprobe", "file is not playable media", err)
	}
	video, ok := probe.VideoStream()
	duration := probe.DurationSeconds()
	if !ok || duration <= 0 {
		return VideoAsset{}, services.Wrap(services.ErrNoMediaFound, stageName, "ffprobe",
			fmt.Sprintf("%s has no video stream with a positive duration", filepath.Base(path)), nil)
	}
	if e.limits.MaxDuration > 0 && duration > (e.limits.MaxDuration+durationTolerance).Seconds() {
		return VideoAsset{}, services.Wrap(
			services.ErrDurationExceeded,
			stageName,
			"ffprobe",
			fmt.Sprintf("%.1fs exceeds limit of %s", duration, e.limits.MaxDuration),
			nil,
		)
	}
	size := probe.SizeBytes()
	if size <= 0 {
		if info, statErr := os.Stat(path); statErr == nil {
			size = info.Size()
		}
	}
	if e.limits.MaxBytes > 0 && size > e.limits.MaxBytes {
		return VideoAsset{}, services.Wrap(
			services.ErrSizeExceeded,
			stageName,
			"ffprobe",
			fmt.Sprintf("%d bytes exceeds limit of %d bytes", size, e.limits.MaxBytes),
			nil,
		)
	}
	asset := VideoAsset{
		Path:       path,
		Duration:   duration,
		Container:  probe.Container(),
		VideoCodec: video.CodecName,
		Width:      video.Width,
		Height:     video.Height,
		HasAudio:   probe.HasAudio(),
		SizeBytes:  size,
	}
	if audio, ok := probe.AudioStream(); ok {
		asset.AudioCodec = audio.CodecName
	}
	return asset, nil
}

func (e *Engine) remoteFailure(ctx context.Context, op string, err error) error {
	if ctxErr := services.FromContext(ctx); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	if errors.Is(err, services.ErrDownloadTimeout) {
		return err
	}
	switch ytdlp.ClassOf(err) {
	case ytdlp.FailureNotFound:
		return services.Wrap(services.ErrNoMediaFound, stageName, op, "no downloadable media at source", err)
	case ytdlp.FailureAuth:
		return services.Wrap(services.ErrAuthenticationRequired, stageName, op, "", err)
	case ytdlp.FailureTimeout:
		return services.Transient(services.Wrap(services.ErrExternalTool, stageName, op, "network timeout", err))
	}
	return services.Transient(services.Wrap(services.ErrExternalTool, stageName, op, "yt-dlp failed", err))
}

// findDownload locates the media file yt-dlp produced for prefix, preferring
// mp4 when several containers exist.
func findDownload(dir, prefix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*"))
	if err != nil {
		return "", services.Wrap(services.ErrNoMediaFound, stageName, "locate download", "", err)
	}
	candidates := make([]string, 0, len(matches))
	for _, match := range matches {
		switch strings.ToLower(filepath.Ext(match)) {
		case ".part", ".ytdl", ".json", ".tmp":
			continue
		}
		info, statErr := os.Stat(match)
		if statErr != nil || !info.Mode().IsRegular() || info.Size() == 0 {
			continue
		}
		candidates = append(candidates, match)
	}
	if len(candidates) == 0 {
		return "", services.Wrap(services.ErrNoMediaFound, stageName, "locate download", "yt-dlp produced no media file", nil)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		iMP4 := strings.EqualFold(filepath.Ext(candidates[i]), ".mp4")
		jMP4 := strings.EqualFold(filepath.Ext(candidates[j]), ".mp4")
		if iMP4 != jMP4 {
			return iMP4
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0], nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
