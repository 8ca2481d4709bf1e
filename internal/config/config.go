package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	StateDir  string `toml:"state_dir"`
	EnvFile   string `toml:"env_file"`
}

// Limits bounds what a single job may consume.
type Limits struct {
	MaxDurationSeconds   int      `toml:"max_duration_seconds"`
	MaxUploadBytes       int64    `toml:"max_upload_bytes"`
	AllowedOutputFormats []string `toml:"allowed_output_formats"`
	MaxConcurrentJobs    int      `toml:"max_concurrent_jobs"`
	MinFreeDiskMB        int      `toml:"min_free_disk_mb"`
}

// Timeouts are wall-clock budgets in seconds.
type Timeouts struct {
	Acquire    int `toml:"acquire"`
	Analyze    int `toml:"analyze"`
	Script     int `toml:"script"`
	Synthesize int `toml:"synthesize"`
	Compose    int `toml:"compose"`
	Download   int `toml:"download"`
	Browser    int `toml:"browser"`
	Job        int `toml:"job"`
}

// Retry configures in-place stage retries for transient failures.
type Retry struct {
	MaxAttempts      int `toml:"max_attempts"`
	InitialBackoffMS int `toml:"initial_backoff_ms"`
	MaxBackoffMS     int `toml:"max_backoff_ms"`
}

// Acquisition configures the yt-dlp downloader and media inspection tools.
type Acquisition struct {
	YtDlpBinary         string `toml:"yt_dlp_binary"`
	FFmpegBinary        string `toml:"ffmpeg_binary"`
	FFprobeBinary       string `toml:"ffprobe_binary"`
	Format              string `toml:"format"`
	UserAgent           string `toml:"user_agent"`
	SleepIntervalMin    int    `toml:"sleep_interval_min"`
	SleepIntervalMax    int    `toml:"sleep_interval_max"`
	SleepRequestsMin    int    `toml:"sleep_requests_min"`
	SleepRequestsMax    int    `toml:"sleep_requests_max"`
	HTTPChunkSize       int64  `toml:"http_chunk_size"`
	Retries             int    `toml:"retries"`
	FragmentRetries     int    `toml:"fragment_retries"`
	SocketTimeout       int    `toml:"socket_timeout"`
	ConcurrentFragments int    `toml:"concurrent_fragments"`
}

// Browser configures the headless session provisioner.
type Browser struct {
	Enabled        bool   `toml:"enabled"`
	ExecPath       string `toml:"exec_path"`
	Headless       bool   `toml:"headless"`
	ViewportWidth  int    `toml:"viewport_width"`
	ViewportHeight int    `toml:"viewport_height"`
	// SettleSeconds is the pause after the page reports ready, giving
	// challenge scripts time to set their cookies.
	SettleSeconds int `toml:"settle_seconds"`
	// CookieFile is a Netscape cookie export used instead of launching the
	// browser when set.
	CookieFile string `toml:"cookie_file"`
}

// Vision configures frame sampling and the vision model.
type Vision struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	SampleFPS      float64 `toml:"sample_fps"`
	SceneThreshold float64 `toml:"scene_threshold"`
	MaxFrames      int     `toml:"max_frames"`
	DetailedFrames int     `toml:"detailed_frames"`
	MinConfidence  float64 `toml:"min_confidence"`
	Concurrency    int     `toml:"concurrency"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// LLM contains the commentary model connection settings. OpenAIAPIKey and
// DeepSeekAPIKey serve jobs that pick a provider other than Provider.
type LLM struct {
	Provider       string  `toml:"provider"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	OpenAIAPIKey   string  `toml:"openai_api_key"`
	DeepSeekAPIKey string  `toml:"deepseek_api_key"`
}

// TTS contains speech synthesis settings.
type TTS struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	VoiceEN        string `toml:"voice_en"`
	VoiceUR        string `toml:"voice_ur"`
	Format         string `toml:"format"`
	Concurrency    int    `toml:"concurrency"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Compositor configures the final mux.
type Compositor struct {
	DuckVolume   float64 `toml:"duck_volume"`
	AudioBitrate string  `toml:"audio_bitrate"`
	OutputFormat string  `toml:"output_format"`
	Vertical     bool    `toml:"vertical"`
	LogoDir      string  `toml:"logo_dir"`
}

// Workflow contains orchestration defaults and janitor timing.
type Workflow struct {
	DefaultStyle           string `toml:"default_style"`
	DefaultLanguage        string `toml:"default_language"`
	RetainOutput           bool   `toml:"retain_output"`
	JanitorIntervalSeconds int    `toml:"janitor_interval_seconds"`
	JanitorGraceSeconds    int    `toml:"janitor_grace_seconds"`
	HistoryRetentionDays   int    `toml:"history_retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Success        bool   `toml:"success"`
	Failure        bool   `toml:"failure"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// API configures the daemon HTTP surface.
type API struct {
	Bind        string   `toml:"bind"`
	Token       string   `toml:"token"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Config encapsulates all configuration values for narrator.
//
// Configuration sections by subsystem:
//   - Paths: work, output, log and state directories
//   - Limits: duration/size ceilings and concurrency
//   - Timeouts, Retry: per-stage budgets and in-place retry policy
//   - Acquisition, Browser: yt-dlp transfer settings and cookie provisioning
//   - Vision, LLM, TTS: external service adapters
//   - Compositor: final mux settings
//   - Workflow: defaults and working directory janitor
//   - Notifications, Logging, API: operator surfaces
type Config struct {
	Paths         Paths         `toml:"paths"`
	Limits        Limits        `toml:"limits"`
	Timeouts      Timeouts      `toml:"timeouts"`
	Retry         Retry         `toml:"retry"`
	Acquisition   Acquisition   `toml:"acquisition"`
	Browser       Browser       `toml:"browser"`
	Vision        Vision        `toml:"vision"`
	LLM           LLM           `toml:"llm"`
	TTS           TTS           `toml:"tts"`
	Compositor    Compositor    `toml:"compositor"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	API           API           `toml:"api"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadEnvFile(cfg.Paths.EnvFile); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("narrator.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a job run needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StorePath is the sqlite job history database.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "narratord.lock")
}

// MaxDuration returns the source duration ceiling.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.Limits.MaxDurationSeconds) * time.Second
}

// StageTimeout returns the wall-clock budget for the named pipeline stage.
// Unknown stages get the job budget.
func (c *Config) StageTimeout(stage string) time.Duration {
	var seconds int
	switch strings.ToLower(strings.TrimSpace(stage)) {
	case "acquiring":
		seconds = c.Timeouts.Acquire
	case "analyzing":
		seconds = c.Timeouts.Analyze
	case "scripting":
		seconds = c.Timeouts.Script
	case "synthesizing":
		seconds = c.Timeouts.Synthesize
	case "compositing":
		seconds = c.Timeouts.Compose
	default:
		seconds = c.Timeouts.Job
	}
	return time.Duration(seconds) * time.Second
}

// JobTimeout returns the overall budget for one job.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Timeouts.Job) * time.Second
}

// BrowserTimeout bounds one cookie provisioning run.
func (c *Config) BrowserTimeout() time.Duration {
	return time.Duration(c.Timeouts.Browser) * time.Second
}

// DownloadTimeout returns the budget of one yt-dlp transfer. It sits inside
// the acquire budget so a stalled transfer surfaces as a download timeout.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Download) * time.Second
}

// RetryBackoff returns the initial and maximum backoff delays.
func (c *Config) RetryBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.Retry.InitialBackoffMS) * time.Millisecond,
		time.Duration(c.Retry.MaxBackoffMS) * time.Millisecond
}

// FFprobeBinary returns the ffprobe executable used for media inspection.
func (c *Config) FFprobeBinary() string {
	return c.Acquisition.FFprobeBinary
}

// FFmpegBinary returns the ffmpeg executable used for sampling and muxing.
func (c *Config) FFmpegBinary() string {
	return c.Acquisition.FFmpegBinary
}

// YtDlpBinary returns the yt-dlp executable used for acquisition.
func (c *Config) YtDlpBinary() string {
	return c.Acquisition.YtDlpBinary
}

// OutputAllowed reports whether format is an allowed output container.
func (c *Config) OutputAllowed(format string) bool {
	format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	for _, allowed := range c.Limits.AllowedOutputFormats {
		if allowed == format {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ServiceConfig contains the connection settings of one OpenAI-compatible API.
type ServiceConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// LLMService returns the commentary model connection settings.
func (c *Config) LLMService() ServiceConfig {
	return ServiceConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}

// LLMServiceFor returns the script model settings for a job that names its
// own provider or model. Empty values select the configured ones. Providers
// other than llm.provider use their default endpoint and model.
func (c *Config) LLMServiceFor(provider, model string) (ServiceConfig, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = c.LLM.Provider
	}
	svc := c.LLMService()
	if provider != c.LLM.Provider {
		svc.TimeoutSeconds = c.LLM.TimeoutSeconds
		switch provider {
		case providerOpenAI:
			svc.APIKey = strings.TrimSpace(c.LLM.OpenAIAPIKey)
			svc.BaseURL = defaultOpenAIBaseURL
			svc.Model = defaultOpenAIModel
		case providerDeepSeek:
			svc.APIKey = strings.TrimSpace(c.LLM.DeepSeekAPIKey)
			svc.BaseURL = defaultDeepSeekBaseURL
			svc.Model = defaultDeepSeekModel
		default:
			return ServiceConfig{}, fmt.Errorf("llm provider %q is not supported", provider)
		}
	}
	if model = strings.TrimSpace(model); model != "" {
		svc.Model = model
	}
	if svc.APIKey == "" {
		return ServiceConfig{}, fmt.Errorf("llm provider %q has no api key configured", provider)
	}
	return svc, nil
}

// VisionService returns the vision model connection settings.
// Connection details fall back to [llm] when not set.
func (c *Config) VisionService() ServiceConfig {
	cfg := ServiceConfig{
		APIKey:         strings.TrimSpace(c.Vision.APIKey),
		BaseURL:        strings.TrimSpace(c.Vision.BaseURL),
		Model:          strings.TrimSpace(c.Vision.Model),
		TimeoutSeconds: c.Vision.TimeoutSeconds,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(c.LLM.APIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	}
	return cfg
}

// TTSService returns the speech synthesis connection settings.
func (c *Config) TTSService() ServiceConfig {
	return ServiceConfig{
		APIKey:         strings.TrimSpace(c.TTS.APIKey),
		BaseURL:        strings.TrimSpace(c.TTS.BaseURL),
		Model:          strings.TrimSpace(c.TTS.Model),
		TimeoutSeconds: c.TTS.TimeoutSeconds,
	}
}

// Voice returns the configured voice for a commentary language.
func (c *Config) Voice(language string) string {
	if strings.EqualFold(strings.TrimSpace(language), "ur") {
		return c.TTS.VoiceUR
	}
	return c.TTS.VoiceEN
}

// Redacted returns a copy with every credential replaced by a marker, for
// display.
func (c Config) Redacted() Config {
	mask := func(s *string) {
		if strings.TrimSpace(*s) != "" {
			*s = "********"
		}
	}
	mask(&c.Vision.APIKey)
	mask(&c.LLM.APIKey)
	mask(&c.LLM.OpenAIAPIKey)
	mask(&c.LLM.DeepSeekAPIKey)
	mask(&c.TTS.APIKey)
	mask(&c.API.Token)
	return c
}
