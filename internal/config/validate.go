package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var validLogLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {}}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateAcquisition(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateCompositor(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// RequireCredentials reports missing API keys. Commands that run jobs call it;
// commands that only read history do not.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.LLM.APIKey == "" {
		env := "OPENAI_API_KEY"
		if c.LLM.Provider == providerDeepSeek {
			env = "DEEPSEEK_API_KEY"
		}
		missing = append(missing, "llm.api_key ("+env+")")
	}
	if c.Vision.APIKey == "" {
		missing = append(missing, "vision.api_key (NARRATOR_VISION_API_KEY or OPENAI_API_KEY)")
	}
	if c.TTS.APIKey == "" {
		missing = append(missing, "tts.api_key (NARRATOR_TTS_API_KEY or OPENAI_API_KEY)")
	}
	if len(missing) == 0 {
		return nil
	}
	path, err := DefaultConfigPath()
	if err != nil {
		path = defaultConfigPath
	}
	return fmt.Errorf("missing credentials: %s. Set the env vars, a .env file, or edit %s (create with 'narrator config init')",
		strings.Join(missing, ", "), path)
}

func (c *Config) validateLimits() error {
	if c.Limits.MaxDurationSeconds <= 0 {
		return errors.New("limits.max_duration_seconds must be positive")
	}
	if c.Limits.MaxUploadBytes <= 0 {
		return errors.New("limits.max_upload_bytes must be positive")
	}
	if c.Limits.MaxConcurrentJobs <= 0 {
		return errors.New("limits.max_concurrent_jobs must be positive")
	}
	if c.Limits.MinFreeDiskMB < 0 {
		return errors.New("limits.min_free_disk_mb must not be negative")
	}
	if !c.OutputAllowed(c.Compositor.OutputFormat) {
		return fmt.Errorf("compositor.output_format %q is not in limits.allowed_output_formats %v",
			c.Compositor.OutputFormat, c.Limits.AllowedOutputFormats)
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	if err := ensurePositiveMap(map[string]int{
		"timeouts.acquire":    c.Timeouts.Acquire,
		"timeouts.analyze":    c.Timeouts.Analyze,
		"timeouts.script":     c.Timeouts.Script,
		"timeouts.synthesize": c.Timeouts.Synthesize,
		"timeouts.compose":    c.Timeouts.Compose,
		"timeouts.download":   c.Timeouts.Download,
		"timeouts.browser":    c.Timeouts.Browser,
		"timeouts.job":        c.Timeouts.Job,
	}); err != nil {
		return err
	}
	if c.Timeouts.Browser >= c.Timeouts.Acquire {
		return errors.New("timeouts.browser must be shorter than timeouts.acquire")
	}
	if c.Timeouts.Download >= c.Timeouts.Acquire {
		return errors.New("timeouts.download must be shorter than timeouts.acquire")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		return errors.New("retry.max_attempts must be between 1 and 10")
	}
	if c.Retry.InitialBackoffMS < 0 {
		return errors.New("retry.initial_backoff_ms must not be negative")
	}
	if c.Retry.MaxBackoffMS < c.Retry.InitialBackoffMS {
		return errors.New("retry.max_backoff_ms must be at least retry.initial_backoff_ms")
	}
	return nil
}

func (c *Config) validateAcquisition() error {
	a := c.Acquisition
	if a.SleepIntervalMin < 0 || a.SleepIntervalMax < a.SleepIntervalMin {
		return errors.New("acquisition.sleep_interval_min/max must satisfy 0 <= min <= max")
	}
	if a.SleepRequestsMin < 0 || a.SleepRequestsMax < a.SleepRequestsMin {
		return errors.New("acquisition.sleep_requests_min/max must satisfy 0 <= min <= max")
	}
	return ensurePositiveMap(map[string]int{
		"acquisition.socket_timeout":       a.SocketTimeout,
		"acquisition.concurrent_fragments": a.ConcurrentFragments,
	})
}

func (c *Config) validateServices() error {
	if c.LLM.Provider != providerOpenAI && c.LLM.Provider != providerDeepSeek {
		return fmt.Errorf("llm.provider must be %q or %q, got %q", providerOpenAI, providerDeepSeek, c.LLM.Provider)
	}
	if c.LLM.Provider != providerOpenAI && isUrdu(c.Workflow.DefaultLanguage) {
		return fmt.Errorf("workflow.default_language %q requires llm.provider %q", c.Workflow.DefaultLanguage, providerOpenAI)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 1 {
		return errors.New("vision.min_confidence must be between 0 and 1")
	}
	if c.Vision.SceneThreshold <= 0 || c.Vision.SceneThreshold >= 1 {
		return errors.New("vision.scene_threshold must be between 0 and 1")
	}
	if c.Vision.SampleFPS <= 0 || c.Vision.SampleFPS > 10 {
		return errors.New("vision.sample_fps must be in (0, 10]")
	}
	if c.Vision.DetailedFrames < 0 || c.Vision.DetailedFrames > c.Vision.MaxFrames {
		return errors.New("vision.detailed_frames must be between 0 and vision.max_frames")
	}
	return ensurePositiveMap(map[string]int{
		"vision.max_frames":      c.Vision.MaxFrames,
		"vision.concurrency":     c.Vision.Concurrency,
		"vision.timeout_seconds": c.Vision.TimeoutSeconds,
		"llm.timeout_seconds":    c.LLM.TimeoutSeconds,
		"tts.concurrency":        c.TTS.Concurrency,
		"tts.timeout_seconds":    c.TTS.TimeoutSeconds,
	})
}

func (c *Config) validateCompositor() error {
	if c.Compositor.DuckVolume < 0 || c.Compositor.DuckVolume > 1 {
		return errors.New("compositor.duck_volume must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console or json, got %q", c.Logging.Format)
	}
	if _, ok := validLogLevels[c.Logging.Level]; !ok {
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	for stage, level := range c.Logging.StageOverrides {
		if _, ok := validLogLevels[level]; !ok {
			return fmt.Errorf("logging.stage_overrides.%s: level %q is not recognized", stage, level)
		}
	}
	return nil
}

func isUrdu(tag string) bool {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(tag)), "-")
	return base == "ur"
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
