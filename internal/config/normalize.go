package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLimits()
	c.normalizeAcquisition()
	if err := c.normalizeBrowser(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeVision()
	c.normalizeTTS()
	if err := c.normalizeCompositor(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.normalizeAPI()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"paths.work_dir", &c.Paths.WorkDir, defaultWorkDir},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	c.Paths.EnvFile = strings.TrimSpace(c.Paths.EnvFile)
	return nil
}

func (c *Config) normalizeLimits() {
	formats := make([]string, 0, len(c.Limits.AllowedOutputFormats))
	seen := make(map[string]struct{}, len(c.Limits.AllowedOutputFormats))
	for _, format := range c.Limits.AllowedOutputFormats {
		normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		formats = append(formats, normalized)
	}
	if len(formats) == 0 {
		formats = []string{defaultOutputFormat}
	}
	c.Limits.AllowedOutputFormats = formats
}

func (c *Config) normalizeAcquisition() {
	a := &c.Acquisition
	a.YtDlpBinary = fallbackString(a.YtDlpBinary, defaultYtDlpBinary)
	a.FFmpegBinary = fallbackString(a.FFmpegBinary, defaultFFmpegBinary)
	a.FFprobeBinary = fallbackString(a.FFprobeBinary, defaultFFprobeBinary)
	a.Format = fallbackString(a.Format, defaultDownloadFormat)
	a.UserAgent = fallbackString(a.UserAgent, defaultUserAgent)
}

func (c *Config) normalizeBrowser() error {
	c.Browser.ExecPath = strings.TrimSpace(c.Browser.ExecPath)
	if c.Browser.ExecPath == "" {
		c.Browser.ExecPath = lookupEnv("CHROME_PATH")
	}
	cookieFile, err := expandPath(strings.TrimSpace(c.Browser.CookieFile))
	if err != nil {
		return fmt.Errorf("browser.cookie_file: %w", err)
	}
	c.Browser.CookieFile = cookieFile
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = providerOpenAI
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.LLM.OpenAIAPIKey = fallbackString(c.LLM.OpenAIAPIKey, lookupEnv("OPENAI_API_KEY"))
	c.LLM.DeepSeekAPIKey = fallbackString(c.LLM.DeepSeekAPIKey, lookupEnv("DEEPSEEK_API_KEY"))
	switch c.LLM.Provider {
	case providerDeepSeek:
		c.LLM.APIKey = fallbackString(c.LLM.APIKey, c.LLM.DeepSeekAPIKey)
		c.LLM.BaseURL = fallbackString(c.LLM.BaseURL, defaultDeepSeekBaseURL)
		c.LLM.Model = fallbackString(c.LLM.Model, defaultDeepSeekModel)
	default:
		c.LLM.APIKey = fallbackString(c.LLM.APIKey, c.LLM.OpenAIAPIKey)
		c.LLM.BaseURL = fallbackString(c.LLM.BaseURL, defaultOpenAIBaseURL)
		c.LLM.Model = fallbackString(c.LLM.Model, defaultOpenAIModel)
	}
}

// Vision always needs an image-capable model; deepseek chat is text-only, so
// vision falls back to OpenAI credentials rather than the [llm] provider.
func (c *Config) normalizeVision() {
	c.Vision.APIKey = strings.TrimSpace(c.Vision.APIKey)
	if c.Vision.APIKey == "" {
		c.Vision.APIKey = lookupEnv("NARRATOR_VISION_API_KEY", "OPENAI_API_KEY")
	}
	c.Vision.BaseURL = fallbackString(c.Vision.BaseURL, defaultOpenAIBaseURL)
	c.Vision.Model = fallbackString(c.Vision.Model, defaultVisionModel)
}

func (c *Config) normalizeTTS() {
	c.TTS.APIKey = strings.TrimSpace(c.TTS.APIKey)
	if c.TTS.APIKey == "" {
		c.TTS.APIKey = lookupEnv("NARRATOR_TTS_API_KEY", "OPENAI_API_KEY")
	}
	c.TTS.BaseURL = fallbackString(c.TTS.BaseURL, defaultOpenAIBaseURL)
	c.TTS.Model = fallbackString(c.TTS.Model, defaultTTSModel)
	c.TTS.Format = strings.ToLower(fallbackString(c.TTS.Format, defaultTTSFormat))
	c.TTS.VoiceEN = strings.TrimSpace(c.TTS.VoiceEN)
	c.TTS.VoiceUR = strings.TrimSpace(c.TTS.VoiceUR)
}

func (c *Config) normalizeCompositor() error {
	c.Compositor.AudioBitrate = fallbackString(c.Compositor.AudioBitrate, defaultAudioBitrate)
	c.Compositor.OutputFormat = strings.ToLower(strings.TrimPrefix(fallbackString(c.Compositor.OutputFormat, defaultOutputFormat), "."))
	if strings.TrimSpace(c.Compositor.LogoDir) != "" {
		expanded, err := expandPath(strings.TrimSpace(c.Compositor.LogoDir))
		if err != nil {
			return fmt.Errorf("compositor.logo_dir: %w", err)
		}
		c.Compositor.LogoDir = expanded
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.DefaultStyle = strings.ToLower(fallbackString(c.Workflow.DefaultStyle, defaultStyle))
	c.Workflow.DefaultLanguage = strings.ToLower(fallbackString(c.Workflow.DefaultLanguage, defaultLanguage))
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(fallbackString(c.Logging.Format, defaultLogFormat))
	c.Logging.Level = strings.ToLower(fallbackString(c.Logging.Level, defaultLogLevel))
	if len(c.Logging.StageOverrides) == 0 {
		return
	}
	overrides := make(map[string]string, len(c.Logging.StageOverrides))
	for stage, level := range c.Logging.StageOverrides {
		stage = strings.ToLower(strings.TrimSpace(stage))
		level = strings.ToLower(strings.TrimSpace(level))
		if stage == "" || level == "" {
			continue
		}
		overrides[stage] = level
	}
	c.Logging.StageOverrides = overrides
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		c.API.Token = lookupEnv("NARRATOR_API_TOKEN")
	}
	origins := c.API.CORSOrigins[:0]
	for _, origin := range c.API.CORSOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	c.API.CORSOrigins = origins
}

func fallbackString(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
