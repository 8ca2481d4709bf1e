package config

const (
	defaultConfigPath         = "~/.config/narrator/config.toml"
	defaultWorkDir            = "~/.local/share/narrator/work"
	defaultOutputDir          = "~/.local/share/narrator/output"
	defaultLogDir             = "~/.local/share/narrator/logs"
	defaultStateDir           = "~/.local/share/narrator/state"
	defaultMaxDurationSeconds = 120
	defaultMaxUploadBytes     = 50 * 1024 * 1024
	defaultMaxConcurrentJobs  = 2
	defaultMinFreeDiskMB      = 512
	defaultYtDlpBinary        = "yt-dlp"
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultDownloadFormat     = "best"
	defaultUserAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultHTTPChunkSize      = 10 * 1024 * 1024
	defaultOpenAIBaseURL      = "https://api.openai.com/v1"
	defaultDeepSeekBaseURL    = "https://api.deepseek.com/v1"
	defaultOpenAIModel        = "gpt-4o-mini"
	defaultDeepSeekModel      = "deepseek-chat"
	defaultVisionModel        = "gpt-4o"
	defaultTTSModel           = "tts-1"
	defaultTTSFormat          = "mp3"
	defaultAudioBitrate       = "192k"
	defaultOutputFormat       = "mp4"
	defaultStyle              = "documentary"
	defaultLanguage           = "en"
	defaultLogFormat          = "auto"
	defaultLogLevel           = "info"
	defaultAPIBind            = "127.0.0.1:7490"
	defaultJanitorInterval    = 600
	defaultJanitorGrace       = 3600
	defaultHistoryRetention   = 30
	defaultNotifyTimeout      = 10
	providerOpenAI            = "openai"
	providerDeepSeek          = "deepseek"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
		},
		Limits: Limits{
			MaxDurationSeconds:   defaultMaxDurationSeconds,
			MaxUploadBytes:       defaultMaxUploadBytes,
			AllowedOutputFormats: []string{defaultOutputFormat},
			MaxConcurrentJobs:    defaultMaxConcurrentJobs,
			MinFreeDiskMB:        defaultMinFreeDiskMB,
		},
		Timeouts: Timeouts{
			Acquire:    300,
			Analyze:    240,
			Script:     120,
			Synthesize: 180,
			Compose:    300,
			Download:   240,
			Browser:    45,
			Job:        1200,
		},
		Retry: Retry{
			MaxAttempts:      3,
			InitialBackoffMS: 2000,
			MaxBackoffMS:     20000,
		},
		Acquisition: Acquisition{
			YtDlpBinary:         defaultYtDlpBinary,
			FFmpegBinary:        defaultFFmpegBinary,
			FFprobeBinary:       defaultFFprobeBinary,
			Format:              defaultDownloadFormat,
			UserAgent:           defaultUserAgent,
			SleepIntervalMin:    1,
			SleepIntervalMax:    5,
			SleepRequestsMin:    1,
			SleepRequestsMax:    5,
			HTTPChunkSize:       defaultHTTPChunkSize,
			Retries:             10,
			FragmentRetries:     10,
			SocketTimeout:       30,
			ConcurrentFragments: 1,
		},
		Browser: Browser{
			Enabled:        true,
			Headless:       true,
			ViewportWidth:  1366,
			ViewportHeight: 768,
			SettleSeconds:  3,
		},
		Vision: Vision{
			Model:          defaultVisionModel,
			SampleFPS:      1,
			SceneThreshold: 0.3,
			MaxFrames:      12,
			DetailedFrames: 3,
			MinConfidence:  0.7,
			Concurrency:    4,
			TimeoutSeconds: 60,
		},
		LLM: LLM{
			Provider:       providerOpenAI,
			Temperature:    0.7,
			TimeoutSeconds: 60,
		},
		TTS: TTS{
			Model:          defaultTTSModel,
			VoiceEN:        "alloy",
			VoiceUR:        "nova",
			Format:         defaultTTSFormat,
			Concurrency:    4,
			TimeoutSeconds: 60,
		},
		Compositor: Compositor{
			DuckVolume:   0.25,
			AudioBitrate: defaultAudioBitrate,
			OutputFormat: defaultOutputFormat,
		},
		Workflow: Workflow{
			DefaultStyle:           defaultStyle,
			DefaultLanguage:        defaultLanguage,
			RetainOutput:           true,
			JanitorIntervalSeconds: defaultJanitorInterval,
			JanitorGraceSeconds:    defaultJanitorGrace,
			HistoryRetentionDays:   defaultHistoryRetention,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Success:        true,
			Failure:        true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		API: API{
			Bind: defaultAPIBind,
		},
	}
}
