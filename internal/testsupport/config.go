package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"narrator/internal/config"
)

// ConfigOption adjusts the config built by NewConfig. base is the test's
// private temp directory.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns defaults rooted in a fresh temp directory, with every
// service key filled so credential checks pass and the API bound to an
// ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		WorkDir:   filepath.Join(base, "work"),
		OutputDir: filepath.Join(base, "output"),
		LogDir:    filepath.Join(base, "logs"),
		StateDir:  filepath.Join(base, "state"),
	}
	cfg.LLM.APIKey = "test-llm"
	cfg.Vision.APIKey = "test-vision"
	cfg.TTS.APIKey = "test-tts"
	cfg.API.Bind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithoutCredentials leaves every service key empty.
func WithoutCredentials() ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) {
		cfg.LLM.APIKey, cfg.Vision.APIKey, cfg.TTS.APIKey = "", "", ""
	}
}

// WithStubbedBinaries puts shell stubs that print a version and exit 0 first
// on PATH. With no names the yt-dlp and ffmpeg toolchain is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	if len(names) == 0 {
		names = []string{"yt-dlp", "ffmpeg", "ffprobe"}
	}
	return func(t testing.TB, base string, _ *config.Config) {
		bin := filepath.Join(base, "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			t.Fatalf("mkdir stub dir: %v", err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\necho stub 1.0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the temp directory a NewConfig config is rooted in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
