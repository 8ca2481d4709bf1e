// Package tts is a client for OpenAI-compatible speech synthesis APIs
// (POST {base_url}/audio/speech). Retries follow the llm client policy.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"narrator/internal/services/httpapi"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "tts-1"
	defaultFormat      = "mp3"
	defaultHTTPTimeout = 60 * time.Second
	speechPath         = "/audio/speech"
	// maxInputChars is the provider limit on a single request.
	maxInputChars = 4096
)

// Config captures the speech endpoint settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Format         string
	TimeoutSeconds int
}

// Client synthesizes speech over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     httpapi.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy httpapi.Policy) Option {
	return func(c *Client) { c.policy = policy }
}

// NewClient constructs a client, filling unset fields with OpenAI defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format)); cfg.Format == "" {
		cfg.Format = defaultFormat
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		policy:     httpapi.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Format returns the audio container the service produces, which is also the
// clip file extension.
func (c *Client) Format() string { return c.cfg.Format }

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize returns encoded audio for text spoken by voice. The language is
// carried by the text itself for OpenAI voices and is only checked here.
func (c *Client) Synthesize(ctx context.Context, text, voice, language string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("tts synthesize: api key required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("tts synthesize: text required")
	}
	if len([]rune(text)) > maxInputChars {
		return nil, fmt.Errorf("tts synthesize: text exceeds %d characters", maxInputChars)
	}
	if strings.TrimSpace(voice) == "" {
		return nil, fmt.Errorf("tts synthesize: no voice for language %q", language)
	}
	encoded, err := json.Marshal(speechRequest{
		Model:          c.cfg.Model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: c.cfg.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("tts request: encode body: %w", err)
	}

	var audio []byte
	err = c.policy.Do(ctx, "tts synthesize", func(int) error {
		var err error
		audio, err = c.send(ctx, encoded)
		return err
	})
	return audio, err
}

type emptyAudioError struct{}

func (emptyAudioError) Error() string   { return "tts request: empty audio response" }
func (emptyAudioError) Temporary() bool { return true }

func (c *Client) send(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+speechPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, httpapi.NewStatusError("tts", resp, data)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return nil, fmt.Errorf("tts request: expected audio, got json: %s", httpapi.Snippet(string(data)))
	}
	if len(data) == 0 {
		return nil, emptyAudioError{}
	}
	return data, nil
}
