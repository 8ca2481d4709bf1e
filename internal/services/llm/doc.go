// Package llm is a client for OpenAI-compatible chat completion APIs.
//
// It serves the two model-backed stages of the pipeline:
//   - Analyzing: vision requests carrying one base64 frame plus a prompt
//   - Scripting: JSON-only commentary requests
//
// # Providers
//
// Any endpoint implementing POST {base_url}/chat/completions works. The
// configuration layer supplies OpenAI and DeepSeek defaults.
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.Complete: send a Request, receive the raw message content.
// Client.CompleteJSON: JSON-mode request decoded into a target value.
// Client.HealthCheck: single-attempt ping used by preflight.
// DecodeLLMJSON: tolerant decoding of fenced or prefixed JSON payloads.
//
// # Retry Behaviour
//
// Requests are retried on HTTP 408/429/5xx, empty content and network
// timeouts with exponential backoff (base 1s, max 10s, 5 attempts by
// default). Retry-After is honored up to the maximum delay. An exhausted
// retry budget is returned as a transient error so the stage executor may
// retry the whole stage.
package llm
