// Package config loads, normalizes, and validates narrator configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a dotenv file for credentials, and
// honours environment fallbacks such as OPENAI_API_KEY. Limits, per-stage
// timeouts and retry policy live here so every component receives them as
// explicit values at construction time.
package config
