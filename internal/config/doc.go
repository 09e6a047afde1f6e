// Package config loads and merges secreview configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (LLM_PROVIDER, CLAUDE_MODEL, ENABLE_CLAUDE_FILTERING, etc.)
//  3. Project file (.secreview.toml) or the file named by --config
//  4. User file ($XDG_CONFIG_HOME/secreview/config.toml)
//  5. Built-in defaults
//
// Use [Load] to obtain a merged [Config] and [Config.Validate] to reject it
// before any scan starts. Every validation error wraps [ErrInvalidConfiguration].
package config
