// Package redact removes secrets from diff context and finding text before
// either is sent to a provider or stored in the verdict cache.
//
// Detection is regex heuristics over common secret shapes: API keys, JWTs,
// private key headers, AWS keys, bearer tokens, connection strings with
// inline passwords, and provider tokens (Anthropic, GitHub, Slack, Google).
//
// Files matching the gitignore-style privacy.redact_paths patterns have their
// whole content replaced instead of being scanned line by line.
package redact
