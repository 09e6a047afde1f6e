// Package cli wires together the Cobra command tree for the secreview binary.
//
// It defines the root command and the scan, rules, provider, config, cache
// and version subcommands, binds flags, reads configuration, runs the
// findings pipeline, and returns deterministic exit codes for CI gating.
package cli
