package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

var (
	formats    = []string{"text", "json", "markdown", "sarif"}
	failLevels = []string{"none", "low", "medium", "high", "critical"}
	logLevels  = []string{"trace", "debug", "info", "warn", "error", "disabled"}
	logFormats = []string{"console", "json"}
)

// Validate reports every problem in c. The returned error wraps
// ErrInvalidConfiguration and joins one error per problem.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !slices.Contains(Providers, c.Provider) {
		bad("provider %q is not one of %v", c.Provider, Providers)
	}
	if c.Model == "" {
		bad("model is required")
	}
	if c.Timeout <= 0 {
		bad("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxRetries < 0 {
		bad("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.Workers <= 0 {
		bad("workers must be positive, got %d", c.Workers)
	}
	if c.Tolerance < 0 {
		bad("tolerance must not be negative, got %d", c.Tolerance)
	}
	if !slices.Contains(formats, c.Format) {
		bad("format %q is not one of %v", c.Format, formats)
	}
	if !slices.Contains(failLevels, c.FailOn) {
		bad("fail_on %q is not one of %v", c.FailOn, failLevels)
	}

	s := c.Semantic
	if s.BatchSize <= 0 {
		bad("semantic.batch_size must be positive, got %d", s.BatchSize)
	}
	if s.MaxInFlight <= 0 {
		bad("semantic.max_in_flight must be positive, got %d", s.MaxInFlight)
	}
	if s.RequestsPerSecond < 0 {
		bad("semantic.requests_per_second must not be negative, got %v", s.RequestsPerSecond)
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		bad("semantic.min_confidence %v outside [0,1]", s.MinConfidence)
	}
	if s.InitialBackoff <= 0 {
		bad("semantic.initial_backoff must be positive, got %s", s.InitialBackoff)
	}
	if s.InitialBackoff > s.MaxBackoff {
		bad("semantic.initial_backoff %s exceeds semantic.max_backoff %s", s.InitialBackoff, s.MaxBackoff)
	}
	if s.MaxContextBytes < 0 {
		bad("semantic.max_context_bytes must not be negative, got %d", s.MaxContextBytes)
	}

	for _, label := range c.Filter.DisabledCategories {
		if !knownLabel(label) {
			bad("filter.disabled_categories: unknown category %q", label)
		}
	}
	keys := make([]string, 0, len(c.Filter.MinConfidence))
	for k := range c.Filter.MinConfidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k != "*" && k != "default" && !knownLabel(k) {
			bad("filter.min_confidence: unknown category %q", k)
		}
		if v := c.Filter.MinConfidence[k]; v <= 0 || v > 1 {
			bad("filter.min_confidence[%s] = %v, want (0,1]", k, v)
		}
	}

	if c.Cache.TTL < 0 {
		bad("cache.ttl must not be negative, got %s", c.Cache.TTL)
	}
	if !slices.Contains(logLevels, c.Logging.Level) {
		bad("logging.level %q is not one of %v", c.Logging.Level, logLevels)
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		bad("logging.format %q is not one of %v", c.Logging.Format, logFormats)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.Join(errs...))
}

// knownLabel accepts taxonomy names and aliases, rejecting labels that would
// only normalize to other.
func knownLabel(label string) bool {
	cat := findings.NormalizeCategory(label)
	if cat == "" {
		return false
	}
	return cat != findings.CategoryOther || findings.Category(label) == findings.CategoryOther
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
