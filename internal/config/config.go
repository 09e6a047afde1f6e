package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrInvalidConfiguration marks malformed or contradictory configuration.
// It is fatal before any scan unit is processed.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ProjectFile is the per-repository config file looked up in the working directory.
const ProjectFile = ".secreview.toml"

// Providers lists the supported LLM backends.
var Providers = []string{"anthropic", "vertex", "bedrock"}

// Config is the immutable run configuration. It is a value type: each run
// receives a copy and nothing downstream writes to it.
type Config struct {
	Provider   string   `toml:"provider"`
	Model      string   `toml:"model"`
	Timeout    Duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
	Workers    int      `toml:"workers"`
	Tolerance  int      `toml:"tolerance"`
	FailOn     string   `toml:"fail_on"`
	Format     string   `toml:"format"`
	Artifact   string   `toml:"artifact,omitempty"`
	Baseline   string   `toml:"baseline,omitempty"`

	Anthropic AnthropicConfig `toml:"anthropic"`
	Vertex    VertexConfig    `toml:"vertex"`
	Bedrock   BedrockConfig   `toml:"bedrock"`
	Semantic  SemanticConfig  `toml:"semantic"`
	Filter    Filter          `toml:"filter"`
	Cache     CacheConfig     `toml:"cache"`
	Logging   LoggingConfig   `toml:"logging"`
	Privacy   PrivacyConfig   `toml:"privacy"`
}

// AnthropicConfig configures the direct API provider.
type AnthropicConfig struct {
	APIKey  string `toml:"api_key,omitempty"`
	BaseURL string `toml:"base_url,omitempty"`
}

// VertexConfig configures Claude on Google Vertex AI.
type VertexConfig struct {
	Project string `toml:"project,omitempty"`
	Region  string `toml:"region"`
}

// BedrockConfig configures Claude on AWS Bedrock.
type BedrockConfig struct {
	Region string `toml:"region"`
}

// SemanticConfig controls the LLM-assisted second pass.
type SemanticConfig struct {
	Enabled           bool     `toml:"enabled"`
	BatchSize         int      `toml:"batch_size"`
	MaxInFlight       int      `toml:"max_in_flight"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	MinConfidence     float64  `toml:"min_confidence"`
	FailOpen          bool     `toml:"fail_open"`
	InitialBackoff    Duration `toml:"initial_backoff"`
	MaxBackoff        Duration `toml:"max_backoff"`
	MaxContextBytes   int      `toml:"max_context_bytes"`
	InstructionsFile  string   `toml:"instructions_file,omitempty"`
}

// Filter holds hard-rule directives expressible in the config file.
type Filter struct {
	RulesFile          string             `toml:"rules_file,omitempty"`
	ExcludeDirectories []string           `toml:"exclude_directories,omitempty"`
	DisabledCategories []string           `toml:"disabled_categories,omitempty"`
	MinConfidence      map[string]float64 `toml:"min_confidence,omitempty"`
}

// CacheConfig controls the semantic verdict cache.
type CacheConfig struct {
	Enabled  bool     `toml:"enabled"`
	Dir      string   `toml:"dir,omitempty"`
	TTL      Duration `toml:"ttl"`
	RedisURL string   `toml:"redis_url,omitempty"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// PrivacyConfig controls redaction of diff context sent upstream.
type PrivacyConfig struct {
	RedactSecrets bool     `toml:"redact_secrets"`
	RedactPaths   []string `toml:"redact_paths,omitempty"`
}

// Duration decodes from a Go duration string ("30s") or integer seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := parseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(n) * time.Second, nil
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:   "anthropic",
		Model:      "claude-opus-4-20250514",
		Timeout:    Duration(180 * time.Second),
		MaxRetries: 3,
		Workers:    4,
		Tolerance:  3,
		FailOn:     "none",
		Format:     "text",
		Vertex:     VertexConfig{Region: "us-central1"},
		Bedrock:    BedrockConfig{Region: "us-east-1"},
		Semantic: SemanticConfig{
			Enabled:         true,
			BatchSize:       5,
			MaxInFlight:     4,
			FailOpen:        true,
			InitialBackoff:  Duration(time.Second),
			MaxBackoff:      Duration(30 * time.Second),
			MaxContextBytes: 20000,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     Duration(24 * time.Hour),
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for secreview.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "secreview"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "secreview"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "secreview"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "secreview"), nil
	default:
		return filepath.Join(home, ".config", "secreview"), nil
	}
}

// ConfigPath returns the full path to the user config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// mergeFile decodes path over cfg. Keys absent from the file keep their
// current value, so an explicit false or zero in the file is honored.
// A missing file is not an error.
func mergeFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfiguration, path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: %s: unknown keys %s", ErrInvalidConfiguration, path, strings.Join(keys, ", "))
	}
	return nil
}

// Save writes cfg to path as TOML, creating parent directories.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("encoding config: %w", err)
	}
	return f.Close()
}

// Load builds the effective config by merging:
// defaults <- user file <- project or explicit file <- env <- overrides.
// An explicit path that does not exist is an error; implicit files are optional.
func Load(path string, overrides map[string]string) (Config, error) {
	cfg := Default()

	if user, err := ConfigPath(); err == nil {
		if err := mergeFile(&cfg, user); err != nil {
			return Config{}, err
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("%w: config file: %v", ErrInvalidConfiguration, err)
		}
	} else {
		path = ProjectFile
	}
	if err := mergeFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKeys maps environment variables onto SetField keys.
var envKeys = []struct{ env, key string }{
	{"LLM_PROVIDER", "provider"},
	{"CLAUDE_MODEL", "model"},
	{"LLM_TIMEOUT_SECONDS", "timeout"},
	{"LLM_MAX_RETRIES", "max_retries"},
	{"ANTHROPIC_API_KEY", "anthropic.api_key"},
	{"ANTHROPIC_BASE_URL", "anthropic.base_url"},
	{"GOOGLE_CLOUD_PROJECT", "vertex.project"},
	{"GOOGLE_CLOUD_REGION", "vertex.region"},
	{"AWS_REGION", "bedrock.region"},
	{"ENABLE_CLAUDE_FILTERING", "semantic.enabled"},
	{"EXCLUDE_DIRECTORIES", "filter.exclude_directories"},
	{"SECREVIEW_BATCH_SIZE", "semantic.batch_size"},
	{"SECREVIEW_MAX_IN_FLIGHT", "semantic.max_in_flight"},
	{"SECREVIEW_WORKERS", "workers"},
	{"SECREVIEW_FAIL_ON", "fail_on"},
	{"SECREVIEW_FORMAT", "format"},
	{"SECREVIEW_LOG_LEVEL", "logging.level"},
	{"SECREVIEW_REDIS_URL", "cache.redis_url"},
}

// EnvNames lists the environment variables Load reads.
func EnvNames() []string {
	names := make([]string, len(envKeys))
	for i, e := range envKeys {
		names[i] = e.env
	}
	return names
}

func mergeEnv(cfg *Config) error {
	for _, e := range envKeys {
		v, ok := os.LookupEnv(e.env)
		if !ok || v == "" {
			continue
		}
		if err := SetField(cfg, e.key, v); err != nil {
			return fmt.Errorf("%s: %w", e.env, err)
		}
	}
	return nil
}

// mergeOverrides applies CLI flag values. Only non-empty values are applied.
func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for _, key := range sortedKeys(overrides) {
		v := overrides[key]
		if v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			return err
		}
	}
	return nil
}

// SetField sets a single config field by dotted key name.
func SetField(cfg *Config, key, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch key {
	case "provider":
		cfg.Provider = strings.ToLower(value)
	case "model":
		cfg.Model = value
	case "timeout":
		err = setDuration(&cfg.Timeout, key, value)
	case "max_retries":
		err = setInt(&cfg.MaxRetries, key, value)
	case "workers":
		err = setInt(&cfg.Workers, key, value)
	case "tolerance":
		err = setInt(&cfg.Tolerance, key, value)
	case "fail_on":
		cfg.FailOn = strings.ToLower(value)
	case "format":
		cfg.Format = strings.ToLower(value)
	case "artifact":
		cfg.Artifact = value
	case "baseline":
		cfg.Baseline = value
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.base_url":
		cfg.Anthropic.BaseURL = value
	case "vertex.project":
		cfg.Vertex.Project = value
	case "vertex.region":
		cfg.Vertex.Region = value
	case "bedrock.region":
		cfg.Bedrock.Region = value
	case "semantic.enabled":
		err = setBool(&cfg.Semantic.Enabled, key, value)
	case "semantic.batch_size":
		err = setInt(&cfg.Semantic.BatchSize, key, value)
	case "semantic.max_in_flight":
		err = setInt(&cfg.Semantic.MaxInFlight, key, value)
	case "semantic.requests_per_second":
		err = setFloat(&cfg.Semantic.RequestsPerSecond, key, value)
	case "semantic.min_confidence":
		err = setFloat(&cfg.Semantic.MinConfidence, key, value)
	case "semantic.fail_open":
		err = setBool(&cfg.Semantic.FailOpen, key, value)
	case "semantic.instructions_file":
		cfg.Semantic.InstructionsFile = value
	case "filter.rules_file":
		cfg.Filter.RulesFile = value
	case "filter.exclude_directories":
		cfg.Filter.ExcludeDirectories = splitList(value)
	case "filter.disabled_categories":
		cfg.Filter.DisabledCategories = splitList(value)
	case "cache.enabled":
		err = setBool(&cfg.Cache.Enabled, key, value)
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttl":
		err = setDuration(&cfg.Cache.TTL, key, value)
	case "cache.redis_url":
		cfg.Cache.RedisURL = value
	case "logging.level":
		cfg.Logging.Level = strings.ToLower(value)
	case "logging.format":
		cfg.Logging.Format = strings.ToLower(value)
	case "privacy.redact_secrets":
		err = setBool(&cfg.Privacy.RedactSecrets, key, value)
	default:
		return fmt.Errorf("%w: unknown config key: %s", ErrInvalidConfiguration, key)
	}
	return err
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: %s must be an integer: %q", ErrInvalidConfiguration, key, value)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%w: %s must be a number: %q", ErrInvalidConfiguration, key, value)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key, value string) error {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		return fmt.Errorf("%w: %s must be a boolean: %q", ErrInvalidConfiguration, key, value)
	}
	return nil
}

func setDuration(dst *Duration, key, value string) error {
	d, err := parseDuration(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, key, err)
	}
	*dst = Duration(d)
	return nil
}

// splitList parses a comma separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
