package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ottosulin/claude-code-security-review/internal/aggregate"
	"github.com/ottosulin/claude-code-security-review/internal/artifact"
	"github.com/ottosulin/claude-code-security-review/internal/cache"
	"github.com/ottosulin/claude-code-security-review/internal/config"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
	"github.com/ottosulin/claude-code-security-review/internal/github"
	"github.com/ottosulin/claude-code-security-review/internal/gitctx"
	"github.com/ottosulin/claude-code-security-review/internal/hardrule"
	"github.com/ottosulin/claude-code-security-review/internal/logging"
	"github.com/ottosulin/claude-code-security-review/internal/metrics"
	"github.com/ottosulin/claude-code-security-review/internal/output"
	"github.com/ottosulin/claude-code-security-review/internal/pipeline"
	"github.com/ottosulin/claude-code-security-review/internal/providers"
	"github.com/ottosulin/claude-code-security-review/internal/redact"
	"github.com/ottosulin/claude-code-security-review/internal/semantic"
	"github.com/ottosulin/claude-code-security-review/internal/telemetry"
)

// Scan flags
var (
	flagDiff         string
	flagResults      []string
	flagFiles        string
	flagBaseline     string
	flagArtifact     string
	flagFormat       string
	flagOut          string
	flagRules        string
	flagInstructions string
	flagNoSemantic   bool
	flagNoPRContext  bool
	flagFailOn       string
	flagMetricsFile  string
	flagProvider     string
	flagModel        string
	flagLogLevel     string
	flagGitRange     string
	flagStaged       bool
	flagExclude      string
	flagMaxDiffBytes int
)

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["provider"] = flagProvider
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagFailOn != "" {
		m["fail_on"] = flagFailOn
	}
	if flagRules != "" {
		m["filter.rules_file"] = flagRules
	}
	if flagInstructions != "" {
		m["semantic.instructions_file"] = flagInstructions
	}
	if flagNoSemantic {
		m["semantic.enabled"] = "false"
	}
	if flagArtifact != "" {
		m["artifact"] = flagArtifact
	}
	if flagBaseline != "" {
		m["baseline"] = flagBaseline
	}
	if flagLogLevel != "" {
		m["logging.level"] = flagLogLevel
	}
	return m
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// loadConfig loads and validates the effective configuration.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig, buildOverrides())
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// readInput reads path, with "-" meaning stdin.
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

// scanUnits reads every results file into a scan unit named after it.
func scanUnits(paths []string, stdin io.Reader) ([]pipeline.ScanUnit, error) {
	units := make([]pipeline.ScanUnit, 0, len(paths))
	usedStdin := false
	for _, p := range paths {
		if p == "-" {
			if usedStdin {
				return nil, fmt.Errorf("%w: stdin can be read only once", config.ErrInvalidConfiguration)
			}
			usedStdin = true
		}
		text, err := readInput(p, stdin)
		if err != nil {
			return nil, fmt.Errorf("reading results %s: %w", p, err)
		}
		units = append(units, pipeline.ScanUnit{ID: p, Output: text})
	}
	assignUnitIDs(units)
	return units, nil
}

// assignUnitIDs replaces each unit's path with its base name, falling back
// to the given path when base names collide and to an index suffix when the
// same path was given twice.
func assignUnitIDs(units []pipeline.ScanUnit) {
	short := func(p string) string {
		if p == "-" {
			return "stdin"
		}
		return filepath.Base(p)
	}
	bases := make(map[string]int, len(units))
	for _, u := range units {
		bases[short(u.ID)]++
	}
	seen := make(map[string]bool, len(units))
	for i := range units {
		id := short(units[i].ID)
		if bases[id] > 1 {
			id = filepath.ToSlash(filepath.Clean(units[i].ID))
		}
		if seen[id] {
			id = fmt.Sprintf("%s#%d", id, i+1)
		}
		seen[id] = true
		units[i].ID = id
	}
}

// collectDiff reads --diff, or asks git when --git-range or --staged is set.
func collectDiff(cmd *cobra.Command) (string, error) {
	sources := 0
	for _, set := range []bool{flagDiff != "", flagGitRange != "", flagStaged} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return "", fmt.Errorf("%w: --diff, --git-range and --staged are mutually exclusive", config.ErrInvalidConfiguration)
	}
	opts := gitctx.Options{MaxBytes: flagMaxDiffBytes, Exclude: splitComma(flagExclude)}
	switch {
	case flagDiff != "":
		text, err := readInput(flagDiff, cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("%w: reading diff: %v", config.ErrInvalidConfiguration, err)
		}
		return text, nil
	case flagGitRange != "":
		res, err := gitctx.Range(cmd.Context(), flagGitRange, true, opts)
		if err != nil {
			return "", fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
		}
		if res.Truncated {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: diff truncated at %d bytes\n", flagMaxDiffBytes)
		}
		return res.Diff, nil
	case flagStaged:
		res, err := gitctx.Staged(cmd.Context(), opts)
		if err != nil {
			return "", fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
		}
		if res.Truncated {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: diff truncated at %d bytes\n", flagMaxDiffBytes)
		}
		return res.Diff, nil
	}
	return "", nil
}

// buildRules merges config directives with the rules file.
func buildRules(cfg config.Config) (*hardrule.RuleSet, error) {
	d, err := hardrule.LoadDirectives(cfg.Filter.RulesFile)
	if err != nil {
		return nil, err
	}
	return hardrule.New(hardrule.FromConfig(cfg.Filter).Merge(d))
}

// buildFilter assembles the semantic stage. It returns nil when the stage
// is disabled.
func buildFilter(ctx context.Context, cfg config.Config, log zerolog.Logger, m *metrics.Metrics, tracer trace.Tracer) (*semantic.Filter, error) {
	if !cfg.Semantic.Enabled {
		log.Info().Msg("semantic filter disabled")
		return nil, nil
	}
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := semantic.OptionsFromConfig(cfg)
	if path := cfg.Semantic.InstructionsFile; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading instructions: %v", config.ErrInvalidConfiguration, err)
		}
		opts.Instructions = string(data)
	}
	if !flagNoPRContext {
		pr, err := resolvePR(ctx)
		switch {
		case err == nil:
			opts.PRContext = &semantic.PRContext{Repository: pr.Repository, Number: pr.Number, Title: pr.Title, Description: pr.Body}
			log.Debug().Str("repo", pr.Repository).Int("pr", pr.Number).Msg("using pull request context")
		case !errors.Is(err, github.ErrNoPullRequest):
			log.Warn().Err(err).Msg("pull request context unavailable")
		}
	}

	c, err := cache.Open(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("verdict cache unavailable, continuing without it")
		c = cache.Nop{}
	}

	return semantic.New(client, opts,
		semantic.WithCache(c),
		semantic.WithRedactor(redact.New(cfg.Privacy)),
		semantic.WithLogger(log),
		semantic.WithMetrics(m),
		semantic.WithTracer(tracer),
	), nil
}

// Outward-facing collaborators, replaced in tests.
var (
	newClient = func(ctx context.Context, cfg config.Config) (providers.Client, error) {
		return providers.New(ctx, cfg)
	}
	resolvePR = func(ctx context.Context) (github.PullRequest, error) {
		return github.Resolve(ctx, os.Getenv)
	}
)

func runScan(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(flagResults) == 0 {
		return fmt.Errorf("%w: at least one --results file is required", config.ErrInvalidConfiguration)
	}
	units, err := scanUnits(flagResults, cmd.InOrStdin())
	if err != nil {
		return err
	}
	diffText, err := collectDiff(cmd)
	if err != nil {
		return err
	}
	rules, err := buildRules(cfg)
	if err != nil {
		return err
	}
	if _, err := output.GetWriter(cfg.Format); err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.New(cfg.Logging, cmd.ErrOrStderr())
	tracer, shutdown, err := telemetry.Setup(ctx, version)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
		tracer, shutdown = noop.NewTracerProvider().Tracer(telemetry.TracerName), func(context.Context) error { return nil }
	}
	defer shutdown(context.Background())
	m := metrics.New(nil)

	filter, err := buildFilter(ctx, cfg, log, m, tracer)
	if err != nil {
		return err
	}

	var baseline []findings.Finding
	if cfg.Baseline != "" {
		prior, err := artifact.LoadBaseline(ctx, cfg.Baseline)
		switch {
		case err == nil:
			baseline = prior.Findings
			log.Info().Str("baseline", cfg.Baseline).Int("findings", len(baseline)).Msg("loaded baseline")
		case errors.Is(err, artifact.ErrNotFound):
			log.Warn().Str("baseline", cfg.Baseline).Msg("baseline not found, every finding is new")
		default:
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
	}

	p := pipeline.New(cfg, rules, filter,
		pipeline.WithLogger(log),
		pipeline.WithMetrics(m),
		pipeline.WithTracer(tracer),
	)
	res, runErr := p.Run(ctx, pipeline.Input{
		Units:    units,
		Diff:     diffText,
		Files:    splitComma(flagFiles),
		Baseline: baseline,
	})

	meta := artifact.Meta{Version: version, RuleSetVersion: rules.Version()}
	if filter != nil {
		meta.Provider, meta.Model = cfg.Provider, cfg.Model
	}
	a := artifact.New(res, meta)

	if cfg.Artifact != "" {
		store, err := artifact.Open(ctx, cfg.Artifact)
		if err == nil {
			err = store.Save(ctx, a)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error saving artifact: %v\n", err)
			exitCode = ExitRuntimeError
			return nil
		}
		log.Info().Str("artifact", store.Location()).Str("run_id", a.RunID).Msg("artifact saved")
	}

	if err := output.WriteArtifact(a, cfg.Format, flagOut, cmd.OutOrStdout()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error writing output: %v\n", err)
		exitCode = ExitRuntimeError
		return nil
	}
	if err := artifact.WriteGitHubOutputs(os.Getenv("GITHUB_OUTPUT"), a); err != nil {
		log.Warn().Err(err).Msg("could not write GitHub outputs")
	}
	if flagMetricsFile != "" {
		if err := m.WriteTextfile(flagMetricsFile); err != nil {
			log.Warn().Err(err).Msg("could not write metrics file")
		}
	}

	if runErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", runErr)
		exitCode = ExitRuntimeError
		return nil
	}
	if cfg.FailOn != "none" && cfg.FailOn != "" && aggregate.AnyAtOrAbove(a.Findings, cfg.FailOn) {
		exitCode = ExitFindings
	}
	return nil
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Filter raw security review output into a findings artifact",
	Long: "Parse one or more raw model outputs (--results), drop false positives with the\n" +
		"hard rules and the semantic filter, merge duplicates across outputs, and write\n" +
		"the ordered findings. Use - to read a single input from stdin.",
	Example: "  secreview scan --diff pr.diff --results pass1.txt --results pass2.txt --format sarif --out results.sarif",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd)
	},
}

func init() {
	f := scanCmd.Flags()
	f.StringVar(&flagDiff, "diff", "", "Unified diff under review (- for stdin)")
	f.StringVar(&flagGitRange, "git-range", "", "Collect the diff from git for a revision range (e.g. origin/main..HEAD)")
	f.BoolVar(&flagStaged, "staged", false, "Collect the diff from git for staged changes")
	f.StringVar(&flagExclude, "exclude", "", "Gitignore-style patterns dropped from a git-collected diff (comma-separated)")
	f.IntVar(&flagMaxDiffBytes, "max-diff-bytes", 0, "Truncate a git-collected diff at this size (0: no limit)")
	f.StringArrayVar(&flagResults, "results", nil, "Raw model output file, repeatable (- for stdin)")
	f.StringVar(&flagFiles, "files", "", "Analyzed file paths (comma-separated, default: files in the diff)")
	f.StringVar(&flagBaseline, "baseline", "", "Prior artifact for new-findings (path or s3://bucket/key)")
	f.StringVar(&flagArtifact, "artifact", "", "Write the run artifact here (.json, .json.gz, .json.zst or s3://)")
	f.StringVar(&flagFormat, "format", "", "Output format ("+strings.Join(output.Formats, ", ")+")")
	f.StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	f.StringVar(&flagRules, "rules", "", "Hard-rule directives file (YAML)")
	f.StringVar(&flagInstructions, "instructions", "", "Additional semantic filtering instructions file")
	f.BoolVar(&flagNoSemantic, "no-semantic", false, "Skip the LLM semantic filter")
	f.BoolVar(&flagNoPRContext, "no-pr-context", false, "Do not send pull request title and description to the filter")
	f.StringVar(&flagFailOn, "fail-on", "", "Exit 1 when a finding meets this severity (none, low, medium, high, critical)")
	f.StringVar(&flagMetricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format")
	f.StringVar(&flagProvider, "provider", "", "LLM provider ("+strings.Join(config.Providers, ", ")+")")
	f.StringVar(&flagModel, "model", "", "Model name")
	f.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}
