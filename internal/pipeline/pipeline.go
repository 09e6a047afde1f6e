package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/ottosulin/claude-code-security-review/internal/aggregate"
	"github.com/ottosulin/claude-code-security-review/internal/config"
	"github.com/ottosulin/claude-code-security-review/internal/diff"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
	"github.com/ottosulin/claude-code-security-review/internal/hardrule"
	"github.com/ottosulin/claude-code-security-review/internal/metrics"
	"github.com/ottosulin/claude-code-security-review/internal/parse"
	"github.com/ottosulin/claude-code-security-review/internal/semantic"
)

// ErrAllUnitsFailed is returned when every scan unit's output was
// unrecoverable. The partial Result is still returned alongside it.
var ErrAllUnitsFailed = errors.New("all scan units failed")

// ScanUnit is the raw model output of one analysis pass.
type ScanUnit struct {
	ID     string
	Output string
	// Diff and Files default to the Input's when empty.
	Diff  string
	Files []string
}

// Input is everything one Run consumes.
type Input struct {
	Units []ScanUnit
	// Diff is the full unified diff under review.
	Diff string
	// Files lists the analyzed paths. When empty the list is derived from
	// the diff; when both are empty the path check is skipped.
	Files    []string
	Baseline []findings.Finding
}

// FailedUnit is a scan unit isolated as malformed.
type FailedUnit struct {
	Unit  string `json:"unit"`
	Error string `json:"error"`
}

// Result is the outcome of one Run.
type Result struct {
	Findings      []findings.Finding
	Count         int
	NewFindings   []findings.Finding
	NewCount      int
	Excluded      []findings.Finding
	Merged        []aggregate.Duplicate
	Decisions     []findings.Decision
	FailedUnits   []FailedUnit
	Diagnostics   []parse.Diagnostic
	SemanticCalls int
	Unverified    int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Pipeline sequences parse, hard rules, semantic filter and aggregation.
// It holds no state between runs.
type Pipeline struct {
	cfg     config.Config
	rules   *hardrule.RuleSet
	filter  *semantic.Filter
	logger  zerolog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	clock   findings.Clock
}

// Option configures optional collaborators.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l.With().Str("component", "pipeline").Logger() }
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option { return func(p *Pipeline) { p.tracer = t } }

// WithClock pins timestamps.
func WithClock(c findings.Clock) Option { return func(p *Pipeline) { p.clock = c } }

// New returns a Pipeline. A nil filter disables the semantic stage.
func New(cfg config.Config, rules *hardrule.RuleSet, filter *semantic.Filter, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		rules:  rules,
		filter: filter,
		logger: zerolog.Nop(),
		tracer: noop.NewTracerProvider().Tracer(""),
		clock:  findings.SystemClock,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// unitResult is the independent output of one scan unit.
type unitResult struct {
	kept       []findings.Finding
	excluded   []findings.Finding
	decisions  []findings.Decision
	diagnostic parse.Diagnostic
	failed     *FailedUnit
	calls      int
	unverified int
}

// Run processes every unit concurrently and merges the partial lists. Unit
// failures are isolated in Result.FailedUnits; only the failure of every
// unit is an error.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	res := &Result{StartedAt: p.clock()}
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.Int("units", len(in.Units))))
	defer span.End()

	workers := p.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	units := make([]unitResult, len(in.Units))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, u := range in.Units {
		if u.ID == "" {
			u.ID = fmt.Sprintf("unit-%d", i+1)
		}
		g.Go(func() error {
			units[i] = p.runUnit(ctx, u, in)
			return nil
		})
	}
	_ = g.Wait()

	var partials [][]findings.Finding
	for _, u := range units {
		res.Diagnostics = append(res.Diagnostics, u.diagnostic)
		if u.failed != nil {
			res.FailedUnits = append(res.FailedUnits, *u.failed)
			continue
		}
		partials = append(partials, u.kept)
		res.Excluded = append(res.Excluded, u.excluded...)
		res.Decisions = append(res.Decisions, u.decisions...)
		res.SemanticCalls += u.calls
		res.Unverified += u.unverified
	}

	report := aggregate.Merge(partials, p.cfg.Tolerance, p.clock())
	res.Findings = report.Findings
	res.Merged = report.Merged
	res.Decisions = append(res.Decisions, report.Decisions...)
	p.metrics.Decisions(string(findings.StageAggregate), len(report.Decisions))
	for range report.Findings {
		p.metrics.Finding(string(findings.StageAggregate), string(findings.StatusKept))
	}
	aggregate.Sort(res.Excluded)
	res.NewFindings = aggregate.NewFindings(res.Findings, in.Baseline, p.cfg.Tolerance)
	res.Count = len(res.Findings)
	res.NewCount = len(res.NewFindings)
	res.FinishedAt = p.clock()
	p.metrics.Run(res.FinishedAt.Sub(res.StartedAt))

	span.SetAttributes(
		attribute.Int("findings", res.Count),
		attribute.Int("new_findings", res.NewCount),
		attribute.Int("failed_units", len(res.FailedUnits)),
	)
	p.logger.Info().
		Int("units", len(in.Units)).
		Int("failed_units", len(res.FailedUnits)).
		Int("kept", res.Count).
		Int("new", res.NewCount).
		Int("excluded", len(res.Excluded)).
		Int("merged", len(res.Merged)).
		Int("semantic_calls", res.SemanticCalls).
		Int("unverified", res.Unverified).
		Msg("pipeline complete")

	if len(in.Units) > 0 && len(res.FailedUnits) == len(in.Units) {
		span.SetStatus(codes.Error, ErrAllUnitsFailed.Error())
		return res, fmt.Errorf("%w: %d unit(s)", ErrAllUnitsFailed, len(in.Units))
	}
	return res, nil
}

// runUnit is logically single-threaded: it shares nothing mutable with
// other units.
func (p *Pipeline) runUnit(ctx context.Context, u ScanUnit, in Input) unitResult {
	ctx, span := p.tracer.Start(ctx, "pipeline.unit", trace.WithAttributes(attribute.String("unit", u.ID)))
	defer span.End()
	log := p.logger.With().Str("unit", u.ID).Logger()

	unitDiff := u.Diff
	if unitDiff == "" {
		unitDiff = in.Diff
	}
	files := u.Files
	if len(files) == 0 {
		files = in.Files
	}
	if len(files) == 0 && unitDiff != "" {
		files = diff.Files(unitDiff)
	}

	parsed, err := parse.Parse(u.Output, parse.Options{Unit: u.ID, Files: diff.NewFileSet(files)})
	if err != nil {
		p.metrics.UnitFailed()
		span.RecordError(err)
		log.Warn().Err(err).Msg("scan unit output unrecoverable")
		return unitResult{
			diagnostic: parse.Diagnostic{Unit: u.ID, Error: err.Error()},
			failed:     &FailedUnit{Unit: u.ID, Error: err.Error()},
		}
	}
	p.metrics.Parsed(parsed.Strategy)
	out := unitResult{diagnostic: parsed.Diagnostic(u.ID)}
	level := zerolog.DebugLevel
	if len(parsed.Dropped) > 0 {
		level = zerolog.InfoLevel
	}
	log.WithLevel(level).
		Str("strategy", parsed.Strategy).
		Int("findings", len(parsed.Findings)).
		Int("dropped", len(parsed.Dropped)).
		Msg("parsed scan unit")

	if len(parsed.Findings) == 0 {
		return out
	}

	hard := p.rules.Apply(parsed.Findings, p.clock())
	out.excluded = append(out.excluded, hard.Excluded...)
	out.decisions = append(out.decisions, hard.Decisions...)
	for range hard.Excluded {
		p.metrics.Finding(string(findings.StageHardRule), string(findings.StatusHardFilteredOut))
	}
	p.metrics.Decisions(string(findings.StageHardRule), len(hard.Decisions))

	sem := p.filter.Apply(ctx, hard.Kept, unitDiff)
	out.kept = sem.Kept
	out.excluded = append(out.excluded, sem.Excluded...)
	out.decisions = append(out.decisions, sem.Decisions...)
	out.calls = sem.Calls
	out.unverified = sem.Unverified

	span.SetAttributes(
		attribute.String("strategy", parsed.Strategy),
		attribute.Int("hard_excluded", len(hard.Excluded)),
		attribute.Int("semantic_excluded", len(sem.Excluded)),
	)
	return out
}
