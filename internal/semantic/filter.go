package semantic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ottosulin/claude-code-security-review/internal/cache"
	"github.com/ottosulin/claude-code-security-review/internal/config"
	"github.com/ottosulin/claude-code-security-review/internal/diff"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
	"github.com/ottosulin/claude-code-security-review/internal/metrics"
	"github.com/ottosulin/claude-code-security-review/internal/parse"
	"github.com/ottosulin/claude-code-security-review/internal/providers"
	"github.com/ottosulin/claude-code-security-review/internal/redact"
)

// ErrMissingVerdicts is returned for an attempt whose response did not
// judge every finding it was asked about.
var ErrMissingVerdicts = errors.New("verdicts missing from response")

// Options tune one Filter.
type Options struct {
	BatchSize         int
	MaxInFlight       int
	CallTimeout       time.Duration
	Retry             RetryPolicy
	MinConfidence     float64
	RequestsPerSecond float64
	MaxContextBytes   int
	Instructions      string
	PRContext         *PRContext
}

// OptionsFromConfig maps the run configuration onto Options. Instructions
// and PR context come from files and flags and are set by the caller.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BatchSize:         cfg.Semantic.BatchSize,
		MaxInFlight:       cfg.Semantic.MaxInFlight,
		CallTimeout:       cfg.Timeout.Std(),
		Retry:             RetryPolicyFromConfig(cfg),
		MinConfidence:     cfg.Semantic.MinConfidence,
		RequestsPerSecond: cfg.Semantic.RequestsPerSecond,
		MaxContextBytes:   cfg.Semantic.MaxContextBytes,
	}
}

// Outcome is the partition produced by Apply.
type Outcome struct {
	Kept      []findings.Finding
	Excluded  []findings.Finding
	Decisions []findings.Decision
	// Calls counts provider requests, retries included.
	Calls      int
	CacheHits  int
	Unverified int
}

// Filter judges findings that survived the hard rules. One Filter may be
// shared by concurrent callers; the in-flight cap and rate limit are global
// to it.
type Filter struct {
	client   providers.Client
	opts     Options
	system   string
	cache    cache.Cache
	redactor *redact.Redactor
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	clock    findings.Clock
}

// Option configures optional collaborators.
type Option func(*Filter)

// WithCache sets the verdict cache.
func WithCache(c cache.Cache) Option { return func(f *Filter) { f.cache = c } }

// WithRedactor scrubs findings and diff context before they are sent.
func WithRedactor(r *redact.Redactor) Option { return func(f *Filter) { f.redactor = r } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Filter) { f.logger = l.With().Str("component", "semantic").Logger() }
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option { return func(f *Filter) { f.metrics = m } }

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option { return func(f *Filter) { f.tracer = t } }

// WithClock pins decision timestamps.
func WithClock(c findings.Clock) Option { return func(f *Filter) { f.clock = c } }

// New returns a Filter calling client.
func New(client providers.Client, opts Options, options ...Option) *Filter {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.MaxInFlight < 1 {
		opts.MaxInFlight = 1
	}
	f := &Filter{
		client: client,
		opts:   opts,
		system: SystemPrompt(opts.Instructions),
		cache:  cache.Nop{},
		sem:    semaphore.NewWeighted(int64(opts.MaxInFlight)),
		logger: zerolog.Nop(),
		tracer: noop.NewTracerProvider().Tracer(""),
		clock:  findings.SystemClock,
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	for _, o := range options {
		o(f)
	}
	if f.cache == nil {
		f.cache = cache.Nop{}
	}
	return f
}

// item is one finding prepared for the model.
type item struct {
	finding findings.Finding // redacted copy
	key     string
}

// judgment is the result for one finding: a verdict, or the cause that
// prevented one.
type judgment struct {
	verdict parse.Verdict
	judged  bool
	cached  bool
	cause   error
}

// Apply judges list against the diff. Inputs are not modified. Findings
// the provider could not judge are kept and annotated filter-unverified
// when the policy fails open. A nil Filter keeps everything and records no
// decisions, which is how the stage is disabled.
func (f *Filter) Apply(ctx context.Context, list []findings.Finding, diffText string) Outcome {
	if f == nil || f.client == nil {
		return passthrough(list)
	}
	var out Outcome
	if len(list) == 0 {
		return out
	}

	ctx, span := f.tracer.Start(ctx, "semantic.apply", trace.WithAttributes(
		attribute.Int("findings", len(list)),
		attribute.String("provider", f.client.Name()),
	))
	defer span.End()

	excerpts := f.excerpts(list, diffText)
	items := make([]item, len(list))
	results := make([]judgment, len(list))
	var pending []int
	for i, fd := range list {
		red := f.redactor.Finding(fd)
		items[i] = item{
			finding: red,
			key:     cache.Key(f.client.Model(), f.opts.Instructions, excerpts[fd.FilePath], red),
		}
		if v, ok := f.cache.Get(ctx, items[i].key); ok {
			f.metrics.CacheLookup(true)
			results[i] = judgment{verdict: v, judged: true, cached: true}
			out.CacheHits++
			continue
		}
		if f.cache.Enabled() {
			f.metrics.CacheLookup(false)
		}
		pending = append(pending, i)
	}

	var calls atomic.Int64
	var wg sync.WaitGroup
	for start := 0; start < len(pending); start += f.opts.BatchSize {
		end := min(start+f.opts.BatchSize, len(pending))
		batch := pending[start:end]
		wg.Add(1)
		go func(batch []int) {
			defer wg.Done()
			f.judge(ctx, batch, items, excerpts, results, &calls)
		}(batch)
	}
	wg.Wait()
	out.Calls = int(calls.Load())

	now := f.clock()
	for i, fd := range list {
		fd = fd.Clone()
		status, reason := f.decide(results[i])
		if err := fd.Transition(status); err != nil {
			f.logger.Warn().Err(err).Str("finding", fd.ID).Msg("finding already decided; status left unchanged")
			if fd.Status == findings.StatusKept {
				out.Kept = append(out.Kept, fd)
			} else {
				out.Excluded = append(out.Excluded, fd)
			}
			out.Decisions = append(out.Decisions, findings.Decision{
				FindingID: fd.ID,
				Stage:     findings.StageSemantic,
				Reason:    "status-transition-skipped: " + err.Error(),
				Outcome:   fd.Status,
				Unit:      fd.Unit,
				Timestamp: now,
			})
			continue
		}
		if !results[i].judged {
			if status == findings.StatusKept {
				fd.Annotate(findings.AnnotationUnverified)
			}
			out.Unverified++
		}
		if status == findings.StatusKept {
			out.Kept = append(out.Kept, fd)
		} else {
			out.Excluded = append(out.Excluded, fd)
		}
		out.Decisions = append(out.Decisions, findings.Decision{
			FindingID: fd.ID,
			Stage:     findings.StageSemantic,
			Reason:    reason,
			Outcome:   status,
			Unit:      fd.Unit,
			Timestamp: now,
		})
		f.metrics.Finding(string(findings.StageSemantic), string(status))
	}
	f.metrics.Decisions(string(findings.StageSemantic), len(out.Decisions))

	span.SetAttributes(
		attribute.Int("kept", len(out.Kept)),
		attribute.Int("excluded", len(out.Excluded)),
		attribute.Int("unverified", out.Unverified),
		attribute.Int("calls", out.Calls),
	)
	if out.Unverified > 0 {
		f.logger.Warn().Int("unverified", out.Unverified).Bool("fail_open", f.opts.Retry.FailOpen).
			Msg("semantic filter could not judge every finding")
	}
	return out
}

// decide maps a judgment to a terminal status and decision reason.
func (f *Filter) decide(j judgment) (findings.Status, string) {
	if !j.judged {
		cause := "no verdict"
		if j.cause != nil {
			cause = j.cause.Error()
		}
		reason := findings.AnnotationUnverified + ": " + cause
		if f.opts.Retry.FailOpen {
			return findings.StatusKept, reason
		}
		return findings.StatusSemanticFilteredOut, reason
	}
	v := j.verdict
	reason := v.String()
	if j.cached {
		reason += " [cached]"
	}
	if !v.KeepFinding {
		return findings.StatusSemanticFilteredOut, reason
	}
	if c := v.Confidence(); v.Scored && f.opts.MinConfidence > 0 && c < f.opts.MinConfidence {
		return findings.StatusSemanticFilteredOut,
			fmt.Sprintf("below-min-confidence: %.2f < %.2f", c, f.opts.MinConfidence)
	}
	return findings.StatusKept, reason
}

// judge asks for verdicts on one batch until every finding is judged or the
// retry policy gives up. Each attempt re-asks only for the findings still
// missing a verdict. It writes only results[i] for i in idx.
func (f *Filter) judge(ctx context.Context, idx []int, items []item, excerpts map[string]string, results []judgment, calls *atomic.Int64) {
	ctx, span := f.tracer.Start(ctx, "semantic.batch", trace.WithAttributes(attribute.Int("size", len(idx))))
	defer span.End()

	pending := idx
	attempt := 0
	op := func() error {
		attempt++
		batch := make([]findings.Finding, len(pending))
		for n, i := range pending {
			batch[n] = items[i].finding
		}
		resp, err := f.call(ctx, calls, providers.Request{
			SystemPrompt: f.system,
			UserPrompt:   UserPrompt(batch, excerpts, f.opts.PRContext),
		})
		if err != nil {
			if !providers.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			f.waitRetryAfter(ctx, err)
			return err
		}
		vr, err := parse.ParseVerdicts(resp.Content)
		if err != nil {
			return err
		}

		byID := make(map[string]parse.Verdict, len(vr.Verdicts))
		for _, v := range vr.Verdicts {
			if v.ID == "" && len(pending) == 1 {
				v.ID = items[pending[0]].finding.ID
			}
			if _, dup := byID[v.ID]; !dup {
				byID[v.ID] = v
			}
		}
		var missing []int
		for _, i := range pending {
			v, ok := byID[items[i].finding.ID]
			if !ok {
				missing = append(missing, i)
				continue
			}
			results[i] = judgment{verdict: v, judged: true}
			if err := f.cache.Put(ctx, items[i].key, cache.Entry{Verdict: v, Model: f.client.Model()}); err != nil {
				f.logger.Debug().Err(err).Msg("cache put failed")
			}
		}
		if len(missing) > 0 {
			err := fmt.Errorf("%w: %d of %d", ErrMissingVerdicts, len(missing), len(pending))
			pending = missing
			return err
		}
		pending = nil
		return nil
	}

	notify := func(err error, wait time.Duration) {
		f.logger.Warn().Err(err).Int("attempt", attempt).Int("pending", len(pending)).
			Dur("backoff", wait).Msg("retrying semantic batch")
	}
	err := backoff.RetryNotify(op, f.opts.Retry.backOff(ctx), notify)
	span.SetAttributes(attribute.Int("attempts", attempt))
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	for _, i := range pending {
		results[i] = judgment{cause: err}
	}
}

// call performs one provider request under the in-flight cap, the rate
// limit and the per-call timeout. calls counts requests actually sent.
func (f *Filter) call(ctx context.Context, calls *atomic.Int64, req providers.Request) (providers.Response, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return providers.Response{}, err
	}
	defer f.sem.Release(1)
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return providers.Response{}, err
		}
	}
	if f.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.CallTimeout)
		defer cancel()
	}

	calls.Add(1)
	start := time.Now()
	resp, err := f.client.Complete(ctx, req)
	f.metrics.Call(f.client.Name(), time.Since(start), errorClass(err))
	if err != nil {
		return resp, err
	}
	f.metrics.Tokens(f.client.Name(), resp.InputTokens, resp.OutputTokens)
	f.logger.Debug().Int("tokens", resp.TokensUsed()).Dur("elapsed", time.Since(start)).Msg("provider call")
	return resp, nil
}

// waitRetryAfter honors a server-provided Retry-After up to MaxBackoff on
// top of the regular schedule.
func (f *Filter) waitRetryAfter(ctx context.Context, err error) {
	d := providers.RetryAfter(err)
	if d <= 0 {
		return
	}
	if limit := f.opts.Retry.MaxBackoff; limit > 0 && d > limit {
		d = limit
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// excerpts returns the redacted diff context for every referenced file.
func (f *Filter) excerpts(list []findings.Finding, diffText string) map[string]string {
	out := make(map[string]string)
	for _, fd := range list {
		if _, ok := out[fd.FilePath]; ok {
			continue
		}
		out[fd.FilePath] = f.redactor.Content(fd.FilePath, diff.Context(diffText, fd.FilePath, f.opts.MaxContextBytes))
	}
	return out
}

func passthrough(list []findings.Finding) Outcome {
	var out Outcome
	for _, fd := range list {
		fd = fd.Clone()
		_ = fd.Transition(findings.StatusKept)
		out.Kept = append(out.Kept, fd)
	}
	return out
}

func errorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, providers.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, providers.ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, providers.ErrUpstreamUnavailable):
		return "unavailable"
	case providers.IsAuthError(err):
		return "auth"
	case errors.Is(err, providers.ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
