// Package checker evaluates checkout configurations against live values.
//
// Control flow is top-down (run -> configuration -> check -> comparison)
// while value fetching fans out concurrently and folds back up. Every
// aggregation is "worst severity wins": the fold is a maximum, so it is
// associative and commutative, and results are collected into
// position-indexed slices so the declared order decides ties regardless of
// completion order.
package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/controlkit/checkout/pkg/reduce"
	"github.com/controlkit/checkout/pkg/resolver"
	"github.com/controlkit/checkout/pkg/types/check"
)

const (
	defaultResolveTimeout = 6 * time.Second
	defaultConcurrency    = 32
)

// New creates an evaluator. A resolver must be provided via WithResolver.
func New(opts ...Option) *evaluator {
	e := &evaluator{
		now:            time.Now,
		resolveTimeout: defaultResolveTimeout,
		concurrency:    defaultConcurrency,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Option describes optional arguments for the evaluator.
type Option func(*evaluator)

// WithResolver sets the value resolver, the only place the engine waits on
// an external system.
func WithResolver(r resolver.Resolver) Option {
	return func(e *evaluator) {
		e.resolver = r
	}
}

// WithResolveTimeout bounds each individual resolution.
func WithResolveTimeout(timeout time.Duration) Option {
	return func(e *evaluator) {
		e.resolveTimeout = timeout
	}
}

// WithConcurrency caps in-flight work at each level of the fan-out. Zero or
// negative means unlimited.
func WithConcurrency(n int) Option {
	return func(e *evaluator) {
		e.concurrency = n
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(e *evaluator) {
		e.now = now
	}
}

type evaluator struct {
	resolver       resolver.Resolver
	resolveTimeout time.Duration
	concurrency    int
	now            func() time.Time
}

// EvaluateRun evaluates every configuration in the file, each independently
// and concurrently, and never stops early on failure: a single run surfaces
// every problem, not just the first one. When only is non-empty, the run is
// limited to the named configurations. Cancelling ctx aborts in-flight
// resolutions; completed configuration verdicts are kept and the rest are
// flagged cancelled.
func (e *evaluator) EvaluateRun(ctx context.Context, file *check.ConfigurationFile, only ...string) check.RunReport {
	report := check.RunReport{
		ID:        uuid.NewString(),
		StartedAt: e.now(),
	}

	var configs []check.Configuration
	for _, cfg := range file.Configs {
		if len(only) > 0 && !contains(only, cfg.Common().Name) {
			log.Ctx(ctx).Debug().
				Str("configuration", cfg.Common().Name).
				Msg("skipping filtered-out configuration")
			continue
		}
		configs = append(configs, cfg)
	}

	out := make([]check.ConfigurationReport, len(configs))
	g := newGroup(ctx, e.concurrency)
	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			out[i] = e.EvaluateConfiguration(ctx, cfg)
			return nil
		})
	}
	g.Wait()

	report.Configurations = out
	report.FinishedAt = e.now()
	results := make([]check.Result, 0, len(out))
	for _, cr := range out {
		if cr.Cancelled {
			report.Cancelled = true
			continue
		}
		results = append(results, cr.Result)
	}
	report.Result = aggregate(results)
	if report.Cancelled {
		report.Reason = "cancelled"
	}
	return report
}

// EvaluateConfiguration runs every check in the checklist and folds their
// verdicts. An empty checklist is a vacuous pass, not an error.
func (e *evaluator) EvaluateConfiguration(ctx context.Context, cfg check.Configuration) check.ConfigurationReport {
	common := cfg.Common()
	report := check.ConfigurationReport{
		Name: common.Name,
		Tags: common.Tags,
	}
	if ctx.Err() != nil {
		report.Cancelled = true
		report.Reason = "cancelled"
		return report
	}

	ll := log.Ctx(ctx).With().Str("configuration", common.Name).Logger()
	start := e.now()
	ll.Debug().Msg("configuration evaluation started")

	out := make([]check.CheckReport, len(common.Checklist))
	g := newGroup(ctx, e.concurrency)
	for i := range common.Checklist {
		i := i
		g.Go(func() error {
			out[i] = e.EvaluateCheck(ctx, cfg, common.Checklist[i])
			return nil
		})
	}
	g.Wait()

	report.Checks = out
	results := make([]check.Result, 0, len(out))
	for _, cr := range out {
		if cr.Cancelled {
			report.Cancelled = true
			continue
		}
		results = append(results, cr.Result)
	}
	if report.Cancelled {
		report.Reason = "cancelled"
		return report
	}
	report.Result = aggregate(results)
	ll.Debug().
		Dur("duration", e.now().Sub(start)).
		Stringer("severity", report.Severity).
		Msg("configuration evaluation finished")
	return report
}

// EvaluateCheck expands the check into its (identifier, comparison) cross
// product, evaluates every pair independently, and folds. All elementary
// results are retained for the report; only the aggregate severity
// propagates upward.
func (e *evaluator) EvaluateCheck(ctx context.Context, cfg check.Configuration, chk check.Check) check.CheckReport {
	type pair struct {
		identifier string
		comparison check.Comparison
	}
	var pairs []pair
	for _, id := range chk.IDs {
		for _, identifier := range cfg.Identifiers(id) {
			for _, cmp := range chk.Comparisons {
				pairs = append(pairs, pair{identifier: identifier, comparison: cmp})
			}
		}
	}

	out := make([]check.EvaluationResult, len(pairs))
	g := newGroup(ctx, e.concurrency)
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			out[i] = e.evaluate(ctx, p.identifier, p.comparison)
			return nil
		})
	}
	g.Wait()

	report := check.CheckReport{
		Name:        chk.Name,
		Evaluations: out,
	}
	results := make([]check.Result, 0, len(out))
	for _, er := range out {
		if er.Cancelled {
			report.Cancelled = true
			continue
		}
		results = append(results, er.Result)
	}
	if report.Cancelled {
		report.Reason = "cancelled"
		return report
	}
	report.Result = aggregate(results)
	return report
}

// evaluate performs one elementary resolve -> reduce -> compare. A
// disconnected identifier short-circuits with the comparison's
// if_disconnected severity; the reducer and comparator never run for it.
// Reduction and comparison faults rank InternalError, distinct from an
// ordinary failure.
func (e *evaluator) evaluate(ctx context.Context, identifier string, cmp check.Comparison) check.EvaluationResult {
	meta := cmp.Meta()
	er := check.EvaluationResult{
		Identifier: identifier,
		Comparison: meta.Name,
	}
	if ctx.Err() != nil {
		er.Cancelled = true
		er.Reason = "cancelled"
		return er
	}

	rctx, cancel := context.WithTimeout(ctx, e.resolveTimeout)
	defer cancel()
	resolved, err := e.resolver.Resolve(rctx, identifier, meta.ReducePeriod)
	if err != nil {
		if ctx.Err() != nil {
			er.Cancelled = true
			er.Reason = "cancelled"
			return er
		}
		er.Result = check.Result{
			Severity: check.InternalError,
			Passed:   false,
			Reason:   fmt.Sprintf("%s: resolving %s: %s", meta.Name, identifier, err),
		}
		return er
	}
	if !resolved.Connected {
		er.Result = check.Result{
			Severity: meta.IfDisconnected,
			Passed:   false,
			Reason:   "disconnected",
		}
		return er
	}

	value, err := reduce.Reduce(resolved.Samples, meta.ReduceMethod)
	if err != nil {
		er.Result = check.Result{
			Severity: check.InternalError,
			Passed:   false,
			Reason:   fmt.Sprintf("%s: %s", meta.Name, err),
		}
		return er
	}

	er.Result = cmp.Compare(value)
	log.Ctx(ctx).Debug().
		Str("identifier", identifier).
		Str("comparison", meta.Name).
		Bool("passed", er.Passed).
		Stringer("severity", er.Severity).
		Msg("elementary evaluation finished")
	return er
}

// aggregate folds child results into a parent verdict: maximum severity,
// first-declared result winning ties, reason carried from the winner. The
// empty fold is a vacuous Success. A parent passes as long as nothing in
// its subtree reached Error.
func aggregate(results []check.Result) check.Result {
	agg := check.Result{Severity: check.Success, Passed: true}
	for _, r := range results {
		if r.Severity > agg.Severity {
			agg = r
		}
	}
	agg.Passed = agg.Severity < check.Error
	return agg
}

func newGroup(ctx context.Context, limit int) *errgroup.Group {
	g, _ := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	return g
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
