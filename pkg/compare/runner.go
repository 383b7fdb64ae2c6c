package compare

import (
	"context"
	"fmt"

	"github.com/atomicdeploy/esql-bench/pkg/engine"
)

// Engine is the subset of the engine client the runner needs
type Engine interface {
	Translate(ctx context.Context, sql string) (string, error)
	Search(ctx context.Context, dsl string) (*engine.SearchResult, error)
}

// Runner executes query pairs against an engine and compares their results
type Runner struct {
	engine    Engine
	failFast  bool
	onOutcome func(Outcome)
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithFailFast stops a run at the first failed pair
func WithFailFast() RunnerOption {
	return func(r *Runner) {
		r.failFast = true
	}
}

// WithOutcomeHook is called after every pair, in order
func WithOutcomeHook(fn func(Outcome)) RunnerOption {
	return func(r *Runner) {
		r.onOutcome = fn
	}
}

// NewRunner creates a runner for the given engine
func NewRunner(e Engine, opts ...RunnerOption) *Runner {
	r := &Runner{engine: e}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run checks every pair in order and returns the report.
// The error is non-nil only when ctx is cancelled; pair failures live in the report.
func (r *Runner) Run(ctx context.Context, pairs []Pair) (*Report, error) {
	report := &Report{}

	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome := r.check(ctx, p)
		report.Add(outcome)
		if r.onOutcome != nil {
			r.onOutcome(outcome)
		}

		if r.failFast && outcome.Status == StatusFail {
			break
		}
	}

	return report, nil
}

// check runs one pair: both queries must succeed before the results are compared.
// Pairs using a not tested keyword are skipped without touching the engine.
func (r *Runner) check(ctx context.Context, p Pair) Outcome {
	out := Outcome{Index: p.Index, SQL: p.SQL}

	if reason := SkipReason(p.SQL); reason != "" {
		out.Mode = ModeSkip.String()
		return out.skip(reason)
	}

	translated, err := r.engine.Translate(ctx, p.SQL)
	if err != nil {
		return out.fail(fmt.Sprintf("official dsl query %d failed: %v", p.Index, err))
	}
	refResp, err := r.engine.Search(ctx, translated)
	if err != nil {
		return out.fail(fmt.Sprintf("official dsl query %d failed: %v", p.Index, err))
	}
	altResp, err := r.engine.Search(ctx, p.DSL)
	if err != nil {
		return out.fail(fmt.Sprintf("dsl query %d failed: %v", p.Index, err))
	}
	if reason := refResp.Error(); reason != "" {
		return out.fail(fmt.Sprintf("official dsl query %d failed: %s", p.Index, reason))
	}
	if reason := altResp.Error(); reason != "" {
		return out.fail(fmt.Sprintf("dsl query %d failed: %s", p.Index, reason))
	}

	mode, reason := Classify(p)
	out.Mode = mode.String()

	switch mode {
	case ModeSkip:
		return out.skip(reason)

	case ModeGroups:
		if !refResp.HasAggregation(GroupAggregation) {
			return out.skip("reference query returned no group by aggregation, not covered")
		}
		if err := CompareGroups(refResp, altResp); err != nil {
			return out.fail(fmt.Sprintf("query %d: %v", p.Index, err))
		}
		out.Groups = len(altResp.BucketCounts(GroupAggregation))
		return out.pass(fmt.Sprintf("query %d returns %d groups, pass", p.Index, out.Groups))

	default:
		if err := CompareHits(refResp, altResp); err != nil {
			return out.fail(fmt.Sprintf("query %d: %v", p.Index, err))
		}
		out.Hits = altResp.TotalHits()
		return out.pass(fmt.Sprintf("query %d returns %d documents, pass", p.Index, out.Hits))
	}
}
