// Package pipeline runs a batch: it acquires each selected company's
// documents, evaluates them independently, then aggregates the survivors
// into benchmarks and rankings and records the run.
package pipeline

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/edgar-metrics/internal/aggregate"
	"github.com/sells-group/edgar-metrics/internal/engine"
	"github.com/sells-group/edgar-metrics/internal/export"
	"github.com/sells-group/edgar-metrics/internal/model"
	"github.com/sells-group/edgar-metrics/internal/monitoring"
	"github.com/sells-group/edgar-metrics/internal/resilience"
	"github.com/sells-group/edgar-metrics/internal/store"
	"github.com/sells-group/edgar-metrics/internal/xbrl"
)

// Failure stages.
const (
	StageFacts       = "facts"
	StageSubmissions = "submissions"
	StageEvaluate    = "evaluate"
)

// Source supplies per-company EDGAR documents.
type Source interface {
	CompanyFacts(ctx context.Context, cik string) (*xbrl.CompanyFacts, error)
	Submissions(ctx context.Context, cik string) (*xbrl.Submissions, error)
}

// Options configures a Pipeline.
type Options struct {
	FY        int
	Workers   int
	Aggregate aggregate.Options
}

// Pipeline evaluates a set of targets for one fiscal year.
type Pipeline struct {
	source  Source
	engine  *engine.Engine
	store   store.Store
	metrics *monitoring.Metrics
	opts    Options
}

// New creates a Pipeline. source may be nil when every target is local;
// st and m may be nil to skip persistence and instrumentation.
func New(source Source, eng *engine.Engine, st store.Store, m *monitoring.Metrics, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.FY == 0 {
		opts.FY = eng.Config().FY
	}
	return &Pipeline{source: source, engine: eng, store: st, metrics: m, opts: opts}
}

// Result is everything a run produced.
type Result struct {
	RunID      string
	FY         int
	Results    []model.CompanyResult
	Benchmarks []model.BenchmarkRecord
	Rankings   []model.RankingRecord
	Failures   []model.CompanyFailure
	Duration   time.Duration
}

// Companies returns the evaluated companies in CIK order.
func (r *Result) Companies() []model.CompanyContext {
	out := make([]model.CompanyContext, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Company
	}
	return out
}

// Bundle returns the result in the form the exporters take.
func (r *Result) Bundle() export.Bundle {
	return export.Bundle{
		FY:         r.FY,
		Companies:  r.Companies(),
		Results:    r.Results,
		Benchmarks: r.Benchmarks,
		Rankings:   r.Rankings,
	}
}

// Summary condenses the result for the run record.
func (r *Result) Summary() *model.RunResult {
	n := 0
	for _, res := range r.Results {
		for _, m := range res.Metrics {
			if m.Found() {
				n++
			}
		}
	}
	return &model.RunResult{
		Companies:  len(r.Results),
		Metrics:    n,
		Benchmarks: len(r.Benchmarks),
		Rankings:   len(r.Rankings),
		Failures:   r.Failures,
		Duration:   r.Duration.Milliseconds(),
	}
}

type outcome struct {
	result  *model.CompanyResult
	failure *model.CompanyFailure
}

// Run evaluates targets and aggregates the results. Individual company
// failures are recorded on the result; only cancellation and persistence
// errors fail the run.
func (p *Pipeline) Run(ctx context.Context, targets []Target) (*Result, error) {
	start := time.Now()
	log := zap.L().With(zap.Int("fy", p.opts.FY))
	log.Info("pipeline: starting run", zap.Int("targets", len(targets)), zap.Int("workers", p.opts.Workers))

	out := &Result{FY: p.opts.FY}

	if p.store != nil {
		run, err := p.store.CreateRun(ctx, p.opts.FY)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		out.RunID = run.ID
		log = log.With(zap.String("run_id", run.ID))
	}

	outcomes := make([]outcome, len(targets))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, t := range targets {
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}
			res, fail := p.process(gCtx, t)
			outcomes[i] = outcome{result: res, failure: fail}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		p.fail(ctx, out, start, err)
		return nil, eris.Wrap(err, "pipeline: run cancelled")
	}

	for _, o := range outcomes {
		switch {
		case o.failure != nil:
			out.Failures = append(out.Failures, *o.failure)
			p.metrics.CompanyFailed(o.failure.Stage)
		case o.result != nil:
			out.Results = append(out.Results, *o.result)
		}
	}

	// Aggregation must not depend on completion order.
	sort.SliceStable(out.Results, func(i, j int) bool {
		return out.Results[i].Company.CIK < out.Results[j].Company.CIK
	})
	sort.SliceStable(out.Failures, func(i, j int) bool {
		return out.Failures[i].CIK < out.Failures[j].CIK
	})
	for _, res := range out.Results {
		p.metrics.ObserveResult(res)
	}
	p.metrics.SetRunCompanies(len(out.Results))

	agg := aggregate.Aggregate(out.Results, p.opts.FY, p.opts.Aggregate)
	out.Benchmarks = agg.Benchmarks
	out.Rankings = agg.Rankings
	out.Duration = time.Since(start)

	if err := p.persist(ctx, out); err != nil {
		p.fail(ctx, out, start, err)
		return nil, err
	}

	log.Info("pipeline: run complete",
		zap.Int("companies", len(out.Results)),
		zap.Int("failures", len(out.Failures)),
		zap.Int("benchmarks", len(out.Benchmarks)),
		zap.Int("rankings", len(out.Rankings)),
		zap.Int64("duration_ms", out.Duration.Milliseconds()),
	)
	return out, nil
}

// process acquires and evaluates one target. A panic anywhere below is
// converted into a failure for that company.
func (p *Pipeline) process(ctx context.Context, t Target) (res *model.CompanyResult, fail *model.CompanyFailure) {
	stage := StageFacts
	log := zap.L().With(zap.String("target", t.label()))

	defer func() {
		if r := recover(); r != nil {
			res = nil
			fail = failure(t, stage, eris.Errorf("panic: %v", r))
			log.Warn("pipeline: company panicked, dropping", zap.String("stage", stage), zap.Any("panic", r))
		}
	}()

	facts, err := p.loadFacts(ctx, t)
	if err != nil {
		log.Warn("pipeline: load facts failed, dropping company", zap.Error(err))
		return nil, failure(t, stage, err)
	}

	cik := t.CIK
	if cik == "" {
		cik = xbrl.PadCIK(facts.CIK.String())
	}
	name := t.Name
	if name == "" {
		name = facts.EntityName
	}

	stage = StageSubmissions
	var subs *xbrl.Submissions
	if p.source != nil && cik != "" {
		subs, err = p.source.Submissions(ctx, cik)
		if err != nil {
			if !t.Local() {
				log.Warn("pipeline: load submissions failed, dropping company", zap.String("cik", cik), zap.Error(err))
				return nil, failure(Target{CIK: cik, Symbol: t.Symbol}, stage, err)
			}
			log.Debug("pipeline: no submissions for local facts", zap.String("cik", cik), zap.Error(err))
			subs = nil
		}
	}

	stage = StageEvaluate
	fs, _ := facts.FactSet()
	company := xbrl.Context(cik, t.Symbol, name, subs, xbrl.ReportsIFRS(fs))
	result := p.engine.Evaluate(company, fs)
	return &result, nil
}

func (p *Pipeline) loadFacts(ctx context.Context, t Target) (*xbrl.CompanyFacts, error) {
	if t.Local() {
		f, err := os.Open(t.FactsPath)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: open %s", t.FactsPath)
		}
		defer f.Close()
		facts, err := xbrl.ParseCompanyFacts(f)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: parse %s", t.FactsPath)
		}
		return facts, nil
	}
	if p.source == nil {
		return nil, eris.Errorf("pipeline: no EDGAR source for CIK%s", t.CIK)
	}
	return p.source.CompanyFacts(ctx, t.CIK)
}

func failure(t Target, stage string, err error) *model.CompanyFailure {
	cik := t.CIK
	if cik == "" {
		cik = t.FactsPath
	}
	return &model.CompanyFailure{
		CIK:       cik,
		Symbol:    t.Symbol,
		Stage:     stage,
		Error:     err.Error(),
		ErrorType: resilience.ClassifyError(err),
	}
}

// persist writes the run outputs and marks the run complete.
func (p *Pipeline) persist(ctx context.Context, out *Result) error {
	if p.store == nil {
		return nil
	}
	steps := []struct {
		name string
		fn   func() error
	}{
		{"companies", func() error { return p.store.SaveCompanies(ctx, out.RunID, out.Companies()) }},
		{"metrics", func() error { return p.store.SaveMetrics(ctx, out.RunID, out.Results) }},
		{"benchmarks", func() error { return p.store.SaveBenchmarks(ctx, out.RunID, out.Benchmarks) }},
		{"rankings", func() error { return p.store.SaveRankings(ctx, out.RunID, out.Rankings) }},
		{"complete run", func() error { return p.store.CompleteRun(ctx, out.RunID, out.Summary()) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return eris.Wrapf(err, "pipeline: save %s", s.name)
		}
	}
	return nil
}

// fail marks the run failed, even after ctx is cancelled.
func (p *Pipeline) fail(ctx context.Context, out *Result, start time.Time, cause error) {
	if p.store == nil || out.RunID == "" {
		return
	}
	summary := out.Summary()
	summary.Duration = time.Since(start).Milliseconds()
	summary.Error = cause.Error()

	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.FailRun(failCtx, out.RunID, summary); err != nil {
		zap.L().Warn("pipeline: mark run failed", zap.String("run_id", out.RunID), zap.Error(err))
	}
}
