// Package engine resolves canonical financial metrics from a company's
// reported facts and derives growth rates and secondary ratios from them.
// All work is pure and synchronous over an in-memory FactSet.
package engine

import (
	"github.com/sells-group/edgar-metrics/internal/catalog"
	"github.com/sells-group/edgar-metrics/internal/model"
	"go.uber.org/zap"
)

// Config controls one evaluation.
type Config struct {
	FY          int
	PreferUnit  string
	DurationTol int
	InstantTol  int
	Selection   catalog.Selection
}

// DefaultConfig returns the standard tolerances for fy with every metric
// selected.
func DefaultConfig(fy int) Config {
	return Config{
		FY:          fy,
		PreferUnit:  "USD",
		DurationTol: 90,
		InstantTol:  120,
		Selection:   catalog.NewSelection(nil, false),
	}
}

// Engine evaluates companies against a candidate catalog.
type Engine struct {
	cat *catalog.Catalog
	cfg Config
}

// New creates an Engine. Zero tolerances fall back to the defaults.
func New(cat *catalog.Catalog, cfg Config) *Engine {
	if cat == nil {
		cat = catalog.Default()
	}
	def := DefaultConfig(cfg.FY)
	if cfg.PreferUnit == "" {
		cfg.PreferUnit = def.PreferUnit
	}
	if cfg.DurationTol <= 0 {
		cfg.DurationTol = def.DurationTol
	}
	if cfg.InstantTol <= 0 {
		cfg.InstantTol = def.InstantTol
	}
	return &Engine{cat: cat, cfg: cfg}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate resolves every selected metric for one company. Metrics that
// cannot be resolved are omitted from the result.
func (e *Engine) Evaluate(company model.CompanyContext, facts model.FactSet) model.CompanyResult {
	log := zap.L().With(zap.String("cik", company.CIK), zap.Int("fy", e.cfg.FY))
	r := NewResolver(e.cat, company, facts, e.cfg.PreferUnit)
	sel := e.cfg.Selection

	result := model.CompanyResult{Company: company, FY: e.cfg.FY}

	for _, metric := range catalog.BaseMetrics {
		if !sel.Wants(metric) {
			continue
		}
		tol := e.cfg.DurationTol
		if e.cat.Shape(metric) == model.PeriodInstant {
			tol = e.cfg.InstantTol
		}
		m := r.Resolve(metric, e.cfg.FY, tol)
		if !m.Found() || !m.Finite() {
			log.Debug("metric unresolved", zap.String("metric", metric), zap.String("reason", m.Reason))
			continue
		}
		m.Metric = metric
		m.PeriodType = e.cat.Shape(metric)
		result.Metrics = append(result.Metrics, m)
	}

	if !sel.WantsDerived() {
		return result
	}

	for _, spec := range growthSpecs(e.cfg.DurationTol, e.cfg.InstantTol) {
		m, mined, ok := r.Growth(spec, e.cfg.FY)
		result.Mined = append(result.Mined, mined...)
		if !ok || !m.Finite() {
			log.Debug("growth unresolved", zap.String("metric", spec.Metric))
			continue
		}
		if sel.Wants(spec.Metric) {
			result.Metrics = append(result.Metrics, m)
		}
	}

	for _, m := range r.Secondary(e.cfg.FY, e.cfg.DurationTol, e.cfg.InstantTol) {
		if sel.Wants(m.Metric) {
			result.Metrics = append(result.Metrics, m)
		}
	}

	log.Debug("company evaluated", zap.Int("metrics", len(result.Metrics)), zap.Int("mined", len(result.Mined)))
	return result
}
