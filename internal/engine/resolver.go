package engine

import (
	"math"
	"time"

	"github.com/sells-group/edgar-metrics/internal/catalog"
	"github.com/sells-group/edgar-metrics/internal/model"
	"github.com/sells-group/edgar-metrics/internal/period"
)

// scoreEpsilon is the tolerance under which two composite scores are treated
// as equal and the later period end wins.
const scoreEpsilon = 1e-9

func sameScore(a, b float64) bool {
	return math.Abs(a-b) <= scoreEpsilon
}

type resolveKey struct {
	metric string
	fy     int
	tol    int
	prior  bool
}

// Resolver resolves canonical metrics for one company. It memoizes results
// so derived metrics can request the same inputs repeatedly. A Resolver is
// not safe for concurrent use.
type Resolver struct {
	cat        *catalog.Catalog
	facts      model.FactSet
	company    model.CompanyContext
	fye        period.FiscalYearEnd
	preferUnit string
	memo       map[resolveKey]model.ResolvedMetric
}

// NewResolver creates a Resolver over facts for company.
func NewResolver(cat *catalog.Catalog, company model.CompanyContext, facts model.FactSet, preferUnit string) *Resolver {
	if preferUnit == "" {
		preferUnit = "USD"
	}
	return &Resolver{
		cat:        cat,
		facts:      facts,
		company:    company,
		fye:        period.ParseFiscalYearEnd(company.FiscalYearEnd),
		preferUnit: preferUnit,
		memo:       make(map[resolveKey]model.ResolvedMetric),
	}
}

// Resolve returns the best value for metric in fiscal year fy at base
// tolerance tol, applying metric-specific fallbacks.
func (r *Resolver) Resolve(metric string, fy, tol int) model.ResolvedMetric {
	key := resolveKey{metric: metric, fy: fy, tol: tol}
	if m, ok := r.memo[key]; ok {
		return m
	}

	var m model.ResolvedMetric
	switch metric {
	case catalog.EPSDiluted:
		m = r.epsDiluted(fy, tol)
	case catalog.ShortTermDebt:
		m = r.shortTermDebt(fy, tol)
	case catalog.CostOfGoodsSold:
		m = r.cogs(fy, tol)
	case catalog.TotalDebt:
		m = r.totalDebt(fy, tol)
	default:
		m = r.Base(metric, fy, tol)
	}
	r.memo[key] = m
	return m
}

// Base resolves metric directly from the catalog with tolerance widening.
func (r *Resolver) Base(metric string, fy, tol int) model.ResolvedMetric {
	shape := r.cat.Shape(metric)
	anchors := period.AnchorsForFY(r.fye, fy)

	for _, step := range widenSteps {
		stepTol := tol + step

		var (
			best      model.ResolvedMetric
			bestScore float64
			found     bool
		)
		for _, cand := range r.cat.Candidates(metric) {
			if !cand.Allows(r.company.Sector, r.company.IFRS) {
				continue
			}

			var (
				p  pick
				ok bool
			)
			if shape == model.PeriodInstant {
				p, ok = pickInstant(r.facts, cand.Concept, r.preferUnit, anchors, stepTol)
			} else {
				p, ok = pickAnnual(r.facts, cand.Concept, r.preferUnit, anchors, stepTol, true)
			}
			if !ok {
				continue
			}

			score := cand.Score + shapeBonus(p.Tier) + scoreAdj(p, r.preferUnit, true)
			if step > 0 {
				score -= widenedPenalty
			}

			if found && !better(score, p.Obs.End, bestScore, best.End) {
				continue
			}
			best = fromPick(metric, shape, cand.Concept, p, score)
			bestScore, found = score, true
		}
		if found {
			return best
		}
	}
	return model.NoMatch(metric, "no candidate matched")
}

// better reports whether a hit with score and end beats the current best.
func better(score float64, end time.Time, bestScore float64, bestEnd time.Time) bool {
	if sameScore(score, bestScore) {
		return end.After(bestEnd)
	}
	return score > bestScore
}

func fromPick(metric string, shape model.PeriodType, concept string, p pick, score float64) model.ResolvedMetric {
	return model.ResolvedMetric{
		Metric:     metric,
		Value:      p.Obs.Value,
		Unit:       p.Obs.Unit,
		PeriodType: shape,
		End:        p.Obs.End,
		Form:       p.Obs.Form,
		Accn:       p.Obs.Accn,
		Source:     p.Tier,
		Concept:    concept,
		Confidence: model.ClampConfidence(score),
	}
}

func (r *Resolver) epsDiluted(fy, tol int) model.ResolvedMetric {
	if m := r.Base(catalog.EPSDiluted, fy, tol); m.Found() {
		return m
	}
	ni := r.Resolve(catalog.NetIncome, fy, tol)
	sh := r.Resolve(catalog.DilutedShares, fy, tol)
	if !ni.Found() || !sh.Found() || sh.Value == 0 {
		return model.NoMatch(catalog.EPSDiluted, "EPS not found")
	}
	return model.ResolvedMetric{
		Metric:       catalog.EPSDiluted,
		Value:        ni.Value / sh.Value,
		Unit:         "USDPerShare",
		PeriodType:   model.PeriodDuration,
		End:          ni.End,
		Form:         ni.Form,
		Accn:         ni.Accn,
		Source:       model.SourceDerived,
		Composite:    "NetIncome/DilutedShares",
		ComputedFrom: []string{catalog.NetIncome, catalog.DilutedShares},
		Confidence:   0.85,
		Reason:       "Derived as NetIncome / DilutedShares",
		Components:   []model.Component{model.ComponentOf(ni), model.ComponentOf(sh)},
	}
}

// shortTermDebt prefers debt due within one year over generic short-term
// borrowings.
func (r *Resolver) shortTermDebt(fy, tol int) model.ResolvedMetric {
	if m := r.Base(catalog.DebtCurrent, fy, tol); m.Found() {
		m.Metric = catalog.ShortTermDebt
		return m
	}
	return r.Base(catalog.ShortTermDebt, fy, tol)
}

func (r *Resolver) cogs(fy, tol int) model.ResolvedMetric {
	if m := r.Base(catalog.CostOfGoodsSold, fy, tol); m.Found() {
		return m
	}
	rev := r.Resolve(catalog.Revenue, fy, tol)
	gp := r.Resolve(catalog.GrossProfit, fy, tol)
	if !rev.Found() || !gp.Found() {
		return model.NoMatch(catalog.CostOfGoodsSold, "no COGS source or fallback")
	}
	return model.ResolvedMetric{
		Metric:       catalog.CostOfGoodsSold,
		Value:        rev.Value - gp.Value,
		Unit:         rev.Unit,
		PeriodType:   model.PeriodDuration,
		End:          rev.End,
		Form:         rev.Form,
		Accn:         rev.Accn,
		Source:       model.SourceDerived,
		Composite:    "Revenue-GrossProfit",
		ComputedFrom: []string{catalog.Revenue, catalog.GrossProfit},
		Confidence:   0.60,
		Reason:       "Derived as Revenue - GrossProfit",
		Components:   []model.Component{model.ComponentOf(rev), model.ComponentOf(gp)},
	}
}

// totalDebt sums long-term and short-term debt. With only one side present
// the result is marked partial.
func (r *Resolver) totalDebt(fy, tol int) model.ResolvedMetric {
	lt := r.Resolve(catalog.LongTermDebt, fy, tol)
	st := r.Resolve(catalog.ShortTermDebt, fy, tol)

	switch {
	case lt.Found() && st.Found():
		unit := lt.Unit
		if lt.Unit != st.Unit {
			unit = r.preferUnit
		}
		end := lt.End
		if st.End.After(end) {
			end = st.End
		}
		return model.ResolvedMetric{
			Metric:       catalog.TotalDebt,
			Value:        lt.Value + st.Value,
			Unit:         unit,
			PeriodType:   model.PeriodInstant,
			End:          end,
			Form:         lt.Form,
			Source:       model.SourceDerived,
			ComputedFrom: []string{catalog.LongTermDebt, catalog.ShortTermDebt},
			Confidence:   0.90,
			Components:   []model.Component{model.ComponentOf(lt), model.ComponentOf(st)},
		}
	case lt.Found() || st.Found():
		side := lt
		if !lt.Found() {
			side = st
		}
		return model.ResolvedMetric{
			Metric:       catalog.TotalDebt,
			Value:        side.Value,
			Unit:         side.Unit,
			PeriodType:   model.PeriodInstant,
			End:          side.End,
			Form:         side.Form,
			Accn:         side.Accn,
			Source:       model.SourcePartial,
			Concept:      side.Concept,
			ComputedFrom: []string{side.Metric},
			Confidence:   0.75,
			Reason:       "only " + side.Metric + " reported",
			Components:   []model.Component{model.ComponentOf(side)},
		}
	}
	return model.NoMatch(catalog.TotalDebt, "no debt components")
}
