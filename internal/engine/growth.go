package engine

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sells-group/edgar-metrics/internal/catalog"
	"github.com/sells-group/edgar-metrics/internal/model"
	"github.com/sells-group/edgar-metrics/internal/period"
)

const (
	directGrowthBase  = 0.90
	relaxedPenalty    = 0.05
	relaxedPriorSlack = 180

	maxGrowthMagnitude = 100.0
	maxGrowthShare     = 0.1
)

var priorFallbackSteps = []int{180, 240, 300, 360, 420, 540}

var ratioName = regexp.MustCompile(`(?i)Percent|Percentage|Rate`)

// growthSpec describes one growth metric and the base metric it tracks.
type growthSpec struct {
	Metric    string
	Base      string
	Shape     model.PeriodType
	Label     string // used in normalization reasons
	BaseTol   int
	DirectTol int
}

func growthSpecs(durationTol, instantTol int) []growthSpec {
	return []growthSpec{
		{Metric: catalog.RevenueGrowthYoY, Base: catalog.Revenue, Shape: model.PeriodDuration, Label: "revenue", BaseTol: durationTol, DirectTol: durationTol + 30},
		{Metric: catalog.NetIncomeGrowthYoY, Base: catalog.NetIncome, Shape: model.PeriodDuration, Label: "net income", BaseTol: durationTol, DirectTol: durationTol + 30},
		{Metric: catalog.CFOGrowthYoY, Base: catalog.CFO, Shape: model.PeriodDuration, Label: "CFO", BaseTol: durationTol, DirectTol: durationTol + 30},
		{Metric: catalog.AssetGrowthRate, Base: catalog.Assets, Shape: model.PeriodInstant, Label: "assets", BaseTol: instantTol, DirectTol: instantTol},
	}
}

// directGrowth is the best mined growth disclosure for a metric.
type directGrowth struct {
	Concept string
	Obs     model.FactObservation
	Score   float64
}

// DirectGrowth mines the company's concept names for a directly disclosed
// growth figure for metric and returns the best-scoring pick along with
// every mined concept name.
func (r *Resolver) DirectGrowth(metric string, fy, tol int) (directGrowth, []string, bool) {
	mined := r.cat.MineGrowth(metric, r.facts.Concepts())
	anchors := period.AnchorsForFY(r.fye, fy)

	var (
		best  directGrowth
		found bool
	)
	for _, concept := range mined {
		p, ok := pickAnnual(r.facts, concept, r.preferUnit, anchors, tol, true)
		if !ok {
			continue
		}
		score := directGrowthBase + shapeBonus(p.Tier) + scoreAdj(p, r.preferUnit, true)
		if !found || score > best.Score {
			best = directGrowth{Concept: concept, Obs: p.Obs, Score: score}
			found = true
		}
	}
	return best, mined, found
}

// validGrowth rejects direct-growth values that cannot be ratios. Without a
// resolved current base value every value passes.
func validGrowth(v float64, cur *float64) bool {
	if cur == nil {
		return true
	}
	if math.Abs(v) > maxGrowthMagnitude {
		return false
	}
	if *cur != 0 && math.Abs(v) > math.Abs(*cur)*maxGrowthShare {
		return false
	}
	return true
}

// growthNorm is the outcome of normalizing a direct-growth value.
type growthNorm struct {
	Ratio    float64
	HasRatio bool
	Invalid  bool
	Reason   string
}

// normalizeGrowth turns a direct-growth value into a decimal ratio. Currency
// units are absolute deltas and yield no ratio.
func normalizeGrowth(dg directGrowth, label string, cur *float64) growthNorm {
	v := dg.Obs.Value
	if !validGrowth(v, cur) {
		return growthNorm{Invalid: true, Reason: "invalid-direct-growth-value"}
	}

	unit := strings.ToUpper(dg.Obs.Unit)
	switch {
	case strings.Contains(unit, "PERCENT") || ratioName.MatchString(dg.Concept):
		ratio := v
		if math.Abs(v) > 1 {
			ratio = v / 100
		}
		if !validGrowth(ratio, cur) {
			return growthNorm{Invalid: true, Reason: "invalid-direct-growth-value"}
		}
		return growthNorm{Ratio: ratio, HasRatio: true, Reason: fmt.Sprintf("direct-growth(%s) percent→ratio", label)}
	case unit == "PURE" || unit == "RATIO" || unit == "X":
		ratio := v
		if math.Abs(v) > 5 {
			ratio = v / 100
		}
		if !validGrowth(ratio, cur) {
			return growthNorm{Invalid: true, Reason: "invalid-direct-growth-value"}
		}
		return growthNorm{Ratio: ratio, HasRatio: true, Reason: fmt.Sprintf("direct-growth(%s) pure→ratio", label)}
	case strings.HasPrefix(unit, "USD"):
		return growthNorm{Reason: fmt.Sprintf("direct-growth(%s) absolute-delta", label)}
	case math.Abs(v) <= 5:
		return growthNorm{Ratio: v, HasRatio: true, Reason: fmt.Sprintf("direct-growth(%s) ratio(heuristic)", label)}
	}
	return growthNorm{Reason: fmt.Sprintf("direct-growth(%s) absolute-delta-unknown", label)}
}

// growthRate is (cur - prior) / prior, undefined when either side is missing
// or prior is zero.
func growthRate(cur, prior model.ResolvedMetric) (float64, bool) {
	if !cur.Found() || !prior.Found() || prior.Value == 0 {
		return 0, false
	}
	g := (cur.Value - prior.Value) / prior.Value
	if math.IsNaN(g) || math.IsInf(g, 0) {
		return 0, false
	}
	return g, true
}

// Prior resolves metric for the fiscal year before fy. It first tries a
// relaxed window around the prior fiscal year end, then falls back to the
// ordinary resolver at fy-1 with progressively larger tolerances.
// Fallback hits dated after the relaxed window belong to the current year
// and are discarded.
func (r *Resolver) Prior(metric string, fy, tol int) model.ResolvedMetric {
	key := resolveKey{metric: metric, fy: fy, tol: tol, prior: true}
	if m, ok := r.memo[key]; ok {
		return m
	}
	m := r.prior(metric, fy, tol)
	r.memo[key] = m
	return m
}

func (r *Resolver) prior(metric string, fy, tol int) model.ResolvedMetric {
	shape := r.cat.Shape(metric)
	window := period.RelaxedPriorWindow(r.fye, fy, relaxedPriorSlack)

	for _, cand := range r.cat.Candidates(metric) {
		if !cand.Allows(r.company.Sector, r.company.IFRS) {
			continue
		}
		p, ok := r.relaxedPick(cand.Concept, window, shape)
		if !ok {
			continue
		}
		score := cand.Score + scoreAdj(p, r.preferUnit, true) - relaxedPenalty
		if shape != model.PeriodInstant {
			score += shapeBonus(p.Tier)
		}
		return fromPick(metric, shape, cand.Concept, p, score)
	}

	for _, step := range priorFallbackSteps {
		if m := r.Base(metric, fy-1, tol+step); m.Found() && !m.End.After(window.To) {
			return m
		}
	}
	return model.NoMatch(metric, "no prior year data found")
}

// relaxedPick selects the observation nearest the prior fiscal year end
// inside window. Duration concepts prefer full-year markers, then
// four-quarter spans, then anything.
func (r *Resolver) relaxedPick(concept string, window period.PriorWindow, shape model.PeriodType) (pick, bool) {
	var inWindow []model.FactObservation
	for _, o := range pool(r.facts, concept, r.preferUnit) {
		if window.Contains(o.End) {
			inWindow = append(inWindow, o)
		}
	}
	if len(inWindow) == 0 {
		return pick{}, false
	}

	if shape == model.PeriodInstant {
		o, _ := nearest(inWindow, window)
		return pick{Obs: o, Tier: model.SourceInstant, FP: o.FP}, true
	}

	var annual, ytd []model.FactObservation
	for _, o := range inWindow {
		if isFullYear(o.FP) {
			annual = append(annual, o)
		}
		if o.Qtrs == 4 {
			ytd = append(ytd, o)
		}
	}
	if o, ok := nearest(annual, window); ok {
		return pick{Obs: o, Tier: model.SourceAnnual, FP: o.FP}, true
	}
	if o, ok := nearest(ytd, window); ok {
		return pick{Obs: o, Tier: model.SourceYTDQ4, FP: "FY"}, true
	}
	o, _ := nearest(inWindow, window)
	return pick{Obs: o, Tier: model.SourceLenient, FP: o.FP}, true
}

func nearest(obs []model.FactObservation, window period.PriorWindow) (model.FactObservation, bool) {
	var (
		best     model.FactObservation
		bestDist int
		found    bool
	)
	for _, o := range obs {
		d := period.DaysBetween(o.End, window.Target)
		if !found || d < bestDist {
			best, bestDist, found = o, d, true
		}
	}
	return best, found
}

// Growth evaluates one growth metric. It returns false when no growth
// figure can be produced for the company-year.
func (r *Resolver) Growth(spec growthSpec, fy int) (model.ResolvedMetric, []model.MinedConcept, bool) {
	cur := r.Resolve(spec.Base, fy, spec.BaseTol)
	dg, minedNames, hasDirect := r.DirectGrowth(spec.Metric, fy, spec.DirectTol)

	var curVal *float64
	if cur.Found() {
		v := cur.Value
		curVal = &v
	}

	var norm growthNorm
	if hasDirect {
		norm = normalizeGrowth(dg, spec.Label, curVal)
		if norm.Invalid {
			hasDirect = false
		}
	}

	mined := make([]model.MinedConcept, 0, len(minedNames))
	for _, name := range minedNames {
		mined = append(mined, model.MinedConcept{
			CIK:     r.company.CIK,
			Metric:  spec.Metric,
			Concept: name,
			Used:    hasDirect && name == dg.Concept,
		})
	}

	base := model.ResolvedMetric{
		Metric:     spec.Metric,
		Unit:       "ratio",
		PeriodType: spec.Shape,
		Derived:    true,
	}

	if hasDirect && norm.HasRatio {
		m := base
		m.Value = norm.Ratio
		m.End = dg.Obs.End
		m.Form = dg.Obs.Form
		m.Accn = dg.Obs.Accn
		m.Source = model.SourceDirectGrowth
		m.Concept = dg.Concept
		m.Reason = norm.Reason
		m.Confidence = 0.94
		m.ComputedFrom = []string{"direct-growth"}
		return m, mined, true
	}

	prior := r.Prior(spec.Base, fy, spec.BaseTol)
	ratio, ok := growthRate(cur, prior)
	if !ok {
		return model.ResolvedMetric{}, mined, false
	}

	m := base
	m.Value = ratio
	m.End = cur.End
	m.Form = cur.Form
	m.Accn = cur.Accn
	m.ComputedFrom = []string{spec.Base + "(cur)", spec.Base + "(prior)"}
	m.Components = []model.Component{model.ComponentOf(cur), model.ComponentOf(prior)}
	bonus := 0.0
	if cur.FormClass() && prior.FormClass() {
		bonus = 0.04
	}

	if hasDirect {
		m.Source = model.SourceDirectGrowthNormalized
		m.Concept = dg.Concept
		m.Reason = fmt.Sprintf("%s; normalized using current/prior %s", norm.Reason, spec.Label)
		m.Confidence = model.ClampConfidence(0.88 + bonus)
		return m, mined, true
	}

	m.Source = model.SourceDerivedGrowth
	m.Reason = fmt.Sprintf("(cur - prior) / prior (%s)", spec.Base)
	m.Confidence = model.ClampConfidence(0.90 + bonus)
	return m, mined, true
}
