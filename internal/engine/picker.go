package engine

import (
	"strings"

	"github.com/sells-group/edgar-metrics/internal/model"
	"github.com/sells-group/edgar-metrics/internal/period"
)

// Quality adjustment constants applied on top of a candidate's base score.
const (
	annualFormBonus   = 0.06
	otherFormPenalty  = 0.01
	preferredUnitBump = 0.03
	otherUnitPenalty  = 0.02
	fullYearFPBonus   = 0.03
	segmentPenalty    = 0.01
	sectorMatchBonus  = 0.02
	widenedPenalty    = 0.02

	fullYearPickBonus = 5
)

var widenSteps = []int{0, 60, 120, 180}

// pick is one observation chosen by the fact picker together with the tier
// that produced it. FP is the effective fiscal-period marker; the ytd-q4
// tier reports it as FY.
type pick struct {
	Obs  model.FactObservation
	Tier model.SourceKind
	FP   string
}

func isFullYear(fp string) bool {
	switch strings.ToUpper(strings.TrimSpace(fp)) {
	case "FY", "CY", "FYR":
		return true
	}
	return false
}

func isAnnualForm(form string) bool {
	switch form {
	case "10-K", "20-F", "10-K/A", "20-F/A":
		return true
	}
	return false
}

// pool collects every observation for concept, preferred unit first.
func pool(facts model.FactSet, concept, preferUnit string) []model.FactObservation {
	var out []model.FactObservation
	for _, unit := range facts.Units(concept, preferUnit) {
		out = append(out, facts.Observations(concept, unit)...)
	}
	return out
}

// smartPick returns the within-tolerance observation with the highest
// (score, end) pair, where score is the negated anchor distance plus a bonus
// for full-year markers. The first observation wins an exact tie.
func smartPick(obs []model.FactObservation, anchors period.Anchors, tol int) (model.FactObservation, bool) {
	var (
		best      model.FactObservation
		bestScore int
		found     bool
	)
	for _, o := range obs {
		dist := anchors.Distance(o.End)
		if dist > tol {
			continue
		}
		score := -dist
		if isFullYear(o.FP) {
			score += fullYearPickBonus
		}
		if !found || score > bestScore || (score == bestScore && o.End.After(best.End)) {
			best, bestScore, found = o, score, true
		}
	}
	return best, found
}

// pickAnnual runs the duration picker tiers: explicit full-year markers,
// then four-quarter spans, then (when lenient) anything within tolerance.
func pickAnnual(facts model.FactSet, concept, preferUnit string, anchors period.Anchors, tol int, lenient bool) (pick, bool) {
	all := pool(facts, concept, preferUnit)
	if len(all) == 0 {
		return pick{}, false
	}

	var annual, ytd []model.FactObservation
	for _, o := range all {
		if isFullYear(o.FP) {
			annual = append(annual, o)
		}
		if o.Qtrs == 4 {
			ytd = append(ytd, o)
		}
	}

	if o, ok := smartPick(annual, anchors, tol); ok {
		return pick{Obs: o, Tier: model.SourceAnnual, FP: o.FP}, true
	}
	if o, ok := smartPick(ytd, anchors, tol); ok {
		return pick{Obs: o, Tier: model.SourceYTDQ4, FP: "FY"}, true
	}
	if lenient {
		if o, ok := smartPick(all, anchors, tol); ok {
			return pick{Obs: o, Tier: model.SourceLenient, FP: o.FP}, true
		}
	}
	return pick{}, false
}

// pickInstant is the single-tier picker for point-in-time concepts.
func pickInstant(facts model.FactSet, concept, preferUnit string, anchors period.Anchors, tol int) (pick, bool) {
	o, ok := smartPick(pool(facts, concept, preferUnit), anchors, tol)
	if !ok {
		return pick{}, false
	}
	return pick{Obs: o, Tier: model.SourceInstant, FP: o.FP}, true
}

// shapeBonus rewards explicit annual picks over inferred ones.
func shapeBonus(tier model.SourceKind) float64 {
	switch tier {
	case model.SourceAnnual:
		return 0.012
	case model.SourceYTDQ4:
		return -0.004
	case model.SourceLenient:
		return -0.01
	}
	return 0
}

// scoreAdj is the quality adjustment for a picked observation.
func scoreAdj(p pick, preferUnit string, sectorHit bool) float64 {
	var s float64
	switch {
	case isAnnualForm(p.Obs.Form):
		s += annualFormBonus
	case p.Obs.Form != "":
		s -= otherFormPenalty
	}
	switch {
	case p.Obs.Unit == preferUnit:
		s += preferredUnitBump
	case p.Obs.Unit != "":
		s -= otherUnitPenalty
	}
	if isFullYear(p.FP) {
		s += fullYearFPBonus
	}
	if p.Obs.HasSegment {
		s -= segmentPenalty
	}
	if sectorHit {
		s += sectorMatchBonus
	}
	return s
}
