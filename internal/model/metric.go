package model

import (
	"math"
	"time"
)

// SourceKind identifies how a ResolvedMetric value was obtained.
type SourceKind string

const (
	SourceAnnual                 SourceKind = "annual"  // explicit full-year marker
	SourceYTDQ4                  SourceKind = "ytd-q4"  // four-quarter span
	SourceLenient                SourceKind = "lenient" // any shape within tolerance
	SourceInstant                SourceKind = "instant"
	SourceDerived                SourceKind = "derived"
	SourcePartial                SourceKind = "partial"
	SourceDirectGrowth           SourceKind = "direct-growth"
	SourceDirectGrowthNormalized SourceKind = "direct-growth-normalized"
	SourceDerivedGrowth          SourceKind = "derived-growth"
	SourceNone                   SourceKind = "none"
)

// PeriodType is the shape of the period a metric covers.
type PeriodType string

const (
	PeriodDuration PeriodType = "duration"
	PeriodInstant  PeriodType = "instant"
)

// ResolvedMetric is the single canonical value chosen for one metric of one
// company-year. A value is present exactly when Source is not SourceNone.
type ResolvedMetric struct {
	Metric       string      `json:"metric"`
	Value        float64     `json:"value"`
	Unit         string      `json:"unit"`
	PeriodType   PeriodType  `json:"period_type"`
	End          time.Time   `json:"end,omitempty"`
	Form         string      `json:"form,omitempty"`
	Accn         string      `json:"accn,omitempty"`
	Source       SourceKind  `json:"source_type"`
	Concept      string      `json:"selected_tag,omitempty"`
	Composite    string      `json:"composite_name,omitempty"`
	ComputedFrom []string    `json:"computed_from,omitempty"`
	Confidence   float64     `json:"confidence"`
	Reason       string      `json:"reason,omitempty"`
	Derived      bool        `json:"is_derived"`
	Components   []Component `json:"components,omitempty"`
}

// NoMatch returns the "no candidate matched" result for metric.
func NoMatch(metric, reason string) ResolvedMetric {
	return ResolvedMetric{Metric: metric, Source: SourceNone, Reason: reason}
}

// Found reports whether the metric carries a value.
func (m ResolvedMetric) Found() bool {
	return m.Source != SourceNone && m.Source != ""
}

// Finite reports whether the value is a usable number.
func (m ResolvedMetric) Finite() bool {
	return !math.IsNaN(m.Value) && !math.IsInf(m.Value, 0)
}

// FormClass reports whether the metric came from an annual-report form.
func (m ResolvedMetric) FormClass() bool {
	return m.Form == "10-K" || m.Form == "20-F"
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
