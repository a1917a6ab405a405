package model

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNonFinite is returned when an observation carries NaN or ±Inf.
var ErrNonFinite = eris.New("model: non-finite value")

// FactObservation is a single reported numeric fact. Values are immutable
// once constructed through NewFactObservation.
type FactObservation struct {
	Concept    string    `json:"concept"` // namespace:tag
	Unit       string    `json:"unit"`
	Value      float64   `json:"val"`
	End        time.Time `json:"end"`
	Start      time.Time `json:"start,omitempty"` // zero for instant facts
	FY         int       `json:"fy,omitempty"`
	FP         string    `json:"fp,omitempty"`
	Form       string    `json:"form,omitempty"`
	Accn       string    `json:"accn,omitempty"`
	Filed      string    `json:"filed,omitempty"`
	Frame      string    `json:"frame,omitempty"`
	Qtrs       int       `json:"qtrs,omitempty"` // 0 when unknown
	HasSegment bool      `json:"segment,omitempty"`
}

// NewFactObservation validates o and returns it. Non-finite values and
// missing period ends are rejected.
func NewFactObservation(o FactObservation) (FactObservation, error) {
	if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return FactObservation{}, eris.Wrapf(ErrNonFinite, "model: %s/%s", o.Concept, o.Unit)
	}
	if o.End.IsZero() {
		return FactObservation{}, eris.Errorf("model: %s/%s: missing period end", o.Concept, o.Unit)
	}
	if o.Concept == "" {
		return FactObservation{}, eris.New("model: missing concept")
	}
	return o, nil
}

// IsDuration reports whether the observation spans a period.
func (o FactObservation) IsDuration() bool {
	return !o.Start.IsZero()
}

// FactSet maps concept → unit → observations for one company.
type FactSet map[string]map[string][]FactObservation

// Add appends an observation under its concept and unit.
func (fs FactSet) Add(o FactObservation) {
	units, ok := fs[o.Concept]
	if !ok {
		units = make(map[string][]FactObservation)
		fs[o.Concept] = units
	}
	units[o.Unit] = append(units[o.Unit], o)
}

// Has reports whether any observation exists for the concept.
func (fs FactSet) Has(concept string) bool {
	_, ok := fs[concept]
	return ok
}

// Concepts returns every concept name in sorted order.
func (fs FactSet) Concepts() []string {
	out := make([]string, 0, len(fs))
	for c := range fs {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Units returns the units reported for concept with preferred first and the
// rest sorted.
func (fs FactSet) Units(concept, preferred string) []string {
	units := fs[concept]
	out := make([]string, 0, len(units))
	for u := range units {
		if u != preferred {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	if _, ok := units[preferred]; ok {
		out = append([]string{preferred}, out...)
	}
	return out
}

// Observations returns the observations for concept under unit.
func (fs FactSet) Observations(concept, unit string) []FactObservation {
	return fs[concept][unit]
}

// Namespaces returns the distinct taxonomy prefixes present in the set.
func (fs FactSet) Namespaces() map[string]bool {
	out := make(map[string]bool)
	for c := range fs {
		ns, _ := SplitConcept(c)
		out[ns] = true
	}
	return out
}

// SplitConcept splits "ns:Tag" into its parts. Bare tags are us-gaap.
func SplitConcept(concept string) (string, string) {
	for i := 0; i < len(concept); i++ {
		if concept[i] == ':' {
			return concept[:i], concept[i+1:]
		}
	}
	return "us-gaap", concept
}

// QualifyConcept returns concept with the us-gaap prefix added when missing.
func QualifyConcept(concept string) string {
	ns, tag := SplitConcept(concept)
	return ns + ":" + tag
}
