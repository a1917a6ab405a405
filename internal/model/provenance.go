package model

// Component records one input that contributed to a composite or derived
// metric.
type Component struct {
	Metric  string     `json:"metric"`
	Concept string     `json:"qname,omitempty"`
	Value   float64    `json:"value"`
	Source  SourceKind `json:"source_type"`
}

// ComponentOf builds a Component from a resolved input.
func ComponentOf(m ResolvedMetric) Component {
	return Component{
		Metric:  m.Metric,
		Concept: m.Concept,
		Value:   m.Value,
		Source:  m.Source,
	}
}
