package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-metrics/internal/model"
)

// WriteSuggestions writes each mined growth concept as one JSON line.
func WriteSuggestions(w io.Writer, results []model.CompanyResult) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for _, r := range results {
		for _, m := range r.Mined {
			if m.CIK == "" {
				m.CIK = r.Company.CIK
			}
			if err := enc.Encode(m); err != nil {
				return n, eris.Wrapf(err, "suggestions export: encode %s %s", m.CIK, m.Concept)
			}
			n++
		}
	}
	return n, nil
}
