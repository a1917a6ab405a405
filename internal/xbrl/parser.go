// Package xbrl decodes EDGAR companyfacts and submissions JSON into the
// engine's fact model.
package xbrl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-metrics/internal/model"
	"github.com/sells-group/edgar-metrics/internal/period"
)

// CompanyFacts represents the EDGAR company facts JSON structure.
type CompanyFacts struct {
	CIK        FlexString        `json:"cik"`
	EntityName string            `json:"entityName"`
	Facts      map[string]FactNS `json:"facts"`
}

// FactNS groups facts by tag within one namespace (e.g., "us-gaap", "dei").
type FactNS map[string]Fact

// Fact is a single XBRL concept with its values per unit.
type Fact struct {
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	Units       map[string][]FactValue `json:"units"`
}

// FactValue is a single data point for a fact.
type FactValue struct {
	Start   string          `json:"start,omitempty"`
	End     string          `json:"end"`
	Val     any             `json:"val"`
	Accn    string          `json:"accn"`
	FY      int             `json:"fy"`
	FP      string          `json:"fp"`
	Form    string          `json:"form"`
	Filed   string          `json:"filed"`
	Frame   string          `json:"frame,omitempty"`
	Qtrs    *int            `json:"qtrs,omitempty"`
	Segment json.RawMessage `json:"segment,omitempty"`
}

// ParseCompanyFacts parses EDGAR Company Facts JSON from a reader.
func ParseCompanyFacts(r io.Reader) (*CompanyFacts, error) {
	var facts CompanyFacts
	if err := json.NewDecoder(r).Decode(&facts); err != nil {
		return nil, eris.Wrap(err, "xbrl: parse company facts")
	}
	return &facts, nil
}

// ConceptNames returns every "namespace:Tag" present in the document.
func (cf *CompanyFacts) ConceptNames() []string {
	var out []string
	for ns, tags := range cf.Facts {
		for tag := range tags {
			out = append(out, ns+":"+tag)
		}
	}
	return out
}

// FactSet flattens the document into validated observations. Values that are
// not numbers, not finite, or lack a parseable period end are skipped; the
// number skipped is returned alongside the set.
func (cf *CompanyFacts) FactSet() (model.FactSet, int) {
	fs := model.FactSet{}
	skipped := 0
	for ns, tags := range cf.Facts {
		for tag, fact := range tags {
			concept := ns + ":" + tag
			for unit, values := range fact.Units {
				for _, v := range values {
					obs, ok := v.observation(concept, unit)
					if !ok {
						skipped++
						continue
					}
					fs.Add(obs)
				}
			}
		}
	}
	if skipped > 0 {
		zap.L().Debug("xbrl: skipped malformed observations",
			zap.String("cik", cf.CIK.String()),
			zap.Int("skipped", skipped),
		)
	}
	return fs, skipped
}

func (v FactValue) observation(concept, unit string) (model.FactObservation, bool) {
	val, ok := numeric(v.Val)
	if !ok {
		return model.FactObservation{}, false
	}
	end, ok := period.ParseDate(v.End)
	if !ok {
		return model.FactObservation{}, false
	}
	start, _ := period.ParseDate(v.Start)

	qtrs := 0
	switch {
	case v.Qtrs != nil:
		qtrs = *v.Qtrs
	case !start.IsZero() && end.After(start):
		qtrs = int(math.Round(float64(period.DaysBetween(end, start)) / 91.25))
	}

	obs, err := model.NewFactObservation(model.FactObservation{
		Concept:    concept,
		Unit:       unit,
		Value:      val,
		End:        end,
		Start:      start,
		FY:         v.FY,
		FP:         v.FP,
		Form:       v.Form,
		Accn:       v.Accn,
		Filed:      v.Filed,
		Frame:      v.Frame,
		Qtrs:       qtrs,
		HasSegment: hasSegment(v.Segment),
	})
	if err != nil {
		return model.FactObservation{}, false
	}
	return obs, true
}

// numeric accepts JSON numbers only; strings and booleans are not facts.
func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func hasSegment(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch string(trimmed) {
	case "null", "{}", "[]", `""`, "false":
		return false
	}
	return true
}

// ReportsIFRS reports whether the filer tags in ifrs-full without us-gaap.
func ReportsIFRS(fs model.FactSet) bool {
	ns := fs.Namespaces()
	return ns["ifrs-full"] && !ns["us-gaap"]
}

// FlexString decodes JSON strings and numbers alike.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "xbrl: decode string")
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return eris.Wrap(err, "xbrl: decode number")
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the raw value.
func (f FlexString) String() string { return string(f) }

// PadCIK renders a CIK as the 10-digit zero-padded form EDGAR uses in URLs
// and file names. Non-numeric input is returned trimmed and unchanged.
func PadCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	cik = strings.TrimPrefix(strings.ToUpper(cik), "CIK")
	n, err := strconv.ParseInt(cik, 10, 64)
	if err != nil {
		return cik
	}
	return fmt.Sprintf("%010d", n)
}
