package engine

import (
	"time"

	"github.com/sells-group/edgar-metrics/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type factOpt func(*model.FactObservation)

func withFP(fp string) factOpt     { return func(o *model.FactObservation) { o.FP = fp } }
func withForm(form string) factOpt { return func(o *model.FactObservation) { o.Form = form } }
func withQtrs(n int) factOpt       { return func(o *model.FactObservation) { o.Qtrs = n } }
func withUnit(unit string) factOpt { return func(o *model.FactObservation) { o.Unit = unit } }
func withSegment() factOpt         { return func(o *model.FactObservation) { o.HasSegment = true } }
func withoutMarkers() factOpt      { return func(o *model.FactObservation) { o.FP, o.Form, o.Qtrs = "", "", 0 } }

// annual builds a full-year 10-K duration fact in USD.
func annual(concept string, v float64, end string, opts ...factOpt) model.FactObservation {
	e := day(end)
	o := model.FactObservation{
		Concept: model.QualifyConcept(concept),
		Unit:    "USD",
		Value:   v,
		End:     e,
		Start:   e.AddDate(-1, 0, 1),
		FP:      "FY",
		Form:    "10-K",
		Qtrs:    4,
		Accn:    "0000000000-" + end,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// point builds a 10-K instant fact in USD.
func point(concept string, v float64, end string, opts ...factOpt) model.FactObservation {
	o := model.FactObservation{
		Concept: model.QualifyConcept(concept),
		Unit:    "USD",
		Value:   v,
		End:     day(end),
		FP:      "FY",
		Form:    "10-K",
		Accn:    "0000000000-" + end,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func factSet(obs ...model.FactObservation) model.FactSet {
	fs := make(model.FactSet)
	for _, o := range obs {
		fs.Add(o)
	}
	return fs
}

func testCompany() model.CompanyContext {
	return model.CompanyContext{
		CIK:           "0000000001",
		Name:          "Test Corp",
		Sector:        "Information Technology",
		Industry:      "Services-Prepackaged Software",
		FiscalYearEnd: "1231",
	}
}
