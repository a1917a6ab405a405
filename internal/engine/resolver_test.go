package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgar-metrics/internal/catalog"
	"github.com/sells-group/edgar-metrics/internal/model"
)

func newTestResolver(company model.CompanyContext, obs ...model.FactObservation) *Resolver {
	return NewResolver(catalog.Default(), company, factSet(obs...), "USD")
}

func TestResolver_PrefersHigherBaseScore(t *testing.T) {
	t.Parallel()

	r := newTestResolver(testCompany(),
		annual("Revenues", 990, "2024-12-31"),
		annual("RevenueFromContractWithCustomerExcludingAssessedTax", 1000, "2024-12-31"),
	)

	m := r.Resolve(catalog.Revenue, 2024, 90)
	require.True(t, m.Found())
	assert.InDelta(t, 1000, m.Value, 1e-9)
	assert.Equal(t, "us-gaap:RevenueFromContractWithCustomerExcludingAssessedTax", m.Concept)
	assert.Equal(t, model.SourceAnnual, m.Source)
	assert.Equal(t, model.PeriodDuration, m.PeriodType)
	assert.Equal(t, "USD", m.Unit)
	assert.Equal(t, "10-K", m.Form)
	assert.InDelta(t, 1.0, m.Confidence, 1e-12, "score above one is clamped")
}

func TestResolver_WidenedStepPenalty(t *testing.T) {
	t.Parallel()

	// 150 days before the anchor: outside 120, inside the first widened step.
	r := newTestResolver(testCompany(),
		point("StockholdersEquity", 500, "2024-08-03", withUnit("EUR"), withForm("10-Q"), withFP("Q2")),
	)

	m := r.Resolve(catalog.Equity, 2024, 120)
	require.True(t, m.Found())
	assert.Equal(t, model.SourceInstant, m.Source)
	assert.Equal(t, model.PeriodInstant, m.PeriodType)
	// 0.98 base - 0.01 form - 0.02 unit + 0.02 sector - 0.02 widened
	assert.InDelta(t, 0.95, m.Confidence, 1e-9)
}

func TestResolver_NoMatch(t *testing.T) {
	t.Parallel()

	r := newTestResolver(testCompany(), point("Assets", 1, "2018-12-31"))

	m := r.Resolve(catalog.Liabilities, 2024, 120)
	assert.False(t, m.Found())
	assert.Equal(t, model.SourceNone, m.Source)
	assert.Equal(t, "no candidate matched", m.Reason)

	m = r.Resolve(catalog.Assets, 2024, 120)
	assert.False(t, m.Found(), "six years away is beyond every widening step")
}

func TestResolver_SectorRestriction(t *testing.T) {
	t.Parallel()

	utility := testCompany()
	utility.Sector = "Utilities"
	tech := testCompany()

	facts := []model.FactObservation{annual("UtilityRevenue", 750, "2024-12-31")}

	m := newTestResolver(utility, facts...).Resolve(catalog.Revenue, 2024, 90)
	require.True(t, m.Found())
	assert.Equal(t, "us-gaap:UtilityRevenue", m.Concept)

	m = newTestResolver(tech, facts...).Resolve(catalog.Revenue, 2024, 90)
	assert.False(t, m.Found())
}

func TestResolver_IFRSCandidates(t *testing.T) {
	t.Parallel()

	facts := []model.FactObservation{annual("ifrs-full:Revenue", 420, "2024-12-31", withUnit("EUR"), withForm("20-F"))}

	ifrs := testCompany()
	ifrs.IFRS = true
	m := newTestResolver(ifrs, facts...).Resolve(catalog.Revenue, 2024, 90)
	require.True(t, m.Found())
	assert.Equal(t, "ifrs-full:Revenue", m.Concept)
	assert.Equal(t, "EUR", m.Unit)

	m = newTestResolver(testCompany(), facts...).Resolve(catalog.Revenue, 2024, 90)
	assert.False(t, m.Found())
}

func TestResolver_EqualScoresPreferLaterEnd(t *testing.T) {
	t.Parallel()

	cat, err := catalog.Parse([]byte(`
metrics:
  Widget:
    shape: instant
    candidates:
      - {qname: WidgetA, score: 0.9}
      - {qname: WidgetB, score: 0.9}
`))
	require.NoError(t, err)

	fs := factSet(
		point("WidgetA", 1, "2024-12-31"),
		point("WidgetB", 2, "2025-01-10"),
	)
	m := NewResolver(cat, testCompany(), fs, "USD").Resolve("Widget", 2024, 120)
	require.True(t, m.Found())
	assert.Equal(t, "us-gaap:WidgetB", m.Concept)
	assert.InDelta(t, 2, m.Value, 1e-12)
}

func TestBetter(t *testing.T) {
	t.Parallel()

	early, late := day("2024-12-31"), day("2025-01-10")

	assert.True(t, better(1.0, early, 0.9, late))
	assert.False(t, better(0.9, late, 1.0, early))
	assert.True(t, better(0.9+1e-12, late, 0.9, early), "near-equal scores fall back to end date")
	assert.False(t, better(0.9+1e-12, early, 0.9, late), "near-equal scores fall back to end date")
}

func TestResolver_EPSDiluted(t *testing.T) {
	t.Parallel()

	t.Run("direct", func(t *testing.T) {
		t.Parallel()
		r := newTestResolver(testCompany(),
			annual("EarningsPerShareDiluted", 2.5, "2024-12-31", withUnit("USD/shares")),
		)
		m := r.Resolve(catalog.EPSDiluted, 2024, 90)
		require.True(t, m.Found())
		assert.Equal(t, model.SourceAnnual, m.Source)
		assert.InDelta(t, 2.5, m.Value, 1e-12)
	})

	t.Run("net income over diluted shares", func(t *testing.T) {
		t.Parallel()
		r := newTestResolver(testCompany(),
			annual("NetIncomeLoss", 500, "2024-12-31"),
			annual("WeightedAverageNumberOfDilutedSharesOutstanding", 100, "2024-12-31", withUnit("shares")),
		)
		m := r.Resolve(catalog.EPSDiluted, 2024, 90)
		require.True(t, m.Found())
		assert.Equal(t, model.SourceDerived, m.Source)
		assert.InDelta(t, 5, m.Value, 1e-12)
		assert.Equal(t, "USDPerShare", m.Unit)
		assert.InDelta(t, 0.85, m.Confidence, 1e-12)
		assert.Len(t, m.Components, 2)
	})

	t.Run("zero shares", func(t *testing.T) {
		t.Parallel()
		r := newTestResolver(testCompany(),
			annual("NetIncomeLoss", 500, "2024-12-31"),
			annual("WeightedAverageNumberOfDilutedSharesOutstanding", 0, "2024-12-31", withUnit("shares")),
		)
		m := r.Resolve(catalog.EPSDiluted, 2024, 90)
		assert.False(t, m.Found())
	})
}

func TestResolver_ShortTermDebtPrefersDebtCurrent(t *testing.T) {
	t.Parallel()

	r := newTestResolver(testCompany(),
		point("ShortTermBorrowings", 50, "2024-12-31"),
		point("DebtCurrent", 30, "2024-12-31"),
	)
	m := r.Resolve(catalog.ShortTermDebt, 2024, 120)
	require.True(t, m.Found())
	assert.Equal(t, catalog.ShortTermDebt, m.Metric)
	assert.Equal(t, "us-gaap:DebtCurrent", m.Concept)
	assert.InDelta(t, 30, m.Value, 1e-12)

	r = newTestResolver(testCompany(), point("ShortTermBorrowings", 50, "2024-12-31"))
	m = r.Resolve(catalog.ShortTermDebt, 2024, 120)
	require.True(t, m.Found())
	assert.Equal(t, "us-gaap:ShortTermBorrowings", m.Concept)
}

func TestResolver_COGSFallback(t *testing.T) {
	t.Parallel()

	r := newTestResolver(testCompany(),
		annual("Revenues", 1000, "2024-12-31"),
		annual("GrossProfit", 400, "2024-12-31"),
	)
	m := r.Resolve(catalog.CostOfGoodsSold, 2024, 90)
	require.True(t, m.Found())
	assert.Equal(t, model.SourceDerived, m.Source)
	assert.InDelta(t, 600, m.Value, 1e-9)
	assert.InDelta(t, 0.60, m.Confidence, 1e-12)
	assert.Equal(t, "Derived as Revenue - GrossProfit", m.Reason)
	assert.Equal(t, []string{catalog.Revenue, catalog.GrossProfit}, m.ComputedFrom)

	r = newTestResolver(testCompany(), annual("CostOfRevenue", 550, "2024-12-31"))
	m = r.Resolve(catalog.CostOfGoodsSold, 2024, 90)
	require.True(t, m.Found())
	assert.Equal(t, model.SourceAnnual, m.Source)
	assert.InDelta(t, 550, m.Value, 1e-9)
}

func TestResolver_TotalDebt(t *testing.T) {
	t.Parallel()

	t.Run("both sides", func(t *testing.T) {
		t.Parallel()
		r := newTestResolver(testCompany(),
			point("LongTermDebtNoncurrent", 200, "2024-12-31"),
			point("DebtCurrent", 50, "2024-12-31"),
		)
		m := r.Resolve(catalog.TotalDebt, 2024, 120)
		require.True(t, m.Found())
		assert.Equal(t, model.SourceDerived, m.Source)
		assert.InDelta(t, 250, m.Value, 1e-9)
		assert.InDelta(t, 0.90, m.Confidence, 1e-12)
	})

	t.Run("long-term only", func(t *testing.T) {
		t.Parallel()
		r := newTestResolver(testCompany(), point("LongTermDebtNoncurrent", 200, "2024-12-31"))
		m := r.Resolve(catalog.TotalDebt, 2024, 120)
		require.True(t, m.Found())
		assert.Equal(t, model.SourcePartial, m.Source)
		assert.InDelta(t, 200, m.Value, 1e-9)
		assert.InDelta(t, 0.75, m.Confidence, 1e-12)
	})

	t.Run("none", func(t *testing.T) {
		t.Parallel()
		r := newTestResolver(testCompany(), point("Assets", 1, "2024-12-31"))
		m := r.Resolve(catalog.TotalDebt, 2024, 120)
		assert.False(t, m.Found())
		assert.Equal(t, "no debt components", m.Reason)
	})
}

func TestResolver_ConfidenceBounds(t *testing.T) {
	t.Parallel()

	r := newTestResolver(testCompany(),
		annual("Revenues", 1000, "2024-12-31"),
		annual("NetIncomeLoss", 50, "2024-10-15", withForm("8-K"), withUnit("EUR"), withSegment(), withFP("")),
		point("Assets", 10, "2024-12-31"),
	)
	for _, metric := range catalog.BaseMetrics {
		m := r.Resolve(metric, 2024, 90)
		assert.GreaterOrEqual(t, m.Confidence, 0.0, metric)
		assert.LessOrEqual(t, m.Confidence, 1.0, metric)
	}
}

func TestResolver_Memoizes(t *testing.T) {
	t.Parallel()

	r := newTestResolver(testCompany(), annual("Revenues", 1000, "2024-12-31"))
	first := r.Resolve(catalog.Revenue, 2024, 90)
	delete(r.facts, "us-gaap:Revenues")
	second := r.Resolve(catalog.Revenue, 2024, 90)
	assert.Equal(t, first, second)
}
