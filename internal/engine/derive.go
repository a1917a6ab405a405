package engine

import (
	"math"
	"strings"

	"github.com/sells-group/edgar-metrics/internal/catalog"
	"github.com/sells-group/edgar-metrics/internal/model"
)

// derivedRow builds a derived metric stamped with the period details of ref.
func derivedRow(metric string, value float64, unit string, ref model.ResolvedMetric, computedFrom string, confidence float64, inputs ...model.ResolvedMetric) model.ResolvedMetric {
	pt := model.PeriodDuration
	if metric == catalog.AssetTurnover || metric == catalog.EquityRatio {
		pt = model.PeriodInstant
	}
	m := model.ResolvedMetric{
		Metric:       metric,
		Value:        value,
		Unit:         unit,
		PeriodType:   pt,
		End:          ref.End,
		Form:         ref.Form,
		Accn:         ref.Accn,
		Source:       model.SourceDerived,
		ComputedFrom: strings.Split(computedFrom, ";"),
		Confidence:   confidence,
		Derived:      true,
	}
	for _, in := range inputs {
		if in.Found() {
			m.Components = append(m.Components, model.ComponentOf(in))
		}
	}
	return m
}

// firstFound returns the first resolved metric among ms.
func firstFound(ms ...model.ResolvedMetric) model.ResolvedMetric {
	for _, m := range ms {
		if m.Found() {
			return m
		}
	}
	return model.ResolvedMetric{}
}

// average returns the mean of a and b, or false when it is zero.
func average(a, b float64) (float64, bool) {
	avg := (a + b) / 2
	return avg, avg != 0
}

// Secondary computes margins, returns, coverage, liquidity, turnover and the
// ROIC decomposition from resolved base metrics. Rows whose inputs are
// missing or whose value is not finite are omitted.
func (r *Resolver) Secondary(fy, durationTol, instantTol int) []model.ResolvedMetric {
	var (
		rev     = r.Resolve(catalog.Revenue, fy, durationTol)
		ni      = r.Resolve(catalog.NetIncome, fy, durationTol)
		oi      = r.Resolve(catalog.OperatingIncome, fy, durationTol)
		gp      = r.Resolve(catalog.GrossProfit, fy, durationTol)
		cfo     = r.Resolve(catalog.CFO, fy, durationTol)
		capex   = r.Resolve(catalog.CapEx, fy, durationTol)
		dpa     = r.Resolve(catalog.DepAmort, fy, durationTol)
		iexp    = r.Resolve(catalog.InterestExpense, fy, durationTol)
		eq      = r.Resolve(catalog.Equity, fy, instantTol)
		eq1     = r.Prior(catalog.Equity, fy, instantTol)
		assets  = r.Resolve(catalog.Assets, fy, instantTol)
		assets1 = r.Prior(catalog.Assets, fy, instantTol+60)
	)

	var rows []model.ResolvedMetric
	add := func(m model.ResolvedMetric) {
		if m.Finite() {
			rows = append(rows, m)
		}
	}

	// Margins.
	if rev.Found() && rev.Value != 0 {
		if gp.Found() {
			add(derivedRow(catalog.GrossMargin, gp.Value/rev.Value, "ratio", rev, "GrossProfit;Revenue", 0.90, gp, rev))
		}
		if oi.Found() {
			add(derivedRow(catalog.OperatingMargin, oi.Value/rev.Value, "ratio", rev, "OperatingIncome;Revenue", 0.90, oi, rev))
		}
		if ni.Found() {
			add(derivedRow(catalog.NetProfitMargin, ni.Value/rev.Value, "ratio", rev, "NetIncome;Revenue", 0.90, ni, rev))
		}
	}

	if ni.Found() && eq.Found() && eq1.Found() {
		if avg, ok := average(eq.Value, eq1.Value); ok {
			add(derivedRow(catalog.ROE, ni.Value/avg, "ratio", eq, "NetIncome;Equity;Equity_Prior", 0.90, ni, eq, eq1))
		}
	}

	if cfo.Found() && capex.Found() {
		add(derivedRow(catalog.FreeCashFlow, cfo.Value-capex.Value, cfo.Unit, cfo, "CFO;CapEx", 0.88, cfo, capex))
	}

	if oi.Found() && dpa.Found() {
		ebitda := oi.Value + dpa.Value
		add(derivedRow(catalog.EBITDA, ebitda, oi.Unit, oi, "OperatingIncome;DepAmort", 0.88, oi, dpa))
		if rev.Found() && rev.Value != 0 {
			add(derivedRow(catalog.EBITDAMargin, ebitda/rev.Value, "ratio", rev, "EBITDA;Revenue", 0.86, oi, dpa, rev))
		}
	}

	if iexp.Found() && iexp.Value != 0 {
		switch {
		case oi.Found():
			add(derivedRow(catalog.InterestCoverage, oi.Value/iexp.Value, "x", iexp, "OperatingIncome_or_NIplusDA;InterestExpense", 0.86, oi, iexp))
		case ni.Found() && dpa.Found():
			add(derivedRow(catalog.InterestCoverage, (ni.Value+dpa.Value)/iexp.Value, "x", iexp, "OperatingIncome_or_NIplusDA;InterestExpense", 0.86, ni, dpa, iexp))
		}
	}

	td := r.Resolve(catalog.TotalDebt, fy, instantTol)
	if td.Found() && eq.Found() && eq.Value != 0 {
		add(derivedRow(catalog.DebtToEquity, td.Value/eq.Value, "ratio", eq, "TotalDebt;Equity", 0.86, td, eq))
	}

	// Liquidity.
	ca := r.Resolve(catalog.CurrentAssets, fy, instantTol)
	cl := r.Resolve(catalog.CurrentLiabilities, fy, instantTol)
	inv := r.Resolve(catalog.Inventories, fy, instantTol)
	if ca.Found() && cl.Found() && cl.Value != 0 {
		ref := firstFound(ca, cl)
		add(derivedRow(catalog.CurrentRatio, ca.Value/cl.Value, "ratio", ref, "CurrentAssets;CurrentLiabilities", 0.86, ca, cl))
		if inv.Found() {
			add(derivedRow(catalog.QuickRatio, (ca.Value-inv.Value)/cl.Value, "ratio", ref, "CurrentAssets;Inventories;CurrentLiabilities", 0.86, ca, inv, cl))
		}
	}

	// Turnover.
	inv1 := r.Prior(catalog.Inventories, fy, instantTol)
	ar := r.Resolve(catalog.AccountsReceivable, fy, instantTol)
	ar1 := r.Prior(catalog.AccountsReceivable, fy, instantTol)
	cogs := r.Resolve(catalog.CostOfGoodsSold, fy, durationTol)
	if cogs.Found() && inv.Found() {
		if avg, ok := average(inv.Value, priorOr(inv1, inv)); ok {
			add(derivedRow(catalog.InventoryTurnover, cogs.Value/avg, "turns", cogs, "CostOfGoodsSold;Inventories;Inventories_Prior", 0.84, cogs, inv, inv1))
		}
	}
	if rev.Found() && ar.Found() {
		if avg, ok := average(ar.Value, priorOr(ar1, ar)); ok {
			add(derivedRow(catalog.ReceivablesTurnover, rev.Value/avg, "turns", rev, "Revenue;AccountsReceivable;AccountsReceivable_Prior", 0.84, rev, ar, ar1))
		}
	}

	if cfo.Found() && cl.Found() && cl.Value != 0 {
		add(derivedRow(catalog.OperatingCashFlowRatio, cfo.Value/cl.Value, "ratio", cfo, "CFO;CurrentLiabilities", 0.84, cfo, cl))
	}

	if rev.Found() && assets.Found() && assets1.Found() {
		if avg, ok := average(assets.Value, assets1.Value); ok {
			add(derivedRow(catalog.AssetTurnover, rev.Value/avg, "ratio", rev, "Revenue;Assets;Assets_Prior", 0.84, rev, assets, assets1))
		}
	}
	if eq.Found() && assets.Found() && assets.Value != 0 {
		add(derivedRow(catalog.EquityRatio, eq.Value/assets.Value, "ratio", assets, "Equity;Assets", 0.84, eq, assets))
	}

	rows = append(rows, r.roic(fy, durationTol, instantTol, oi, eq)...)
	return rows
}

func priorOr(prior, cur model.ResolvedMetric) float64 {
	if prior.Found() {
		return prior.Value
	}
	return cur.Value
}

// roic computes NOPAT, invested capital and ROIC. The triple is skipped when
// the effective tax rate is undefined or outside [0,1].
func (r *Resolver) roic(fy, durationTol, instantTol int, oi, eq model.ResolvedMetric) []model.ResolvedMetric {
	pretax := r.Resolve(catalog.PreTaxIncome, fy, durationTol)
	tax := r.Resolve(catalog.IncomeTaxExpense, fy, durationTol)
	if !pretax.Found() || !tax.Found() || !oi.Found() || pretax.Value == 0 {
		return nil
	}
	tr := tax.Value / pretax.Value
	if math.IsNaN(tr) || tr < 0 || tr > 1 {
		return nil
	}

	lt := r.Resolve(catalog.LongTermDebt, fy, instantTol)
	st := r.Resolve(catalog.ShortTermDebt, fy, instantTol)
	cash := r.Resolve(catalog.CashAndCashEquivalents, fy, instantTol)

	var invested float64
	for _, m := range []model.ResolvedMetric{lt, st, eq} {
		if m.Found() {
			invested += m.Value
		}
	}
	if cash.Found() {
		invested -= cash.Value
	}

	nopat := oi.Value * (1 - tr)

	var out []model.ResolvedMetric
	keep := func(m model.ResolvedMetric) {
		if m.Finite() {
			out = append(out, m)
		}
	}
	if invested != 0 {
		keep(derivedRow(catalog.ROIC, nopat/invested, "ratio", oi,
			"OperatingIncome;IncomeTaxExpense;PreTaxIncome;Debt;Equity;Cash", 0.84, oi, tax, pretax, lt, st, eq, cash))
	}
	keep(derivedRow(catalog.NOPAT, nopat, "USD", oi, "OperatingIncome;IncomeTaxExpense;PreTaxIncome", 0.82, oi, tax, pretax))
	keep(derivedRow(catalog.InvestedCapital, invested, "USD", oi, "LongTermDebt;ShortTermDebt;Equity;Cash", 0.82, lt, st, eq, cash))
	return out
}
