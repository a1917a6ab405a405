package catalog

// Canonical base metrics.
const (
	Revenue                = "Revenue"
	OperatingIncome        = "OperatingIncome"
	NetIncome              = "NetIncome"
	CashAndCashEquivalents = "CashAndCashEquivalents"
	CFO                    = "CFO"
	Assets                 = "Assets"
	Liabilities            = "Liabilities"
	Equity                 = "Equity"
	EPSDiluted             = "EPSDiluted"
	CapEx                  = "CapEx"
	InterestExpense        = "InterestExpense"
	DepAmort               = "DepAmort"
	LongTermDebt           = "LongTermDebt"
	ShortTermDebt          = "ShortTermDebt"
	DebtCurrent            = "DebtCurrent"
	GrossProfit            = "GrossProfit"
	DilutedShares          = "DilutedShares"
	CurrentAssets          = "CurrentAssets"
	CurrentLiabilities     = "CurrentLiabilities"
	Inventories            = "Inventories"
	AccountsReceivable     = "AccountsReceivable"
	CostOfGoodsSold        = "CostOfGoodsSold"
	IncomeTaxExpense       = "IncomeTaxExpense"
	PreTaxIncome           = "PreTaxIncome"
	TotalDebt              = "TotalDebt"
)

// Derived metrics.
const (
	RevenueGrowthYoY       = "RevenueGrowthYoY"
	GrossMargin            = "GrossMargin"
	OperatingMargin        = "OperatingMargin"
	NetProfitMargin        = "NetProfitMargin"
	ROE                    = "ROE"
	FreeCashFlow           = "FreeCashFlow"
	EBITDA                 = "EBITDA"
	EBITDAMargin           = "EBITDAMargin"
	InterestCoverage       = "InterestCoverage"
	DebtToEquity           = "DebtToEquity"
	CurrentRatio           = "CurrentRatio"
	QuickRatio             = "QuickRatio"
	InventoryTurnover      = "InventoryTurnover"
	ReceivablesTurnover    = "ReceivablesTurnover"
	OperatingCashFlowRatio = "OperatingCashFlowRatio"
	EquityRatio            = "EquityRatio"
	AssetTurnover          = "AssetTurnover"
	NetIncomeGrowthYoY     = "NetIncomeGrowthYoY"
	CFOGrowthYoY           = "CFOGrowthYoY"
	AssetGrowthRate        = "AssetGrowthRate"
	ROIC                   = "ROIC"
	NOPAT                  = "NOPAT"
	InvestedCapital        = "InvestedCapital"
)

// Metric selection groups.
const (
	GroupAll     = "all"
	GroupBase    = "base"
	GroupDerived = "derived"
)

// BaseMetrics lists every directly resolved metric in output order.
var BaseMetrics = []string{
	Revenue, OperatingIncome, NetIncome, CashAndCashEquivalents, CFO, Assets,
	Liabilities, Equity, EPSDiluted, CapEx, InterestExpense, DepAmort,
	LongTermDebt, ShortTermDebt, DebtCurrent, GrossProfit, DilutedShares,
	CurrentAssets, CurrentLiabilities, Inventories, AccountsReceivable,
	CostOfGoodsSold, IncomeTaxExpense, PreTaxIncome,
}

// DerivedMetrics lists every computed metric.
var DerivedMetrics = []string{
	RevenueGrowthYoY, GrossMargin, OperatingMargin, NetProfitMargin, ROE,
	FreeCashFlow, EBITDA, EBITDAMargin, InterestCoverage, DebtToEquity,
	CurrentRatio, QuickRatio, InventoryTurnover, ReceivablesTurnover,
	OperatingCashFlowRatio, EquityRatio, AssetTurnover, NetIncomeGrowthYoY,
	CFOGrowthYoY, AssetGrowthRate, ROIC, NOPAT, InvestedCapital,
}

// GrowthMetrics are the metrics produced by the growth engine, in order.
var GrowthMetrics = []string{RevenueGrowthYoY, NetIncomeGrowthYoY, CFOGrowthYoY, AssetGrowthRate}

// BenchmarkMetrics is the metric set used for benchmarks and rankings.
var BenchmarkMetrics = []string{
	ROE, NetProfitMargin, DebtToEquity, CurrentRatio, RevenueGrowthYoY, CFOGrowthYoY,
}

// LowerIsBetter reports whether smaller values rank higher.
func LowerIsBetter(metric string) bool {
	return metric == DebtToEquity
}

// IsBase reports whether metric is a base metric.
func IsBase(metric string) bool { return contains(BaseMetrics, metric) }

// IsDerived reports whether metric is a derived metric.
func IsDerived(metric string) bool { return contains(DerivedMetrics, metric) }

// Known reports whether name is a metric or a selection group.
func Known(name string) bool {
	switch name {
	case GroupAll, GroupBase, GroupDerived:
		return true
	}
	return IsBase(name) || IsDerived(name)
}

// Selection is a resolved set of requested metrics.
type Selection struct {
	all, base, derived bool
	names              map[string]bool
}

// NewSelection builds a selection from group names and metric names.
// An empty request selects everything.
func NewSelection(requested []string, skipDerived bool) Selection {
	s := Selection{names: make(map[string]bool)}
	if len(requested) == 0 {
		s.all = true
	}
	for _, r := range requested {
		switch r {
		case GroupAll:
			s.all = true
		case GroupBase:
			s.base = true
		case GroupDerived:
			s.derived = true
		default:
			s.names[r] = true
		}
	}
	if skipDerived {
		s.derived = false
		if s.all {
			s.all = false
			s.base = true
		}
		for n := range s.names {
			if IsDerived(n) {
				delete(s.names, n)
			}
		}
	}
	return s
}

// Wants reports whether metric should be emitted.
func (s Selection) Wants(metric string) bool {
	if s.all || s.names[metric] {
		return true
	}
	if s.base && IsBase(metric) {
		return true
	}
	return s.derived && IsDerived(metric)
}

// WantsDerived reports whether any derived metric is selected.
func (s Selection) WantsDerived() bool {
	if s.all || s.derived {
		return true
	}
	for n := range s.names {
		if IsDerived(n) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
