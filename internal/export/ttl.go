package export

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/edgar-metrics/internal/catalog"
	"github.com/sells-group/edgar-metrics/internal/model"
)

// Ontology IRIs.
const (
	OntologyIRI  = "https://w3id.org/edgar-fin/2024#"
	InstancesIRI = "https://w3id.org/edgar-fin/2024/instances"
)

// TTLOptions selects which peer-group scopes are emitted.
type TTLOptions struct {
	IncludeIndustryScope bool
	IncludeSectorScope   bool
}

var currencies = map[string]bool{
	"USD": true, "EUR": true, "KRW": true, "JPY": true, "GBP": true, "CNY": true,
	"AUD": true, "CAD": true, "CHF": true, "HKD": true, "SGD": true,
}

var namespaces = map[string]string{
	"us-gaap":   "http://fasb.org/us-gaap/",
	"ifrs-full": "http://xbrl.ifrs.org/taxonomy/",
	"dei":       "http://xbrl.sec.gov/dei/",
	"srt":       "http://fasb.org/srt/",
}

var unsafeIRI = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// WriteTTL writes the bundle as Turtle instances of the edgar-fin ontology.
func WriteTTL(w io.Writer, b Bundle, opts TTLOptions) error {
	t := &turtle{w: bufio.NewWriter(w)}

	t.line("@prefix efin: <%s> .", OntologyIRI)
	t.line("@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .")
	t.line("@prefix owl: <http://www.w3.org/2002/07/owl#> .")
	t.line("@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .")
	t.line("")
	t.statement("<"+InstancesIRI+">", "owl:Ontology",
		"rdfs:label "+literal(fmt.Sprintf("EDGAR financial metrics FY%d", b.FY)),
		"owl:imports <"+OntologyIRI+">",
	)

	companies := b.Companies
	if len(companies) == 0 {
		companies = companiesOf(b.Results)
	}

	sectors := make(map[string]bool)
	industries := make(map[string]string)
	for _, c := range companies {
		t.statement(companyIRI(c.CIK), "efin:Company", companyProps(c)...)
		if c.Sector != "" {
			sectors[c.Sector] = true
		}
		if c.Industry != "" {
			if _, ok := industries[c.Industry]; !ok {
				industries[c.Industry] = c.Sector
			}
		}
	}

	benchmarks := selectBenchmarks(b.Benchmarks, opts)
	rankings := selectRankings(b.Rankings, opts)

	for _, s := range sortedSet(sectors) {
		t.statement(sectorIRI(s), "efin:Sector", "rdfs:label "+literal(s))
	}
	if needsSectorAll(benchmarks, rankings) {
		t.statement("efin:SectorAll", "efin:Sector", "rdfs:label "+literal("All"))
	}
	industryNames := make([]string, 0, len(industries))
	for ind := range industries {
		industryNames = append(industryNames, ind)
	}
	sort.Strings(industryNames)
	for _, ind := range industryNames {
		props := []string{"rdfs:label " + literal(ind)}
		if s := industries[ind]; s != "" {
			props = append(props, "efin:inSectorOf "+sectorIRI(s))
		}
		t.statement(industryIRI(ind), "efin:Industry", props...)
	}

	units := make(map[string]bool)
	currencySet := make(map[string]bool)
	concepts := make(map[string]bool)
	for _, r := range b.Results {
		for _, m := range r.Metrics {
			if !observable(m) {
				continue
			}
			t.statement(observationIRI(r.Company.CIK, r.FY, m), "efin:MetricObservation", observationProps(r, m)...)
			if m.Unit != "" {
				units[m.Unit] = true
				if cur := currencyOf(m.Unit); cur != "" {
					currencySet[cur] = true
				}
			}
			if m.Concept != "" {
				concepts[m.Concept] = true
			}
		}
	}

	for _, u := range sortedSet(units) {
		t.statement(unitIRI(u), "efin:Unit", "rdfs:label "+literal(u))
	}
	for _, c := range sortedSet(currencySet) {
		t.statement("efin:Currency"+c, "efin:Currency", "rdfs:label "+literal(c))
	}
	for _, qname := range sortedSet(concepts) {
		t.statement(conceptIRI(qname), "efin:XBRLConcept",
			"efin:hasQName "+literal(qname),
			"efin:hasNamespace "+literal(namespaceOf(qname))+"^^xsd:anyURI",
		)
	}

	for _, bm := range benchmarks {
		iri, class, scope := benchmarkIdentity(bm)
		props := append(scope,
			"efin:forMetric efin:"+bm.Metric,
			"efin:forFiscalYear "+strconv.Itoa(bm.FY),
			"efin:hasAverageValue "+double(bm.Mean),
			"efin:hasMedianValue "+double(bm.Median),
			"efin:hasMaxValue "+double(bm.Max),
			"efin:hasMinValue "+double(bm.Min),
			"efin:hasPercentile25 "+double(bm.P25),
			"efin:hasPercentile75 "+double(bm.P75),
			"efin:hasSampleSize "+strconv.Itoa(bm.SampleSize),
		)
		t.statement(iri, class, props...)
	}

	for _, rk := range rankings {
		iri, class, scope := rankingIdentity(rk)
		props := append(scope,
			"efin:forMetric efin:"+rk.Metric,
			"efin:forFiscalYear "+strconv.Itoa(rk.FY),
			"efin:hasRankingType "+literal(string(rk.Type)),
			"efin:hasRank "+strconv.Itoa(rk.Rank),
		)
		if rk.Value != nil {
			props = append(props, "efin:hasRankingValue "+double(*rk.Value))
		}
		if rk.CompositeScore != nil {
			props = append(props, "efin:hasCompositeScore "+double(*rk.CompositeScore))
		}
		t.statement(iri, class, props...)
		t.line("%s efin:hasRanking %s .", companyIRI(rk.CIK), iri)
		t.line("")
	}

	if t.err != nil {
		return eris.Wrap(t.err, "ttl export: write")
	}
	return eris.Wrap(t.w.Flush(), "ttl export: flush")
}

type turtle struct {
	w   *bufio.Writer
	err error
}

func (t *turtle) line(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format+"\n", args...)
}

func (t *turtle) statement(subject, class string, props ...string) {
	if len(props) == 0 {
		t.line("%s a %s .", subject, class)
		t.line("")
		return
	}
	t.line("%s a %s ;\n    %s .", subject, class, strings.Join(props, " ;\n    "))
	t.line("")
}

func companyProps(c model.CompanyContext) []string {
	props := []string{"efin:hasCIK " + literal(cik10(c.CIK))}
	if c.Symbol != "" {
		props = append(props, "efin:hasTicker "+literal(c.Symbol))
	}
	if c.Name != "" {
		props = append(props, "efin:hasCompanyName "+literal(c.Name))
	}
	if c.SIC != "" {
		props = append(props, "efin:hasSIC "+literal(c.SIC))
	}
	if c.SICDescription != "" {
		props = append(props, "efin:hasSICDescription "+literal(c.SICDescription))
	}
	if c.FiscalYearEnd != "" {
		props = append(props, "efin:hasFiscalYearEnd "+literal(c.FiscalYearEnd))
	}
	if c.Sector != "" {
		props = append(props, "efin:inSector "+sectorIRI(c.Sector))
	}
	if c.Industry != "" {
		props = append(props, "efin:inIndustry "+industryIRI(c.Industry))
	}
	return props
}

func observable(m model.ResolvedMetric) bool {
	if !m.Found() || !m.Finite() {
		return false
	}
	return m.PeriodType == model.PeriodDuration || m.PeriodType == model.PeriodInstant
}

func observationIRI(cik string, fy int, m model.ResolvedMetric) string {
	end := "NA"
	if !m.End.IsZero() {
		end = m.End.Format("2006-01-02")
	}
	return "efin:obs-" + iriSafe(fmt.Sprintf("%s-%d-%s-%s", cik10(cik), fy, m.Metric, end))
}

func observationProps(r model.CompanyResult, m model.ResolvedMetric) []string {
	props := []string{
		"efin:ofCompany " + companyIRI(r.Company.CIK),
		"efin:observesMetric efin:" + iriSafe(m.Metric),
		"efin:hasFiscalYear " + strconv.Itoa(r.FY),
		"efin:hasPeriodType " + literal(string(m.PeriodType)),
	}
	if !m.End.IsZero() {
		props = append(props, "efin:hasPeriodEnd "+literal(m.End.Format("2006-01-02T00:00:00"))+"^^xsd:dateTime")
	}
	if m.Unit != "" {
		props = append(props, "efin:hasUnit "+unitIRI(m.Unit))
		if cur := currencyOf(m.Unit); cur != "" {
			props = append(props, "efin:hasCurrency efin:Currency"+cur)
		}
	}
	props = append(props,
		"efin:hasNumericValue "+double(m.Value),
		"efin:isDerived "+strconv.FormatBool(m.Derived),
	)
	if m.Concept != "" {
		props = append(props, "efin:hasXbrlConcept "+conceptIRI(m.Concept))
	}
	props = append(props, "efin:hasSourceType "+literal(string(m.Source)))
	if m.Derived {
		for _, in := range computedFromMetrics(m.ComputedFrom) {
			props = append(props, "efin:computedFromMetric efin:"+in)
		}
	}
	return props
}

var qualifier = regexp.MustCompile(`\([^)]*\)`)

// computedFromMetrics extracts known metric names from provenance entries
// such as "Revenue(cur)" or "LongTermDebt,ShortTermDebt".
func computedFromMetrics(from []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, entry := range from {
		for _, part := range strings.FieldsFunc(entry, func(r rune) bool { return r == ',' || r == ';' }) {
			name := strings.TrimSpace(qualifier.ReplaceAllString(part, ""))
			if name == "" || name == string(model.SourceDirectGrowth) || seen[name] {
				continue
			}
			if !catalog.IsBase(name) && !catalog.IsDerived(name) {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func selectBenchmarks(records []model.BenchmarkRecord, opts TTLOptions) []model.BenchmarkRecord {
	var out []model.BenchmarkRecord
	for _, b := range records {
		switch {
		case b.Global():
		case b.Industry != "" && !opts.IncludeIndustryScope:
			continue
		case b.Industry == "" && !opts.IncludeSectorScope:
			continue
		}
		out = append(out, b)
	}
	return out
}

func selectRankings(records []model.RankingRecord, opts TTLOptions) []model.RankingRecord {
	var out []model.RankingRecord
	for _, r := range records {
		if r.Type != model.RankingTop10 {
			continue
		}
		composite := r.Metric == model.CompositeMetric
		switch r.Scope() {
		case "Industry":
			if !opts.IncludeIndustryScope && !composite {
				continue
			}
		case "Sector":
			if !opts.IncludeSectorScope && !composite {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func needsSectorAll(benchmarks []model.BenchmarkRecord, rankings []model.RankingRecord) bool {
	for _, b := range benchmarks {
		if b.Global() {
			return true
		}
	}
	for _, r := range rankings {
		if r.Scope() == "All" {
			return true
		}
	}
	return false
}

func benchmarkIdentity(b model.BenchmarkRecord) (iri, class string, scope []string) {
	fy := strconv.Itoa(b.FY)
	switch {
	case b.Industry != "":
		return "efin:IndustryBenchmark" + camel(b.Industry) + b.Metric + fy, "efin:IndustryBenchmark",
			[]string{"efin:forIndustry " + industryIRI(b.Industry)}
	case b.Sector != "":
		return "efin:SectorBenchmark" + camel(b.Sector) + b.Metric + fy, "efin:SectorBenchmark",
			[]string{"efin:forSector " + sectorIRI(b.Sector)}
	default:
		return "efin:AllBenchmark" + b.Metric + fy, "efin:AllBenchmark",
			[]string{"efin:forSector efin:SectorAll"}
	}
}

func rankingIdentity(r model.RankingRecord) (iri, class string, scope []string) {
	suffix := r.Metric + string(r.Type) + strconv.Itoa(r.FY) + cik10(r.CIK)
	switch r.Scope() {
	case "Industry":
		return "efin:TopRanking" + camel(r.Industry) + suffix, "efin:IndustryTopRanking",
			[]string{"efin:forIndustry " + industryIRI(r.Industry)}
	case "Sector":
		return "efin:TopRankingSector" + camel(r.Sector) + suffix, "efin:SectorTopRanking",
			[]string{"efin:forSector " + sectorIRI(r.Sector)}
	default:
		return "efin:TopRankingAll" + suffix, "efin:AllTopRanking",
			[]string{"efin:forSector efin:SectorAll"}
	}
}

func companyIRI(cik string) string { return "efin:CIK" + cik10(cik) }
func sectorIRI(s string) string    { return "efin:Sector" + camel(s) }
func industryIRI(s string) string  { return "efin:Industry" + camel(s) }
func unitIRI(u string) string      { return "efin:Unit" + camel(u) }
func conceptIRI(q string) string   { return "efin:XBRLConcept" + iriSafe(q) }

func cik10(cik string) string {
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

// currencyOf returns the ISO code a unit is denominated in, if any.
// "USD/shares" is denominated in USD.
func currencyOf(unit string) string {
	code, _, _ := strings.Cut(strings.ToUpper(unit), "/")
	if currencies[code] {
		return code
	}
	return ""
}

func namespaceOf(qname string) string {
	prefix, _, ok := strings.Cut(qname, ":")
	if !ok {
		prefix = "unknown"
	}
	if ns, ok := namespaces[prefix]; ok {
		return ns
	}
	return "http://example.org/" + prefix + "/"
}

// camel turns free text into an IRI-safe CamelCase name:
// "Information Technology" becomes "InformationTechnology".
func camel(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	caser := cases.Title(language.Und)
	var sb strings.Builder
	for _, w := range words {
		sb.WriteString(caser.String(w))
	}
	return sb.String()
}

func iriSafe(s string) string {
	return unsafeIRI.ReplaceAllString(s, "-")
}

func literal(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
	return `"` + r.Replace(s) + `"`
}

func double(v float64) string {
	return literal(strconv.FormatFloat(v, 'g', -1, 64)) + "^^xsd:double"
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
