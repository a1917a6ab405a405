// Package catalog holds the declarative candidate-concept table used to
// resolve canonical metrics, plus the name patterns for directly disclosed
// growth figures. The table is parsed once and never mutated.
package catalog

import (
	_ "embed"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/edgar-metrics/internal/model"
)

//go:embed candidates.yaml
var builtin []byte

// IFRSSector is the pseudo-sector that admits ifrs-full candidates.
const IFRSSector = "IFRS"

// Candidate is one taxonomy concept that may report a canonical metric.
type Candidate struct {
	Metric  string
	Concept string
	Score   float64
	Sectors []string // empty means unrestricted
	Note    string
}

// Allows reports whether the candidate applies to a filer in sector.
func (c Candidate) Allows(sector string, ifrs bool) bool {
	if len(c.Sectors) == 0 {
		return true
	}
	for _, s := range c.Sectors {
		if s == sector || (s == IFRSSector && ifrs) {
			return true
		}
	}
	return false
}

// GrowthRule describes how to mine a directly disclosed growth concept.
type GrowthRule struct {
	Metric   string
	Base     string
	Patterns []*regexp.Regexp
}

// Catalog is an immutable candidate table.
type Catalog struct {
	shapes     map[string]model.PeriodType
	candidates map[string][]Candidate
	growth     map[string]GrowthRule
	blacklist  []string
}

type fileCandidate struct {
	QName   string   `yaml:"qname"`
	Score   float64  `yaml:"score"`
	Sectors []string `yaml:"sectors"`
	Note    string   `yaml:"note"`
}

type fileMetric struct {
	Shape      string          `yaml:"shape"`
	Candidates []fileCandidate `yaml:"candidates"`
}

type fileGrowth struct {
	Base     string   `yaml:"base"`
	Patterns []string `yaml:"patterns"`
}

type file struct {
	Metrics map[string]fileMetric `yaml:"metrics"`
	Growth  struct {
		Blacklist []string              `yaml:"blacklist"`
		Metrics   map[string]fileGrowth `yaml:"metrics"`
	} `yaml:"growth"`
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the built-in catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Parse(builtin)
	})
	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultCat
}

// Load reads a catalog document from r.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read")
	}
	return Parse(data)
}

// LoadFile reads a catalog document from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Load(f)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "catalog: parse yaml")
	}

	c := &Catalog{
		shapes:     make(map[string]model.PeriodType, len(doc.Metrics)),
		candidates: make(map[string][]Candidate, len(doc.Metrics)),
		growth:     make(map[string]GrowthRule, len(doc.Growth.Metrics)),
		blacklist:  doc.Growth.Blacklist,
	}

	for name, m := range doc.Metrics {
		switch m.Shape {
		case "", string(model.PeriodDuration):
			c.shapes[name] = model.PeriodDuration
		case string(model.PeriodInstant):
			c.shapes[name] = model.PeriodInstant
		default:
			return nil, eris.Errorf("catalog: metric %s: unknown shape %q", name, m.Shape)
		}
		for _, fc := range m.Candidates {
			if fc.QName == "" {
				return nil, eris.Errorf("catalog: metric %s: candidate without qname", name)
			}
			c.candidates[name] = append(c.candidates[name], Candidate{
				Metric:  name,
				Concept: model.QualifyConcept(fc.QName),
				Score:   fc.Score,
				Sectors: fc.Sectors,
				Note:    fc.Note,
			})
		}
	}

	for name, g := range doc.Growth.Metrics {
		rule := GrowthRule{Metric: name, Base: g.Base}
		for _, p := range g.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, eris.Wrapf(err, "catalog: growth %s: bad pattern", name)
			}
			rule.Patterns = append(rule.Patterns, re)
		}
		c.growth[name] = rule
	}

	return c, nil
}

// Merge returns a new catalog with overlay candidates appended after the
// receiver's own. Overlay shapes apply only to metrics the receiver lacks.
func (c *Catalog) Merge(overlay *Catalog) *Catalog {
	out := &Catalog{
		shapes:     make(map[string]model.PeriodType, len(c.shapes)),
		candidates: make(map[string][]Candidate, len(c.candidates)),
		growth:     make(map[string]GrowthRule, len(c.growth)),
		blacklist:  append([]string(nil), c.blacklist...),
	}
	for k, v := range c.shapes {
		out.shapes[k] = v
	}
	for k, v := range c.candidates {
		out.candidates[k] = append([]Candidate(nil), v...)
	}
	for k, v := range c.growth {
		out.growth[k] = v
	}
	if overlay == nil {
		return out
	}
	for k, v := range overlay.shapes {
		if _, ok := out.shapes[k]; !ok {
			out.shapes[k] = v
		}
	}
	for k, v := range overlay.candidates {
		seen := make(map[string]bool, len(out.candidates[k]))
		for _, existing := range out.candidates[k] {
			seen[existing.Concept] = true
		}
		for _, cand := range v {
			if !seen[cand.Concept] {
				out.candidates[k] = append(out.candidates[k], cand)
			}
		}
	}
	for k, v := range overlay.growth {
		g := out.growth[k]
		g.Metric = k
		if g.Base == "" {
			g.Base = v.Base
		}
		g.Patterns = append(append([]*regexp.Regexp(nil), g.Patterns...), v.Patterns...)
		out.growth[k] = g
	}
	for _, b := range overlay.blacklist {
		if !containsFold(out.blacklist, b) {
			out.blacklist = append(out.blacklist, b)
		}
	}
	return out
}

// Candidates returns the ordered candidates for metric.
func (c *Catalog) Candidates(metric string) []Candidate {
	return c.candidates[metric]
}

// Shape returns the period shape of metric, defaulting to duration.
func (c *Catalog) Shape(metric string) model.PeriodType {
	if s, ok := c.shapes[metric]; ok {
		return s
	}
	return model.PeriodDuration
}

// Metrics returns every metric with candidates, sorted.
func (c *Catalog) Metrics() []string {
	out := make([]string, 0, len(c.candidates))
	for k := range c.candidates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Growth returns the mining rule for a growth metric.
func (c *Catalog) Growth(metric string) (GrowthRule, bool) {
	g, ok := c.growth[metric]
	return g, ok
}

// Blacklisted reports whether concept contains a blacklisted term.
func (c *Catalog) Blacklisted(concept string) bool {
	upper := strings.ToUpper(concept)
	for _, b := range c.blacklist {
		if strings.Contains(upper, strings.ToUpper(b)) {
			return true
		}
	}
	return false
}

// MineGrowth returns the concepts in names that read as a directly disclosed
// growth figure for metric, in sorted order.
func (c *Catalog) MineGrowth(metric string, names []string) []string {
	rule, ok := c.growth[metric]
	if !ok {
		return nil
	}
	var out []string
	for _, name := range names {
		if !rule.Match(name) || c.Blacklisted(name) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Match reports whether any pattern matches concept.
func (g GrowthRule) Match(concept string) bool {
	for _, re := range g.Patterns {
		if re.MatchString(concept) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
