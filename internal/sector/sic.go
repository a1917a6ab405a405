// Package sector maps SEC SIC codes to broad sectors and industries.
package sector

import (
	"strconv"
	"strings"
)

// Sector names.
const (
	Energy                = "Energy"
	Materials             = "Materials"
	Industrials           = "Industrials"
	Utilities             = "Utilities"
	ConsumerStaples       = "Consumer Staples"
	ConsumerDiscretionary = "Consumer Discretionary"
	HealthCare            = "Health Care"
	Financials            = "Financials"
	InformationTechnology = "Information Technology"
	CommunicationServices = "Communication Services"
	RealEstate            = "Real Estate"
	Other                 = "Other"
	Unknown               = "Unknown"
)

type sicRange struct {
	lo, hi int
}

type sectorRule struct {
	sector string
	ranges []sicRange
}

// Rules are checked in order; the first match wins, so earlier sectors
// shadow overlapping ranges further down (e.g. 2830-2839 is Materials).
var rules = []sectorRule{
	{Energy, []sicRange{{1300, 1399}, {2900, 2999}}},
	{Materials, []sicRange{{1000, 1299}, {1400, 1499}, {2800, 2899}}},
	{Industrials, []sicRange{{1500, 1799}, {3300, 3999}}},
	{Utilities, []sicRange{{4900, 4999}}},
	{ConsumerStaples, []sicRange{{2000, 2099}}},
	{ConsumerDiscretionary, []sicRange{{2300, 2799}, {3100, 3299}}},
	{HealthCare, []sicRange{{8000, 8099}, {2830, 2839}, {3840, 3859}}},
	{Financials, []sicRange{{6000, 6999}}},
	{InformationTechnology, []sicRange{{3570, 3699}, {7370, 7399}}},
	{CommunicationServices, []sicRange{{4800, 4899}, {2700, 2799}}},
	{RealEstate, []sicRange{{6500, 6799}}},
}

// NormalizeSIC strips whitespace and zero-pads a SIC code to 4 digits.
// Non-numeric input yields "".
func NormalizeSIC(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if _, err := strconv.Atoi(code); err != nil {
		return ""
	}
	for len(code) < 4 {
		code = "0" + code
	}
	return code
}

// FromSIC returns the sector for a SIC code. Missing or unparseable codes
// are Unknown; codes outside every range are Other.
func FromSIC(sic string) string {
	norm := NormalizeSIC(sic)
	if norm == "" {
		return Unknown
	}
	n, _ := strconv.Atoi(norm)
	for _, r := range rules {
		for _, rg := range r.ranges {
			if n >= rg.lo && n <= rg.hi {
				return r.sector
			}
		}
	}
	return Other
}

// Classify returns the sector and industry for a filer. The industry is the
// SIC description, or the sector when no description is available.
func Classify(sic, description string) (string, string) {
	s := FromSIC(sic)
	industry := strings.TrimSpace(description)
	if industry == "" {
		industry = s
	}
	return s, industry
}
