// Package period computes fiscal-year anchor dates and day-distance
// tolerances used by every fact selector.
package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FiscalYearEnd is the month/day on which a filer's fiscal year closes.
type FiscalYearEnd struct {
	Month time.Month
	Day   int
}

// DefaultFiscalYearEnd is used when the filer reports none or a malformed one.
var DefaultFiscalYearEnd = FiscalYearEnd{Month: time.December, Day: 31}

// ParseFiscalYearEnd parses an EDGAR "MMDD" string. Anything that is not
// four digits forming a real calendar day falls back to Dec 31.
func ParseFiscalYearEnd(raw string) FiscalYearEnd {
	raw = strings.TrimSpace(raw)
	if len(raw) != 4 {
		return DefaultFiscalYearEnd
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return DefaultFiscalYearEnd
		}
	}
	mm, _ := strconv.Atoi(raw[:2])
	dd, _ := strconv.Atoi(raw[2:])
	if mm < 1 || mm > 12 || dd < 1 {
		return DefaultFiscalYearEnd
	}
	// 2000 is a leap year so 0229 stays valid here.
	if dd > daysIn(time.Month(mm), 2000) {
		return DefaultFiscalYearEnd
	}
	return FiscalYearEnd{Month: time.Month(mm), Day: dd}
}

// String renders the fiscal year end as MMDD.
func (f FiscalYearEnd) String() string {
	return fmt.Sprintf("%02d%02d", int(f.Month), f.Day)
}

// Date returns the fiscal year end in the given calendar year. A Feb 29
// year end lands on Feb 28 in non-leap years.
func (f FiscalYearEnd) Date(year int) time.Time {
	d := f.Day
	if n := daysIn(f.Month, year); d > n {
		d = n
	}
	return time.Date(year, f.Month, d, 0, 0, 0, 0, time.UTC)
}

// Anchors are the acceptable period-end dates for a fiscal year: the year's
// own fiscal year end and the following one.
type Anchors [2]time.Time

// AnchorsForFY returns the anchors for fy.
func AnchorsForFY(f FiscalYearEnd, fy int) Anchors {
	return Anchors{f.Date(fy), f.Date(fy + 1)}
}

// Distance returns the minimum absolute day distance from d to any anchor.
func (a Anchors) Distance(d time.Time) int {
	best := DaysBetween(d, a[0])
	if x := DaysBetween(d, a[1]); x < best {
		best = x
	}
	return best
}

// Within reports whether d is within tol days of the nearer anchor.
func (a Anchors) Within(d time.Time, tol int) bool {
	return a.Distance(d) <= tol
}

// DaysBetween returns the absolute whole-day distance between two dates.
func DaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := int(ad.Sub(bd).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

// PriorWindow is the relaxed period-end window used when looking up the
// prior fiscal year. Target is the prior fiscal year end.
type PriorWindow struct {
	From   time.Time
	To     time.Time
	Target time.Time
}

// RelaxedPriorWindow covers the prior fiscal year, from the day after the
// fy-2 fiscal year end through the fy-1 fiscal year end, widened by slack
// days on both sides.
func RelaxedPriorWindow(f FiscalYearEnd, fy, slack int) PriorWindow {
	start := f.Date(fy - 2).AddDate(0, 0, 1)
	end := f.Date(fy - 1)
	return PriorWindow{
		From:   start.AddDate(0, 0, -slack),
		To:     end.AddDate(0, 0, slack),
		Target: f.Date(fy - 1),
	}
}

// Contains reports whether d falls inside the window, inclusive.
func (w PriorWindow) Contains(d time.Time) bool {
	return !d.Before(w.From) && !d.After(w.To)
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006"}

// ParseDate parses the date layouts seen in EDGAR payloads.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
