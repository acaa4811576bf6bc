// Package recur implements pure recurrence expansion: deciding whether a rule
// is active in a given period and on which calendar date its occurrence falls.
// It performs no I/O and never fails; inactive or out-of-range inputs simply
// expand to nothing.
package recur

import (
	"time"

	"github.com/treiswell/fintrack/internal/ledger"
)

// Expand returns the expected occurrence date of r within period p, or
// ok=false when the rule is not active in that period.
//
// Monthly rules occur in every period from the start date's period through the
// end date's period (when set). The day-of-month comes from the start date and
// is clamped to the last valid day of shorter months: a rule anchored on the
// 31st occurs on Feb 29 in leap years and Feb 28 otherwise. The clamp is a
// deliberate policy, not an error.
//
// Yearly rules occur once per year, only in the period whose month equals the
// start date's month, with the same day clamp.
func Expand(r ledger.Rule, p ledger.Period) (time.Time, bool) {
	if !r.Active {
		return time.Time{}, false
	}
	start := ledger.PeriodOf(r.StartDate)
	if p.Compare(start) < 0 {
		return time.Time{}, false
	}
	if r.EndDate != nil && p.Compare(ledger.PeriodOf(*r.EndDate)) > 0 {
		return time.Time{}, false
	}

	switch r.Recurrence {
	case ledger.RecurrenceMonthly:
		return dateIn(p, r.StartDate.Day()), true
	case ledger.RecurrenceYearly:
		if p.Month != r.StartDate.Month() {
			return time.Time{}, false
		}
		return dateIn(p, r.StartDate.Day()), true
	default:
		return time.Time{}, false
	}
}

// dateIn places day inside p, clamping to the period's last day.
func dateIn(p ledger.Period, day int) time.Time {
	if last := p.Days(); day > last {
		day = last
	}
	return time.Date(p.Year, p.Month, day, 0, 0, 0, 0, time.UTC)
}
