package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/treiswell/fintrack/internal/errs"
)

// Period is a (month, year) pair, the unit of recurrence granularity.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod validates and builds a period.
func NewPeriod(year, month int) (Period, error) {
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		return Period{}, errs.ErrInvalid
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// ParsePeriodKey decodes the canonical "YYYY-MM" form. Parsing is strict:
// both components must be zero-padded digits and in range.
func ParsePeriodKey(s string) (Period, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return Period{}, errs.ErrInvalid
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, errs.ErrInvalid
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, errs.ErrInvalid
	}
	return NewPeriod(year, month)
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Key returns the canonical "YYYY-MM" form used as the uniqueness component of
// the (rule, period) materialization constraint.
func (p Period) Key() string { return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)) }

// Compare orders periods chronologically: -1, 0, or +1.
func (p Period) Compare(other Period) int {
	switch {
	case p.Year != other.Year:
		if p.Year < other.Year {
			return -1
		}
		return 1
	case p.Month != other.Month:
		if p.Month < other.Month {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

// Start returns midnight UTC on the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns midnight UTC on the first day of the following period; the
// period spans [Start, End).
func (p Period) End() time.Time { return p.Start().AddDate(0, 1, 0) }

// Days returns the number of calendar days in the period.
func (p Period) Days() int {
	// day 0 of the next month is the last day of this one
	return time.Date(p.Year, p.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (p Period) String() string { return p.Key() }
