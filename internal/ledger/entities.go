package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/treiswell/fintrack/internal/errs"
)

// Kind separates the two sides of the personal ledger.
type Kind string

const (
	// KindIncome marks money coming in.
	KindIncome Kind = "income"
	// KindExpense marks money going out.
	KindExpense Kind = "expense"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == KindIncome || k == KindExpense }

// Recurrence enumerates how often a rule produces an occurrence.
type Recurrence string

const (
	// RecurrenceMonthly produces one occurrence per calendar month.
	RecurrenceMonthly Recurrence = "monthly"
	// RecurrenceYearly produces one occurrence per year, in the start date's month.
	RecurrenceYearly Recurrence = "yearly"
)

// Valid reports whether r is a known recurrence.
func (r Recurrence) Valid() bool { return r == RecurrenceMonthly || r == RecurrenceYearly }

// Rule is a recurring income/expense definition owned by a user. A rule never
// books anything by itself; it is expanded into occurrences per period and
// materialized into Entry rows exactly once per (rule, period).
type Rule struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Kind        Kind
	Description string
	Amount      money.Amount
	// Category is an optional category code of matching kind; empty means
	// uncategorized.
	Category   string
	Recurrence Recurrence
	// StartDate is the first day the rule can produce an occurrence. Its
	// day-of-month drives monthly expansion; its month drives yearly expansion.
	StartDate time.Time
	// EndDate, when set, bounds expansion to periods up to and including the
	// period containing it.
	EndDate *time.Time
	// Active is false after a soft delete; inactive rules expand to nothing
	// but their historical entries keep referencing them.
	Active    bool
	CreatedAt time.Time
}

// Validate checks the structural invariants of a rule.
func (r Rule) Validate() error {
	if r.UserID == uuid.Nil {
		return errs.ErrInvalid
	}
	if !r.Kind.Valid() || !r.Recurrence.Valid() {
		return errs.ErrInvalid
	}
	if strings.TrimSpace(r.Description) == "" {
		return errs.ErrInvalid
	}
	if minor, _ := r.Amount.MinorUnits(); minor <= 0 {
		return errs.ErrInvalid
	}
	if r.StartDate.IsZero() {
		return errs.ErrInvalid
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return errs.ErrInvalid
	}
	if r.Category != "" && !IsCategoryCode(r.Category) {
		return errs.ErrInvalid
	}
	return nil
}

// Entry is a concrete, dated ledger row. Manual entries have no SourceRuleID;
// rule-derived entries carry the rule that produced them.
type Entry struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Kind        Kind
	Description string
	Amount      money.Amount
	Category    string
	// Date is the concrete calendar date of the transaction.
	Date time.Time
	// SourceRuleID is a soft reference: deleting the rule never cascades here.
	SourceRuleID *uuid.UUID
	CreatedAt    time.Time
}

// Validate checks the structural invariants of an entry.
func (e Entry) Validate() error {
	if e.UserID == uuid.Nil {
		return errs.ErrInvalid
	}
	if !e.Kind.Valid() {
		return errs.ErrInvalid
	}
	if strings.TrimSpace(e.Description) == "" {
		return errs.ErrInvalid
	}
	if minor, _ := e.Amount.MinorUnits(); minor <= 0 {
		return errs.ErrInvalid
	}
	if e.Date.IsZero() {
		return errs.ErrInvalid
	}
	if e.Category != "" && !IsCategoryCode(e.Category) {
		return errs.ErrInvalid
	}
	return nil
}

// Period returns the (month, year) period the entry's date falls into.
func (e Entry) Period() Period { return PeriodOf(e.Date) }

// Occurrence is the expected instance of a rule within one period. It is
// computed fresh on every reconciliation and never persisted.
type Occurrence struct {
	RuleID       uuid.UUID
	Period       Period
	ExpectedDate time.Time
}

// Ref returns the composite identifier a client uses to request
// materialization of a pending occurrence.
func (o Occurrence) Ref() PendingRef { return PendingRef{RuleID: o.RuleID, Period: o.Period} }
