// Package worker implements the background sweeper that books due
// occurrences automatically. Users who never open the app still get their
// rent booked on the right day.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/treiswell/fintrack/internal/ledger"
	"github.com/treiswell/fintrack/internal/recur"
)

// RuleSource lists the rules the sweeper considers.
type RuleSource interface {
	ActiveRules(ctx context.Context) ([]ledger.Rule, error)
}

// Materializer books a single occurrence. The book service satisfies this.
type Materializer interface {
	Materialize(ctx context.Context, userID, ruleID uuid.UUID, p ledger.Period) (ledger.Entry, bool, error)
}

// Sweeper walks all active rules and materializes every occurrence of the
// current period whose expected date has passed. Materialization is
// idempotent, so re-sweeping the same period is harmless.
type Sweeper struct {
	rules RuleSource
	book  Materializer
	log   *slog.Logger
}

// New constructs a sweeper.
func New(rules RuleSource, book Materializer, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{rules: rules, book: book, log: logger}
}

// Sweep books all due occurrences for the period containing now. It returns
// the number of entries created. Per-rule failures are logged and skipped;
// one broken rule must not stall the rest of the sweep.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	p := ledger.PeriodOf(now)
	rules, err := s.rules.ActiveRules(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info("sweep started", "period", p.Key(), "active_rules", len(rules))

	created := 0
	for _, r := range rules {
		date, ok := recur.Expand(r, p)
		if !ok || date.After(now) {
			continue
		}
		_, fresh, err := s.book.Materialize(ctx, r.UserID, r.ID, p)
		if err != nil {
			s.log.Error("sweep materialize failed", "rule_id", r.ID, "period", p.Key(), "err", err)
			continue
		}
		if fresh {
			created++
			s.log.Info("booked due occurrence", "rule_id", r.ID, "period", p.Key(), "date", date.Format(time.DateOnly))
		}
	}

	s.log.Info("sweep complete", "period", p.Key(), "created", created)
	return created, nil
}
