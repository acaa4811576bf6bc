// Package book implements the ledger-facing services: the period reconciler
// that merges concrete entries with expected occurrences, the idempotent
// materializer, and the per-rule history reader.
package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/treiswell/fintrack/internal/dictionary"
	"github.com/treiswell/fintrack/internal/errs"
	"github.com/treiswell/fintrack/internal/ledger"
	"github.com/treiswell/fintrack/internal/recur"
)

var materializations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fintrack",
		Name:      "materializations_total",
		Help:      "Total materialize calls by outcome",
	},
	[]string{"result"},
)

// Repo defines read operations needed by the service.
type Repo interface {
	ListRules(ctx context.Context, userID uuid.UUID, kind ledger.Kind) ([]ledger.Rule, error)
	GetRule(ctx context.Context, userID, ruleID uuid.UUID) (ledger.Rule, error)
	GetEntry(ctx context.Context, userID, entryID uuid.UUID) (ledger.Entry, error)
	EntriesByPeriod(ctx context.Context, userID uuid.UUID, kind ledger.Kind, p ledger.Period) ([]ledger.Entry, error)
	EntriesByRule(ctx context.Context, userID, ruleID uuid.UUID) ([]ledger.Entry, error)
}

// Writer defines write operations needed by the service.
type Writer interface {
	CreateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	UpdateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	DeleteEntry(ctx context.Context, userID, entryID uuid.UUID) error
	// MaterializeEntry must be atomic per (user, rule, period): exactly one of
	// any set of concurrent calls inserts; the rest get the existing row back.
	MaterializeEntry(ctx context.Context, e ledger.Entry, p ledger.Period) (ledger.Entry, bool, error)
}

// EventPublisher receives a notification after an entry is materialized.
// A nil publisher disables notifications.
type EventPublisher interface {
	PublishEntryMaterialized(ctx context.Context, e ledger.Entry) error
}

// Item is one element of a reconciled period view: either a concrete ledger
// entry or a pending occurrence, never both. Rule is set alongside the
// occurrence so callers can render the expected amount and description.
type Item struct {
	Entry      *ledger.Entry
	Occurrence *ledger.Occurrence
	Rule       *ledger.Rule
}

// Pending reports whether the item is a pending placeholder.
func (it Item) Pending() bool { return it.Occurrence != nil }

// Date returns the entry date or the occurrence's expected date.
func (it Item) Date() time.Time {
	if it.Entry != nil {
		return it.Entry.Date
	}
	return it.Occurrence.ExpectedDate
}

// Service exposes the reconciler, materializer, history reader, and manual
// entry CRUD.
type Service interface {
	ListPeriod(ctx context.Context, userID uuid.UUID, kind ledger.Kind, p ledger.Period) ([]Item, error)
	Materialize(ctx context.Context, userID, ruleID uuid.UUID, p ledger.Period) (ledger.Entry, bool, error)
	History(ctx context.Context, userID, ruleID uuid.UUID) ([]ledger.Entry, error)
	CreateManual(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	UpdateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	DeleteEntry(ctx context.Context, userID, entryID uuid.UUID) error
}

const defaultStorageTimeout = 5 * time.Second

type service struct {
	repo    Repo
	writer  Writer
	events  EventPublisher
	log     *slog.Logger
	timeout time.Duration
}

// New constructs the book service. events may be nil; timeout bounds every
// storage call and defaults to 5s when non-positive.
func New(repo Repo, writer Writer, events EventPublisher, logger *slog.Logger, timeout time.Duration) Service {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultStorageTimeout
	}
	return &service{repo: repo, writer: writer, events: events, log: logger, timeout: timeout}
}

// ListPeriod builds the reconciled view for one (user, kind, period):
// every concrete entry of the period, plus one pending placeholder per active
// rule that expands into the period but has no materialized entry yet.
// Ordering is date descending; ties keep insertion order, with pending items
// after concrete ones on the same date.
func (s *service) ListPeriod(ctx context.Context, userID uuid.UUID, kind ledger.Kind, p ledger.Period) ([]Item, error) {
	if userID == uuid.Nil || !kind.Valid() {
		return nil, errs.ErrInvalid
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rules, err := s.repo.ListRules(ctx, userID, kind)
	if err != nil {
		return nil, storageErr("list rules", err)
	}
	entries, err := s.repo.EntriesByPeriod(ctx, userID, kind, p)
	if err != nil {
		return nil, storageErr("list entries", err)
	}

	// Rule-derived entries present in the period, keyed by source rule.
	byRule := make(map[uuid.UUID]struct{})
	for _, e := range entries {
		if e.SourceRuleID != nil {
			byRule[*e.SourceRuleID] = struct{}{}
		}
	}

	items := make([]Item, 0, len(entries)+len(rules))
	for i := range entries {
		items = append(items, Item{Entry: &entries[i]})
	}
	for i := range rules {
		r := rules[i]
		if !r.Active {
			continue
		}
		date, ok := recur.Expand(r, p)
		if !ok {
			continue
		}
		if _, done := byRule[r.ID]; done {
			continue
		}
		items = append(items, Item{
			Occurrence: &ledger.Occurrence{
				RuleID:       r.ID,
				Period:       p,
				ExpectedDate: date,
			},
			Rule: &rules[i],
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Date().After(items[j].Date()) })
	return items, nil
}

// Materialize converts one pending occurrence into a permanent entry, at most
// once per (rule, period). The returned bool is true when this call created
// the entry and false when it was already materialized; the second case is a
// success, not an error.
func (s *service) Materialize(ctx context.Context, userID, ruleID uuid.UUID, p ledger.Period) (ledger.Entry, bool, error) {
	if userID == uuid.Nil || ruleID == uuid.Nil {
		return ledger.Entry{}, false, errs.ErrInvalid
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r, err := s.repo.GetRule(ctx, userID, ruleID)
	if err != nil {
		return ledger.Entry{}, false, storageErr("load rule", err)
	}
	// Re-derive the date; a stale or forged pending ref fails here.
	date, ok := recur.Expand(r, p)
	if !ok {
		return ledger.Entry{}, false, errs.ErrNotActive
	}

	// Snapshot the rule as it stands now; later rule edits touch future
	// periods only.
	srcID := r.ID
	entry := ledger.Entry{
		ID:           uuid.New(),
		UserID:       userID,
		Kind:         r.Kind,
		Description:  r.Description,
		Amount:       r.Amount,
		Category:     r.Category,
		Date:         date,
		SourceRuleID: &srcID,
		CreatedAt:    time.Now().UTC(),
	}
	saved, created, err := s.writer.MaterializeEntry(ctx, entry, p)
	if err != nil {
		return ledger.Entry{}, false, storageErr("materialize entry", err)
	}
	if created {
		materializations.WithLabelValues("created").Inc()
		s.publish(ctx, saved)
	} else {
		materializations.WithLabelValues("existing").Inc()
	}
	return saved, created, nil
}

// History lists every entry materialized from the rule, newest first. The
// rule must exist and belong to the caller; a rule that never produced an
// entry yields an empty list.
func (s *service) History(ctx context.Context, userID, ruleID uuid.UUID) ([]ledger.Entry, error) {
	if userID == uuid.Nil || ruleID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.repo.GetRule(ctx, userID, ruleID); err != nil {
		return nil, storageErr("load rule", err)
	}
	out, err := s.repo.EntriesByRule(ctx, userID, ruleID)
	if err != nil {
		return nil, storageErr("list history", err)
	}
	return out, nil
}

// CreateManual books a one-off entry with no source rule.
func (s *service) CreateManual(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	e.ID = uuid.New()
	e.SourceRuleID = nil
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := e.Validate(); err != nil {
		return ledger.Entry{}, err
	}
	if !dictionary.ValidFor(e.Kind, e.Category) {
		return ledger.Entry{}, fmt.Errorf("unknown %s category %q: %w", e.Kind, e.Category, errs.ErrInvalid)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	saved, err := s.writer.CreateEntry(ctx, e)
	if err != nil {
		return ledger.Entry{}, storageErr("create entry", err)
	}
	return saved, nil
}

// UpdateEntry edits an entry's mutable fields. Kind, source rule, and the
// creation stamp are immutable; an entry keeps its origin even when the user
// rewrites everything else about it.
func (s *service) UpdateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	if e.UserID == uuid.Nil || e.ID == uuid.Nil {
		return ledger.Entry{}, errs.ErrInvalid
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	prev, err := s.repo.GetEntry(ctx, e.UserID, e.ID)
	if err != nil {
		return ledger.Entry{}, storageErr("load entry", err)
	}
	if e.Kind != prev.Kind {
		return ledger.Entry{}, errs.ErrInvalid
	}
	e.SourceRuleID = prev.SourceRuleID
	e.CreatedAt = prev.CreatedAt
	if err := e.Validate(); err != nil {
		return ledger.Entry{}, err
	}
	if !dictionary.ValidFor(e.Kind, e.Category) {
		return ledger.Entry{}, fmt.Errorf("unknown %s category %q: %w", e.Kind, e.Category, errs.ErrInvalid)
	}
	saved, err := s.writer.UpdateEntry(ctx, e)
	if err != nil {
		return ledger.Entry{}, storageErr("update entry", err)
	}
	return saved, nil
}

// DeleteEntry removes an entry owned by the user.
func (s *service) DeleteEntry(ctx context.Context, userID, entryID uuid.UUID) error {
	if userID == uuid.Nil || entryID == uuid.Nil {
		return errs.ErrInvalid
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.writer.DeleteEntry(ctx, userID, entryID); err != nil {
		return storageErr("delete entry", err)
	}
	return nil
}

// publish notifies listeners of a fresh materialization. Failures are logged,
// not propagated: the entry is already committed.
func (s *service) publish(ctx context.Context, e ledger.Entry) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEntryMaterialized(ctx, e); err != nil {
		s.log.Warn("publish materialized event failed", "entry_id", e.ID, "err", err)
	}
}

// storageErr classifies timeouts and cancellations as retryable unavailability
// while passing sentinel errors (not found, invalid) through unchanged.
func storageErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrNotFound),
		errors.Is(err, errs.ErrInvalid),
		errors.Is(err, errs.ErrNotActive),
		errors.Is(err, errs.ErrConflict),
		errors.Is(err, errs.ErrUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, errs.ErrUnavailable)
	default:
		return fmt.Errorf("%s: %v: %w", op, err, errs.ErrUnavailable)
	}
}
