package memory

// Package memory provides an in-memory implementation of the rule and ledger
// stores used for development and tests. It mirrors the behavior the postgres
// store gets from its schema, including the at-most-once materialization
// constraint per (user, rule, period).

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/treiswell/fintrack/internal/errs"
	"github.com/treiswell/fintrack/internal/ledger"
)

// matKey is the uniqueness key of a rule-derived entry.
type matKey struct {
	UserID    uuid.UUID
	RuleID    uuid.UUID
	PeriodKey string
}

// Store is an in-memory rule + ledger store guarded by an RWMutex. Writes and
// the materialize check-then-insert run under the write lock, which gives the
// same atomicity the unique index gives the postgres store.
type Store struct {
	mu      sync.RWMutex
	rules   map[uuid.UUID]ledger.Rule
	entries map[uuid.UUID]ledger.Entry
	// Per-user insertion order of entry IDs; ties on date resolve to it.
	entryOrder map[uuid.UUID][]uuid.UUID
	// Materialized (user, rule, period) -> entry ID.
	materialized map[matKey]uuid.UUID
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		rules:        make(map[uuid.UUID]ledger.Rule),
		entries:      make(map[uuid.UUID]ledger.Entry),
		entryOrder:   make(map[uuid.UUID][]uuid.UUID),
		materialized: make(map[matKey]uuid.UUID),
	}
}

// --- Rule reads ---

// ListRules returns all rules of a kind for a user, active and inactive,
// ordered by creation time.
func (s *Store) ListRules(_ context.Context, userID uuid.UUID, kind ledger.Kind) ([]ledger.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Rule, 0)
	for _, r := range s.rules {
		if r.UserID == userID && r.Kind == kind {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// GetRule returns a user's rule by ID.
func (s *Store) GetRule(_ context.Context, userID, ruleID uuid.UUID) (ledger.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[ruleID]
	if !ok || r.UserID != userID {
		return ledger.Rule{}, errs.ErrNotFound
	}
	return r, nil
}

// ActiveRules returns every active rule across all users, ordered by creation
// time. The sweeper walks this set.
func (s *Store) ActiveRules(_ context.Context) ([]ledger.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Rule, 0)
	for _, r := range s.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// --- Rule writes ---

// CreateRule persists a new rule.
func (s *Store) CreateRule(_ context.Context, r ledger.Rule) (ledger.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = r
	return r, nil
}

// UpdateRule persists changes to a rule owned by the user.
func (s *Store) UpdateRule(_ context.Context, r ledger.Rule) (ledger.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.rules[r.ID]
	if !ok || prev.UserID != r.UserID {
		return ledger.Rule{}, errs.ErrNotFound
	}
	s.rules[r.ID] = r
	return r, nil
}

// --- Entry reads ---

// GetEntry returns a user's entry by ID.
func (s *Store) GetEntry(_ context.Context, userID, entryID uuid.UUID) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryID]
	if !ok || e.UserID != userID {
		return ledger.Entry{}, errs.ErrNotFound
	}
	return e, nil
}

// EntriesByPeriod returns a user's entries of a kind dated inside the period,
// ordered by date descending with ties in insertion order.
func (s *Store) EntriesByPeriod(_ context.Context, userID uuid.UUID, kind ledger.Kind, p ledger.Period) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Entry, 0)
	for _, id := range s.entryOrder[userID] {
		e, ok := s.entries[id]
		if !ok || e.Kind != kind || !p.Contains(e.Date) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// EntriesByRule returns all entries materialized from a rule, any period,
// ordered by date descending.
func (s *Store) EntriesByRule(_ context.Context, userID, ruleID uuid.UUID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Entry, 0)
	for _, id := range s.entryOrder[userID] {
		e, ok := s.entries[id]
		if !ok || e.SourceRuleID == nil || *e.SourceRuleID != ruleID {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// --- Entry writes ---

// CreateEntry persists a manual (one-off) entry.
func (s *Store) CreateEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(e)
	return e, nil
}

// UpdateEntry persists changes to an entry owned by the user. The materialized
// slot follows the entry's date: moving a rule-derived entry into another
// period frees the old slot and claims the new one, and fails with ErrConflict
// when the target period is already materialized for the same rule.
func (s *Store) UpdateEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.entries[e.ID]
	if !ok || prev.UserID != e.UserID {
		return ledger.Entry{}, errs.ErrNotFound
	}
	if e.SourceRuleID != nil {
		oldKey := matKey{UserID: e.UserID, RuleID: *e.SourceRuleID, PeriodKey: ledger.PeriodOf(prev.Date).Key()}
		newKey := matKey{UserID: e.UserID, RuleID: *e.SourceRuleID, PeriodKey: ledger.PeriodOf(e.Date).Key()}
		if newKey != oldKey {
			if id, taken := s.materialized[newKey]; taken && id != e.ID {
				return ledger.Entry{}, errs.ErrConflict
			}
			delete(s.materialized, oldKey)
			s.materialized[newKey] = e.ID
		}
	}
	s.entries[e.ID] = e
	return e, nil
}

// DeleteEntry removes an entry. A deleted rule-derived entry frees its
// (rule, period) slot so the occurrence shows as pending again.
func (s *Store) DeleteEntry(_ context.Context, userID, entryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok || e.UserID != userID {
		return errs.ErrNotFound
	}
	delete(s.entries, entryID)
	if e.SourceRuleID != nil {
		delete(s.materialized, matKey{UserID: userID, RuleID: *e.SourceRuleID, PeriodKey: ledger.PeriodOf(e.Date).Key()})
	}
	order := s.entryOrder[userID]
	for i, id := range order {
		if id == entryID {
			s.entryOrder[userID] = append(order[:i], order[i+1:]...)
			break
		}
	}
	return nil
}

// MaterializeEntry inserts a rule-derived entry unless one already exists for
// the same (user, rule, period). It returns the surviving entry and whether
// this call created it. The check and insert happen under one lock, so two
// concurrent calls for the same pair cannot both insert.
func (s *Store) MaterializeEntry(_ context.Context, e ledger.Entry, p ledger.Period) (ledger.Entry, bool, error) {
	if e.SourceRuleID == nil {
		return ledger.Entry{}, false, errs.ErrInvalid
	}
	key := matKey{UserID: e.UserID, RuleID: *e.SourceRuleID, PeriodKey: p.Key()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.materialized[key]; ok {
		if existing, ok := s.entries[id]; ok {
			return existing, false, nil
		}
	}
	s.insertLocked(e)
	s.materialized[key] = e.ID
	return e, true, nil
}

// insertLocked stores e and appends it to the user's insertion order.
// Caller must hold the write lock.
func (s *Store) insertLocked(e ledger.Entry) {
	s.entries[e.ID] = e
	s.entryOrder[e.UserID] = append(s.entryOrder[e.UserID], e.ID)
}
