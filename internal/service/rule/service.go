// Package rule implements the recurring-rule service: validation, ownership
// checks, and soft deletes. Edits apply to future occurrences only; entries
// already materialized from a rule are historical facts and stay untouched.
package rule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/treiswell/fintrack/internal/dictionary"
	"github.com/treiswell/fintrack/internal/errs"
	"github.com/treiswell/fintrack/internal/ledger"
)

// Repo defines read operations needed by the service.
type Repo interface {
	ListRules(ctx context.Context, userID uuid.UUID, kind ledger.Kind) ([]ledger.Rule, error)
	GetRule(ctx context.Context, userID, ruleID uuid.UUID) (ledger.Rule, error)
}

// Writer defines write operations needed by the service.
type Writer interface {
	CreateRule(ctx context.Context, r ledger.Rule) (ledger.Rule, error)
	UpdateRule(ctx context.Context, r ledger.Rule) (ledger.Rule, error)
}

// Service exposes validation and CRUD for recurring rules.
type Service interface {
	ValidateRule(r ledger.Rule) error
	Create(ctx context.Context, r ledger.Rule) (ledger.Rule, error)
	List(ctx context.Context, userID uuid.UUID, kind ledger.Kind) ([]ledger.Rule, error)
	Get(ctx context.Context, userID, ruleID uuid.UUID) (ledger.Rule, error)
	Update(ctx context.Context, r ledger.Rule) (ledger.Rule, error)
	Deactivate(ctx context.Context, userID, ruleID uuid.UUID) error
}

type service struct {
	repo   Repo
	writer Writer
}

// New constructs the rule service.
func New(repo Repo, writer Writer) Service { return &service{repo: repo, writer: writer} }

func (s *service) ValidateRule(r ledger.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if !dictionary.ValidFor(r.Kind, r.Category) {
		return fmt.Errorf("unknown %s category %q: %w", r.Kind, r.Category, errs.ErrInvalid)
	}
	return nil
}

func (s *service) Create(ctx context.Context, r ledger.Rule) (ledger.Rule, error) {
	r.ID = uuid.New()
	r.Active = true
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if err := s.ValidateRule(r); err != nil {
		return ledger.Rule{}, err
	}
	created, err := s.writer.CreateRule(ctx, r)
	if err != nil {
		return ledger.Rule{}, fmt.Errorf("create rule: %w", err)
	}
	return created, nil
}

// List returns the user's active rules of a kind. Unknown users simply have
// no rules; that is not an error.
func (s *service) List(ctx context.Context, userID uuid.UUID, kind ledger.Kind) ([]ledger.Rule, error) {
	if userID == uuid.Nil || !kind.Valid() {
		return nil, errs.ErrInvalid
	}
	all, err := s.repo.ListRules(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Rule, 0, len(all))
	for _, r := range all {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, userID, ruleID uuid.UUID) (ledger.Rule, error) {
	if userID == uuid.Nil || ruleID == uuid.Nil {
		return ledger.Rule{}, errs.ErrInvalid
	}
	return s.repo.GetRule(ctx, userID, ruleID)
}

// Update replaces the mutable fields of a rule. Kind is immutable; a rule
// that has produced expense history cannot silently become an income rule.
func (s *service) Update(ctx context.Context, r ledger.Rule) (ledger.Rule, error) {
	if r.UserID == uuid.Nil || r.ID == uuid.Nil {
		return ledger.Rule{}, errs.ErrInvalid
	}
	prev, err := s.repo.GetRule(ctx, r.UserID, r.ID)
	if err != nil {
		return ledger.Rule{}, err
	}
	if r.Kind != prev.Kind {
		return ledger.Rule{}, errs.ErrInvalid
	}
	r.CreatedAt = prev.CreatedAt
	r.Active = prev.Active
	if err := s.ValidateRule(r); err != nil {
		return ledger.Rule{}, err
	}
	return s.writer.UpdateRule(ctx, r)
}

// Deactivate soft-deletes a rule: future expansion stops, historical entries
// keep their soft reference to it.
func (s *service) Deactivate(ctx context.Context, userID, ruleID uuid.UUID) error {
	if userID == uuid.Nil || ruleID == uuid.Nil {
		return errs.ErrInvalid
	}
	r, err := s.repo.GetRule(ctx, userID, ruleID)
	if err != nil {
		return err
	}
	if !r.Active {
		return nil
	}
	r.Active = false
	_, err = s.writer.UpdateRule(ctx, r)
	return err
}
