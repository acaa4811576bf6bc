package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/treiswell/fintrack/internal/ledger"
)

// Rules

type postRuleRequest struct {
	UserID      uuid.UUID         `json:"user_id"`
	Kind        ledger.Kind       `json:"kind"`
	Description string            `json:"description"`
	AmountMinor int64             `json:"amount_minor"`
	Currency    string            `json:"currency"`
	Category    string            `json:"category"`
	Recurrence  ledger.Recurrence `json:"recurrence"`
	StartDate   string            `json:"start_date"`
	EndDate     *string           `json:"end_date"`
}

type ruleResponse struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	Kind        ledger.Kind       `json:"kind"`
	Description string            `json:"description"`
	AmountMinor int64             `json:"amount_minor"`
	Currency    string            `json:"currency"`
	Category    string            `json:"category"`
	Recurrence  ledger.Recurrence `json:"recurrence"`
	StartDate   string            `json:"start_date"`
	EndDate     *string           `json:"end_date,omitempty"`
	Active      bool              `json:"active"`
	CreatedAt   time.Time         `json:"created_at"`
}

// listRulesQuery holds validated query params for GET /v1/rules.
type listRulesQuery struct {
	UserID uuid.UUID
	Kind   ledger.Kind
}

// Entries

type postEntryRequest struct {
	UserID      uuid.UUID   `json:"user_id"`
	Kind        ledger.Kind `json:"kind"`
	Description string      `json:"description"`
	AmountMinor int64       `json:"amount_minor"`
	Currency    string      `json:"currency"`
	Category    string      `json:"category"`
	Date        string      `json:"date"`
}

type materializeRequest struct {
	UserID     uuid.UUID `json:"user_id"`
	PendingRef string    `json:"pending_ref"`
}

// materializeInput is the parsed form stored in the request context.
type materializeInput struct {
	UserID uuid.UUID
	Ref    ledger.PendingRef
}

type entryResponse struct {
	ID           uuid.UUID   `json:"id"`
	UserID       uuid.UUID   `json:"user_id"`
	Kind         ledger.Kind `json:"kind"`
	Description  string      `json:"description"`
	AmountMinor  int64       `json:"amount_minor"`
	Currency     string      `json:"currency"`
	Category     string      `json:"category"`
	Date         string      `json:"date"`
	SourceRuleID *uuid.UUID  `json:"source_rule_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// pendingResponse describes an occurrence that has not been booked yet. Its
// ref is the handle POST /v1/entries/materialize accepts.
type pendingResponse struct {
	Ref          string      `json:"ref"`
	RuleID       uuid.UUID   `json:"rule_id"`
	Period       string      `json:"period"`
	ExpectedDate string      `json:"expected_date"`
	Kind         ledger.Kind `json:"kind"`
	Description  string      `json:"description"`
	AmountMinor  int64       `json:"amount_minor"`
	Currency     string      `json:"currency"`
	Category     string      `json:"category"`
}

// periodItemResponse is one row of the reconciled period view.
type periodItemResponse struct {
	Status  string           `json:"status"` // booked | pending
	Entry   *entryResponse   `json:"entry,omitempty"`
	Pending *pendingResponse `json:"pending,omitempty"`
}

// listEntriesQuery holds validated query params for GET /v1/entries.
type listEntriesQuery struct {
	UserID uuid.UUID
	Kind   ledger.Kind
	Period ledger.Period
}

func toRuleResponse(r ledger.Rule) ruleResponse {
	minor, _ := r.Amount.MinorUnits()
	resp := ruleResponse{
		ID:          r.ID,
		UserID:      r.UserID,
		Kind:        r.Kind,
		Description: r.Description,
		AmountMinor: minor,
		Currency:    r.Amount.Curr().Code(),
		Category:    r.Category,
		Recurrence:  r.Recurrence,
		StartDate:   r.StartDate.Format(time.DateOnly),
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
	if r.EndDate != nil {
		s := r.EndDate.Format(time.DateOnly)
		resp.EndDate = &s
	}
	return resp
}

func toEntryResponse(e ledger.Entry) entryResponse {
	minor, _ := e.Amount.MinorUnits()
	return entryResponse{
		ID:           e.ID,
		UserID:       e.UserID,
		Kind:         e.Kind,
		Description:  e.Description,
		AmountMinor:  minor,
		Currency:     e.Amount.Curr().Code(),
		Category:     e.Category,
		Date:         e.Date.Format(time.DateOnly),
		SourceRuleID: e.SourceRuleID,
		CreatedAt:    e.CreatedAt,
	}
}

func toPendingResponse(o ledger.Occurrence, r ledger.Rule) pendingResponse {
	minor, _ := r.Amount.MinorUnits()
	return pendingResponse{
		Ref:          o.Ref().String(),
		RuleID:       o.RuleID,
		Period:       o.Period.Key(),
		ExpectedDate: o.ExpectedDate.Format(time.DateOnly),
		Kind:         r.Kind,
		Description:  r.Description,
		AmountMinor:  minor,
		Currency:     r.Amount.Curr().Code(),
		Category:     r.Category,
	}
}
