package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/treiswell/fintrack/internal/ledger"
)

// postRule handles POST /v1/rules.
func (s *Server) postRule(w http.ResponseWriter, r *http.Request) {
	v := r.Context().Value(ctxKeyPostRule)
	rule, ok := v.(ledger.Rule)
	if !ok {
		toJSON(w, http.StatusInternalServerError, errorResponse{Error: "validated request missing"})
		return
	}
	saved, err := s.ruleSvc.Create(r.Context(), rule)
	if err != nil {
		svcError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toRuleResponse(saved))
}

// listRules handles GET /v1/rules.
func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	v := r.Context().Value(ctxKeyListRules)
	q, ok := v.(listRulesQuery)
	if !ok {
		toJSON(w, http.StatusInternalServerError, errorResponse{Error: "validated query missing"})
		return
	}
	rules, err := s.ruleSvc.List(r.Context(), q.UserID, q.Kind)
	if err != nil {
		svcError(w, err)
		return
	}
	out := make([]ruleResponse, 0, len(rules))
	for _, rl := range rules {
		out = append(out, toRuleResponse(rl))
	}
	toJSON(w, http.StatusOK, out)
}

// getRule handles GET /v1/rules/{id}.
func (s *Server) getRule(w http.ResponseWriter, r *http.Request) {
	ruleID, userID, ok := ruleRequestIDs(w, r)
	if !ok {
		return
	}
	rl, err := s.ruleSvc.Get(r.Context(), userID, ruleID)
	if err != nil {
		svcError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toRuleResponse(rl))
}

// updateRule handles PATCH /v1/rules/{id}. Kind is immutable; absent fields
// keep their current value.
func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, userID, ok := ruleRequestIDs(w, r)
	if !ok {
		return
	}
	var payload struct {
		Description *string            `json:"description"`
		AmountMinor *int64             `json:"amount_minor"`
		Currency    *string            `json:"currency"`
		Category    *string            `json:"category"`
		Recurrence  *ledger.Recurrence `json:"recurrence"`
		StartDate   *string            `json:"start_date"`
		EndDate     *string            `json:"end_date"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	rl, err := s.ruleSvc.Get(r.Context(), userID, ruleID)
	if err != nil {
		svcError(w, err)
		return
	}
	if payload.Description != nil {
		rl.Description = *payload.Description
	}
	if payload.AmountMinor != nil || payload.Currency != nil {
		minor, _ := rl.Amount.MinorUnits()
		curr := rl.Amount.Curr().Code()
		if payload.AmountMinor != nil {
			minor = *payload.AmountMinor
		}
		if payload.Currency != nil {
			curr = *payload.Currency
		}
		amt, err := money.NewAmountFromMinorUnits(curr, minor)
		if err != nil {
			unprocessable(w, "invalid amount", "validation_error")
			return
		}
		rl.Amount = amt
	}
	if payload.Category != nil {
		rl.Category = *payload.Category
	}
	if payload.Recurrence != nil {
		rl.Recurrence = *payload.Recurrence
	}
	if payload.StartDate != nil {
		start, err := time.Parse(time.DateOnly, *payload.StartDate)
		if err != nil {
			unprocessable(w, "start_date must be YYYY-MM-DD", "validation_error")
			return
		}
		rl.StartDate = start
	}
	if payload.EndDate != nil {
		if *payload.EndDate == "" {
			rl.EndDate = nil
		} else {
			end, err := time.Parse(time.DateOnly, *payload.EndDate)
			if err != nil {
				unprocessable(w, "end_date must be YYYY-MM-DD", "validation_error")
				return
			}
			rl.EndDate = &end
		}
	}
	saved, err := s.ruleSvc.Update(r.Context(), rl)
	if err != nil {
		svcError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toRuleResponse(saved))
}

// deactivateRule handles DELETE /v1/rules/{id} by soft-deleting the rule.
// Entries already materialized from it stay in the ledger.
func (s *Server) deactivateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, userID, ok := ruleRequestIDs(w, r)
	if !ok {
		return
	}
	if err := s.ruleSvc.Deactivate(r.Context(), userID, ruleID); err != nil {
		svcError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ruleHistory handles GET /v1/rules/{id}/history.
func (s *Server) ruleHistory(w http.ResponseWriter, r *http.Request) {
	ruleID, userID, ok := ruleRequestIDs(w, r)
	if !ok {
		return
	}
	entries, err := s.bookSvc.History(r.Context(), userID, ruleID)
	if err != nil {
		svcError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	toJSON(w, http.StatusOK, out)
}

// ruleRequestIDs parses the rule id path param and user_id query param.
func ruleRequestIDs(w http.ResponseWriter, r *http.Request) (ruleID, userID uuid.UUID, ok bool) {
	ruleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid rule id")
		return uuid.Nil, uuid.Nil, false
	}
	userID, ok = queryUserID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return ruleID, userID, true
}
