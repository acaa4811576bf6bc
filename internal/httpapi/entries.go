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

// listEntries handles GET /v1/entries: the reconciled period view of booked
// entries and pending occurrences.
func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	v := r.Context().Value(ctxKeyListEntries)
	q, ok := v.(listEntriesQuery)
	if !ok {
		toJSON(w, http.StatusInternalServerError, errorResponse{Error: "validated query missing"})
		return
	}
	items, err := s.bookSvc.ListPeriod(r.Context(), q.UserID, q.Kind, q.Period)
	if err != nil {
		svcError(w, err)
		return
	}
	out := make([]periodItemResponse, 0, len(items))
	for _, it := range items {
		if it.Pending() {
			p := toPendingResponse(*it.Occurrence, *it.Rule)
			out = append(out, periodItemResponse{Status: "pending", Pending: &p})
			continue
		}
		e := toEntryResponse(*it.Entry)
		out = append(out, periodItemResponse{Status: "booked", Entry: &e})
	}
	toJSON(w, http.StatusOK, out)
}

// postEntry handles POST /v1/entries (manual one-off entries).
func (s *Server) postEntry(w http.ResponseWriter, r *http.Request) {
	v := r.Context().Value(ctxKeyPostEntry)
	entry, ok := v.(ledger.Entry)
	if !ok {
		toJSON(w, http.StatusInternalServerError, errorResponse{Error: "validated request missing"})
		return
	}
	saved, err := s.bookSvc.CreateManual(r.Context(), entry)
	if err != nil {
		svcError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toEntryResponse(saved))
}

// materializeEntry handles POST /v1/entries/materialize. A fresh
// materialization returns 201; repeating the call for the same ref returns
// the existing entry with 200.
func (s *Server) materializeEntry(w http.ResponseWriter, r *http.Request) {
	v := r.Context().Value(ctxKeyMaterialize)
	in, ok := v.(materializeInput)
	if !ok {
		toJSON(w, http.StatusInternalServerError, errorResponse{Error: "validated request missing"})
		return
	}
	saved, created, err := s.bookSvc.Materialize(r.Context(), in.UserID, in.Ref.RuleID, in.Ref.Period)
	if err != nil {
		svcError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	toJSON(w, status, toEntryResponse(saved))
}

// updateEntry handles PATCH /v1/entries/{id}. Kind and the source rule link
// are immutable; absent fields keep their current value.
func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	userID, ok := queryUserID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Description *string `json:"description"`
		AmountMinor *int64  `json:"amount_minor"`
		Currency    *string `json:"currency"`
		Category    *string `json:"category"`
		Date        *string `json:"date"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	e, err := s.repo.GetEntry(r.Context(), userID, entryID)
	if err != nil {
		svcError(w, err)
		return
	}
	if payload.Description != nil {
		e.Description = *payload.Description
	}
	if payload.AmountMinor != nil || payload.Currency != nil {
		minor, _ := e.Amount.MinorUnits()
		curr := e.Amount.Curr().Code()
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
		e.Amount = amt
	}
	if payload.Category != nil {
		e.Category = *payload.Category
	}
	if payload.Date != nil {
		date, err := time.Parse(time.DateOnly, *payload.Date)
		if err != nil {
			unprocessable(w, "date must be YYYY-MM-DD", "validation_error")
			return
		}
		e.Date = date
	}
	saved, err := s.bookSvc.UpdateEntry(r.Context(), e)
	if err != nil {
		svcError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toEntryResponse(saved))
}

// deleteEntry handles DELETE /v1/entries/{id}. Deleting a materialized entry
// frees its (rule, period) slot; the occurrence shows up as pending again.
func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	userID, ok := queryUserID(w, r)
	if !ok {
		return
	}
	if err := s.bookSvc.DeleteEntry(r.Context(), userID, entryID); err != nil {
		svcError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
