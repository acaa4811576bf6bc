package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/treiswell/fintrack/internal/ledger"
)

type ctxKey string

const (
	ctxKeyPostRule    ctxKey = "validatedPostRule"
	ctxKeyListRules   ctxKey = "validatedListRules"
	ctxKeyPostEntry   ctxKey = "validatedPostEntry"
	ctxKeyListEntries ctxKey = "validatedListEntries"
	ctxKeyMaterialize ctxKey = "validatedMaterialize"
)

// validatePostRule checks the POST /v1/rules payload against the rule
// service's invariants and stashes the built domain rule in the context.
func (s *Server) validatePostRule() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req postRuleRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			rule, err := toRule(req)
			if err != nil {
				unprocessable(w, err.Error(), "validation_error")
				return
			}
			if err := s.ruleSvc.ValidateRule(rule); err != nil {
				unprocessable(w, err.Error(), "validation_error")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostRule, rule)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateListRules parses user_id and kind query params for GET /v1/rules.
func (s *Server) validateListRules() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := queryUserID(w, r)
			if !ok {
				return
			}
			kind := ledger.Kind(r.URL.Query().Get("kind"))
			if !kind.Valid() {
				badRequest(w, "kind must be income or expense")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyListRules, listRulesQuery{UserID: userID, Kind: kind})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePostEntry checks the manual entry payload for POST /v1/entries.
func (s *Server) validatePostEntry() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req postEntryRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			entry, err := toEntry(req)
			if err != nil {
				unprocessable(w, err.Error(), "validation_error")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostEntry, entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateListEntries parses user_id, kind, and the optional period=YYYY-MM
// query param for GET /v1/entries. The period defaults to the current month.
func (s *Server) validateListEntries() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := queryUserID(w, r)
			if !ok {
				return
			}
			kind := ledger.Kind(r.URL.Query().Get("kind"))
			if !kind.Valid() {
				badRequest(w, "kind must be income or expense")
				return
			}
			p := ledger.PeriodOf(time.Now().UTC())
			if ps := r.URL.Query().Get("period"); ps != "" {
				parsed, err := ledger.ParsePeriodKey(ps)
				if err != nil {
					badRequest(w, "period must be YYYY-MM")
					return
				}
				p = parsed
			}
			q := listEntriesQuery{UserID: userID, Kind: kind, Period: p}
			ctx := context.WithValue(r.Context(), ctxKeyListEntries, q)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateMaterialize parses and strictly validates the pending ref for
// POST /v1/entries/materialize. A malformed ref never reaches the service.
func (s *Server) validateMaterialize() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req materializeRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			if req.UserID == uuid.Nil {
				badRequest(w, "user_id is required")
				return
			}
			ref, err := ledger.ParsePendingRef(req.PendingRef)
			if err != nil {
				unprocessable(w, "malformed pending_ref", "invalid_pending_ref")
				return
			}
			in := materializeInput{UserID: req.UserID, Ref: ref}
			ctx := context.WithValue(r.Context(), ctxKeyMaterialize, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// queryUserID extracts and parses the required user_id query param.
func queryUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		badRequest(w, "user_id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(w, "invalid user_id")
		return uuid.Nil, false
	}
	return id, true
}

func toRule(req postRuleRequest) (ledger.Rule, error) {
	amt, err := money.NewAmountFromMinorUnits(req.Currency, req.AmountMinor)
	if err != nil {
		return ledger.Rule{}, err
	}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		return ledger.Rule{}, err
	}
	rule := ledger.Rule{
		UserID:      req.UserID,
		Kind:        req.Kind,
		Description: req.Description,
		Amount:      amt,
		Category:    req.Category,
		Recurrence:  req.Recurrence,
		StartDate:   start,
	}
	if req.EndDate != nil {
		end, err := time.Parse(time.DateOnly, *req.EndDate)
		if err != nil {
			return ledger.Rule{}, err
		}
		rule.EndDate = &end
	}
	return rule, nil
}

func toEntry(req postEntryRequest) (ledger.Entry, error) {
	amt, err := money.NewAmountFromMinorUnits(req.Currency, req.AmountMinor)
	if err != nil {
		return ledger.Entry{}, err
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		UserID:      req.UserID,
		Kind:        req.Kind,
		Description: req.Description,
		Amount:      amt,
		Category:    req.Category,
		Date:        date,
	}, nil
}
