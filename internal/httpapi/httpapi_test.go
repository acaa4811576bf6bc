package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/treiswell/fintrack/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type ruleResp struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	AmountMinor int64   `json:"amount_minor"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category"`
	Recurrence  string  `json:"recurrence"`
	StartDate   string  `json:"start_date"`
	EndDate     *string `json:"end_date"`
	Active      bool    `json:"active"`
}

type entryResp struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	Kind         string  `json:"kind"`
	Description  string  `json:"description"`
	AmountMinor  int64   `json:"amount_minor"`
	Currency     string  `json:"currency"`
	Category     string  `json:"category"`
	Date         string  `json:"date"`
	SourceRuleID *string `json:"source_rule_id"`
}

type pendingResp struct {
	Ref          string `json:"ref"`
	RuleID       string `json:"rule_id"`
	Period       string `json:"period"`
	ExpectedDate string `json:"expected_date"`
	AmountMinor  int64  `json:"amount_minor"`
	Currency     string `json:"currency"`
}

type periodItemResp struct {
	Status  string       `json:"status"`
	Entry   *entryResp   `json:"entry"`
	Pending *pendingResp `json:"pending"`
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func setup(t *testing.T) (http.Handler, uuid.UUID) {
	t.Helper()
	store := memory.New()
	h := New(store, store, nil, testLogger(), 0).Handler()
	return h, uuid.New()
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createRule(t *testing.T, h http.Handler, userID uuid.UUID) ruleResp {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/rules", map[string]any{
		"user_id":      userID.String(),
		"kind":         "expense",
		"description":  "Rent",
		"amount_minor": 95000,
		"currency":     "EUR",
		"category":     "rent",
		"recurrence":   "monthly",
		"start_date":   "2024-01-15",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var rr ruleResp
	if err := json.Unmarshal(rec.Body.Bytes(), &rr); err != nil {
		t.Fatalf("decode rule: %v", err)
	}
	return rr
}

func listPeriod(t *testing.T, h http.Handler, userID uuid.UUID, period string) []periodItemResp {
	t.Helper()
	rec := doJSON(t, h, http.MethodGet, "/v1/entries?user_id="+userID.String()+"&kind=expense&period="+period, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list entries: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var items []periodItemResp
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	return items
}

func TestRules_CRUD(t *testing.T) {
	h, userID := setup(t)
	created := createRule(t, h, userID)
	if !created.Active || created.ID == "" {
		t.Fatalf("unexpected rule: %+v", created)
	}

	// list
	rec := doJSON(t, h, http.MethodGet, "/v1/rules?user_id="+userID.String()+"&kind=expense", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var rules []ruleResp
	if err := json.Unmarshal(rec.Body.Bytes(), &rules); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	// patch amount and description
	rec = doJSON(t, h, http.MethodPatch, "/v1/rules/"+created.ID+"?user_id="+userID.String(), map[string]any{
		"description":  "Rent downtown",
		"amount_minor": 99000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var patched ruleResp
	if err := json.Unmarshal(rec.Body.Bytes(), &patched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if patched.Description != "Rent downtown" || patched.AmountMinor != 99000 {
		t.Fatalf("unexpected patched rule: %+v", patched)
	}

	// soft delete, then the listing is empty but GET still works
	rec = doJSON(t, h, http.MethodDelete, "/v1/rules/"+created.ID+"?user_id="+userID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/rules?user_id="+userID.String()+"&kind=expense", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &rules); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("expected no active rules, got %d", len(rules))
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/rules/"+created.ID+"?user_id="+userID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get after delete: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRules_Validation(t *testing.T) {
	h, userID := setup(t)

	// unknown category
	rec := doJSON(t, h, http.MethodPost, "/v1/rules", map[string]any{
		"user_id":      userID.String(),
		"kind":         "expense",
		"description":  "Yacht",
		"amount_minor": 100000,
		"currency":     "EUR",
		"category":     "yachts",
		"recurrence":   "monthly",
		"start_date":   "2024-01-15",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	// missing content type
	b, _ := json.Marshal(map[string]any{"user_id": userID.String()})
	req := httptest.NewRequest(http.MethodPost, "/v1/rules", bytes.NewReader(b))
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec2.Code)
	}

	// foreign user sees 404, not someone else's rule
	created := createRule(t, h, userID)
	rec = doJSON(t, h, http.MethodGet, "/v1/rules/"+created.ID+"?user_id="+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign user, got %d", rec.Code)
	}
}

func TestMaterializeFlow(t *testing.T) {
	h, userID := setup(t)
	created := createRule(t, h, userID)

	// february shows one pending occurrence
	items := listPeriod(t, h, userID, "2024-02")
	if len(items) != 1 || items[0].Status != "pending" || items[0].Pending == nil {
		t.Fatalf("expected one pending item: %s", mustJSON(t, items))
	}
	pending := items[0].Pending
	if pending.RuleID != created.ID || pending.Period != "2024-02" || pending.ExpectedDate != "2024-02-15" {
		t.Fatalf("unexpected pending occurrence: %+v", pending)
	}

	// materialize it
	rec := doJSON(t, h, http.MethodPost, "/v1/entries/materialize", map[string]any{
		"user_id":     userID.String(),
		"pending_ref": pending.Ref,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("materialize: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var booked entryResp
	if err := json.Unmarshal(rec.Body.Bytes(), &booked); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if booked.SourceRuleID == nil || *booked.SourceRuleID != created.ID || booked.Date != "2024-02-15" {
		t.Fatalf("unexpected entry: %+v", booked)
	}

	// repeating the call returns the same entry with 200
	rec = doJSON(t, h, http.MethodPost, "/v1/entries/materialize", map[string]any{
		"user_id":     userID.String(),
		"pending_ref": pending.Ref,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat materialize: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var again entryResp
	if err := json.Unmarshal(rec.Body.Bytes(), &again); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if again.ID != booked.ID {
		t.Fatalf("expected the same entry back, got %s and %s", booked.ID, again.ID)
	}

	// the view now shows it booked
	items = listPeriod(t, h, userID, "2024-02")
	if len(items) != 1 || items[0].Status != "booked" {
		t.Fatalf("expected one booked item: %s", mustJSON(t, items))
	}

	// history lists the materialized entry
	rec = doJSON(t, h, http.MethodGet, "/v1/rules/"+created.ID+"/history?user_id="+userID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var history []entryResp
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(history) != 1 || history[0].ID != booked.ID {
		t.Fatalf("unexpected history: %+v", history)
	}

	// deleting the entry re-opens the occurrence
	rec = doJSON(t, h, http.MethodDelete, "/v1/entries/"+booked.ID+"?user_id="+userID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	items = listPeriod(t, h, userID, "2024-02")
	if len(items) != 1 || items[0].Status != "pending" {
		t.Fatalf("expected the occurrence pending again: %s", mustJSON(t, items))
	}
}

func TestMaterialize_BadRefs(t *testing.T) {
	h, userID := setup(t)
	createRule(t, h, userID)

	// malformed ref
	rec := doJSON(t, h, http.MethodPost, "/v1/entries/materialize", map[string]any{
		"user_id":     userID.String(),
		"pending_ref": "pending:not-a-uuid:2024-02",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var er errResp
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Code != "invalid_pending_ref" {
		t.Fatalf("expected invalid_pending_ref, got %q", er.Code)
	}

	// well formed but unknown rule
	rec = doJSON(t, h, http.MethodPost, "/v1/entries/materialize", map[string]any{
		"user_id":     userID.String(),
		"pending_ref": "pending:" + uuid.NewString() + ":2024-02",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}

	// period outside the rule's active window
	created := createRule(t, h, uuid.New())
	rec = doJSON(t, h, http.MethodPost, "/v1/entries/materialize", map[string]any{
		"user_id":     created.UserID,
		"pending_ref": "pending:" + created.ID + ":2023-12",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Code != "occurrence_not_active" {
		t.Fatalf("expected occurrence_not_active, got %q", er.Code)
	}
}

func TestManualEntries(t *testing.T) {
	h, userID := setup(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/entries", map[string]any{
		"user_id":      userID.String(),
		"kind":         "expense",
		"description":  "Groceries",
		"amount_minor": 4200,
		"currency":     "EUR",
		"category":     "groceries",
		"date":         "2024-02-03",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post entry: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created entryResp
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.SourceRuleID != nil {
		t.Fatalf("manual entry must not carry a source rule")
	}

	// patch
	rec = doJSON(t, h, http.MethodPatch, "/v1/entries/"+created.ID+"?user_id="+userID.String(), map[string]any{
		"amount_minor": 4500,
		"date":         "2024-02-04",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch entry: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var patched entryResp
	if err := json.Unmarshal(rec.Body.Bytes(), &patched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if patched.AmountMinor != 4500 || patched.Date != "2024-02-04" {
		t.Fatalf("unexpected patched entry: %+v", patched)
	}

	// shows up in the period view as booked
	items := listPeriod(t, h, userID, "2024-02")
	if len(items) != 1 || items[0].Status != "booked" {
		t.Fatalf("expected one booked item: %s", mustJSON(t, items))
	}
}

func TestDictionary(t *testing.T) {
	h, _ := setup(t)
	rec := doJSON(t, h, http.MethodGet, "/v1/dictionary/categories?kind=expense", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Items []struct {
			Kind       string `json:"kind"`
			Categories []struct {
				Code  string `json:"code"`
				Label string `json:"label"`
			} `json:"categories"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Kind != "expense" || len(out.Items[0].Categories) == 0 {
		t.Fatalf("unexpected dictionary: %s", rec.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	h, _ := setup(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, h, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestAuth_EnforcedWhenConfigured(t *testing.T) {
	t.Setenv("JWT_HS256_SECRET", "test-secret")
	h, userID := setup(t)

	// no token
	rec := doJSON(t, h, http.MethodGet, "/v1/rules?user_id="+userID.String()+"&kind=expense", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// health stays open
	rec = doJSON(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for open path, got %d", rec.Code)
	}

	// valid token
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/rules?user_id="+userID.String()+"&kind=expense", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rec2.Code, rec2.Body.String())
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
