package book

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/treiswell/fintrack/internal/errs"
	"github.com/treiswell/fintrack/internal/ledger"
	"github.com/treiswell/fintrack/internal/storage/memory"
)

type capturedEvents struct {
	entries []ledger.Entry
}

func (c *capturedEvents) PublishEntryMaterialized(_ context.Context, e ledger.Entry) error {
	c.entries = append(c.entries, e)
	return nil
}

func newService(t *testing.T) (Service, *memory.Store, *capturedEvents) {
	t.Helper()
	store := memory.New()
	events := &capturedEvents{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, store, events, logger, 0), store, events
}

func amount(t *testing.T, minor int64) money.Amount {
	t.Helper()
	amt, err := money.NewAmountFromMinorUnits("EUR", minor)
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	return amt
}

func seedRule(t *testing.T, store *memory.Store, userID uuid.UUID, desc string, minor int64) ledger.Rule {
	t.Helper()
	r := ledger.Rule{
		ID:          uuid.New(),
		UserID:      userID,
		Kind:        ledger.KindExpense,
		Description: desc,
		Amount:      amount(t, minor),
		Category:    "rent",
		Recurrence:  ledger.RecurrenceMonthly,
		StartDate:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	created, err := store.CreateRule(context.Background(), r)
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	return created
}

func manualEntry(t *testing.T, userID uuid.UUID, date time.Time) ledger.Entry {
	t.Helper()
	return ledger.Entry{
		UserID:      userID,
		Kind:        ledger.KindExpense,
		Description: "Groceries",
		Amount:      amount(t, 4200),
		Category:    "groceries",
		Date:        date,
	}
}

func TestListPeriod_PendingAndBooked(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()
	rent := seedRule(t, store, userID, "Rent", 95000)
	gym := seedRule(t, store, userID, "Gym", 3500)
	feb, _ := ledger.NewPeriod(2024, 2)

	// materialize one of the two rules
	if _, _, err := svc.Materialize(ctx, userID, rent.ID, feb); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	// plus one manual entry in the same period
	if _, err := svc.CreateManual(ctx, manualEntry(t, userID, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("create manual: %v", err)
	}

	items, err := svc.ListPeriod(ctx, userID, ledger.KindExpense, feb)
	if err != nil {
		t.Fatalf("list period: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items (2 booked, 1 pending), got %d", len(items))
	}
	booked, pending := 0, 0
	for _, it := range items {
		if it.Pending() {
			pending++
			if it.Occurrence.RuleID != gym.ID {
				t.Fatalf("expected the unmaterialized rule pending, got %s", it.Occurrence.RuleID)
			}
			if it.Rule == nil || it.Rule.ID != gym.ID {
				t.Fatalf("expected pending item to carry its rule")
			}
		} else {
			booked++
		}
	}
	if booked != 2 || pending != 1 {
		t.Fatalf("expected 2 booked and 1 pending, got %d/%d", booked, pending)
	}
	// date descending
	for i := 1; i < len(items); i++ {
		if items[i].Date().After(items[i-1].Date()) {
			t.Fatalf("items out of order at %d", i)
		}
	}
}

func TestListPeriod_NoRuleTwice(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()
	rent := seedRule(t, store, userID, "Rent", 95000)
	feb, _ := ledger.NewPeriod(2024, 2)

	if _, _, err := svc.Materialize(ctx, userID, rent.ID, feb); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	items, err := svc.ListPeriod(ctx, userID, ledger.KindExpense, feb)
	if err != nil {
		t.Fatalf("list period: %v", err)
	}
	if len(items) != 1 || items[0].Pending() {
		t.Fatalf("expected a single booked item, got %d items", len(items))
	}
}

func TestListPeriod_OutsideActiveWindow(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()
	seedRule(t, store, userID, "Rent", 95000) // starts 2024-01

	dec, _ := ledger.NewPeriod(2023, 12)
	items, err := svc.ListPeriod(ctx, userID, ledger.KindExpense, dec)
	if err != nil {
		t.Fatalf("list period: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty period before the rule starts, got %d", len(items))
	}
}

func TestMaterialize_Idempotent(t *testing.T) {
	svc, store, events := newService(t)
	ctx := context.Background()
	userID := uuid.New()
	rent := seedRule(t, store, userID, "Rent", 95000)
	feb, _ := ledger.NewPeriod(2024, 2)

	first, created, err := svc.Materialize(ctx, userID, rent.ID, feb)
	if err != nil || !created {
		t.Fatalf("first materialize: created=%v err=%v", created, err)
	}
	if first.SourceRuleID == nil || *first.SourceRuleID != rent.ID {
		t.Fatalf("expected entry to reference its rule")
	}
	if want := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC); !first.Date.Equal(want) {
		t.Fatalf("expected date %v, got %v", want, first.Date)
	}

	second, created, err := svc.Materialize(ctx, userID, rent.ID, feb)
	if err != nil {
		t.Fatalf("second materialize: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected the existing entry back, created=%v", created)
	}
	if len(events.entries) != 1 {
		t.Fatalf("expected one published event, got %d", len(events.entries))
	}
}

func TestMaterialize_SnapshotsRule(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()
	rent := seedRule(t, store, userID, "Rent", 95000)
	feb, _ := ledger.NewPeriod(2024, 2)
	mar, _ := ledger.NewPeriod(2024, 3)

	entry, _, err := svc.Materialize(ctx, userID, rent.ID, feb)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	// a later rule edit must not touch the already booked entry
	rent.Amount = amount(t, 99000)
	if _, err := store.UpdateRule(ctx, rent); err != nil {
		t.Fatalf("update rule: %v", err)
	}
	got, err := store.GetEntry(ctx, userID, entry.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if minor, _ := got.Amount.MinorUnits(); minor != 95000 {
		t.Fatalf("expected snapshot amount, got %d", minor)
	}
	// but the next period picks up the new amount
	next, _, err := svc.Materialize(ctx, userID, rent.ID, mar)
	if err != nil {
		t.Fatalf("materialize next: %v", err)
	}
	if minor, _ := next.Amount.MinorUnits(); minor != 99000 {
		t.Fatalf("expected updated amount in next period, got %d", minor)
	}
}

func TestMaterialize_ForeignRuleNotFound(t *testing.T) {
	svc, store, _ := newService(t)
	rent := seedRule(t, store, uuid.New(), "Rent", 95000)
	feb, _ := ledger.NewPeriod(2024, 2)

	_, _, err := svc.Materialize(context.Background(), uuid.New(), rent.ID, feb)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMaterialize_StaleRef(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()
	rent := seedRule(t, store, userID, "Rent", 95000)

	// period before the rule's start date
	dec, _ := ledger.NewPeriod(2023, 12)
	if _, _, err := svc.Materialize(ctx, userID, rent.ID, dec); !errors.Is(err, errs.ErrNotActive) {
		t.Fatalf("expected ErrNotActive for pre-start period, got %v", err)
	}
	// deactivated rule
	rent.Active = false
	if _, err := store.UpdateRule(ctx, rent); err != nil {
		t.Fatalf("update rule: %v", err)
	}
	feb, _ := ledger.NewPeriod(2024, 2)
	if _, _, err := svc.Materialize(ctx, userID, rent.ID, feb); !errors.Is(err, errs.ErrNotActive) {
		t.Fatalf("expected ErrNotActive for inactive rule, got %v", err)
	}
}

func TestDeleteMaterialized_ReopensOccurrence(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()
	rent := seedRule(t, store, userID, "Rent", 95000)
	feb, _ := ledger.NewPeriod(2024, 2)

	entry, _, err := svc.Materialize(ctx, userID, rent.ID, feb)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if err := svc.DeleteEntry(ctx, userID, entry.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items, err := svc.ListPeriod(ctx, userID, ledger.KindExpense, feb)
	if err != nil {
		t.Fatalf("list period: %v", err)
	}
	if len(items) != 1 || !items[0].Pending() {
		t.Fatalf("expected the occurrence to be pending again")
	}
}

func TestHistory(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()
	rent := seedRule(t, store, userID, "Rent", 95000)

	for _, m := range []int{1, 2, 3} {
		p, _ := ledger.NewPeriod(2024, m)
		if _, _, err := svc.Materialize(ctx, userID, rent.ID, p); err != nil {
			t.Fatalf("materialize %d: %v", m, err)
		}
	}
	got, err := svc.History(ctx, userID, rent.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Date.After(got[i-1].Date) {
			t.Fatalf("history out of order at %d", i)
		}
	}
	// unknown rule fails closed
	if _, err := svc.History(ctx, userID, uuid.New()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateEntry_PreservesOrigin(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()
	rent := seedRule(t, store, userID, "Rent", 95000)
	feb, _ := ledger.NewPeriod(2024, 2)

	entry, _, err := svc.Materialize(ctx, userID, rent.ID, feb)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	upd := entry
	upd.Description = "Rent (adjusted)"
	upd.Amount = amount(t, 96000)
	upd.SourceRuleID = nil
	got, err := svc.UpdateEntry(ctx, upd)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.SourceRuleID == nil || *got.SourceRuleID != rent.ID {
		t.Fatalf("expected source rule preserved through update")
	}
	// kind stays immutable
	upd.Kind = ledger.KindIncome
	if _, err := svc.UpdateEntry(ctx, upd); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected ErrInvalid changing kind, got %v", err)
	}
}

func TestUpdateEntry_DateMoveKeepsPeriodsUnique(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()
	rent := seedRule(t, store, userID, "Rent", 95000)
	feb, _ := ledger.NewPeriod(2024, 2)
	mar, _ := ledger.NewPeriod(2024, 3)

	entry, _, err := svc.Materialize(ctx, userID, rent.ID, feb)
	if err != nil {
		t.Fatalf("materialize feb: %v", err)
	}
	entry.Date = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if _, err := svc.UpdateEntry(ctx, entry); err != nil {
		t.Fatalf("move date: %v", err)
	}

	// march is now occupied by the moved entry, never a second row
	got, created, err := svc.Materialize(ctx, userID, rent.ID, mar)
	if err != nil {
		t.Fatalf("materialize mar: %v", err)
	}
	if created || got.ID != entry.ID {
		t.Fatalf("expected the moved entry back, created=%v", created)
	}
	marEntries, err := store.EntriesByPeriod(ctx, userID, ledger.KindExpense, mar)
	if err != nil {
		t.Fatalf("list march: %v", err)
	}
	if len(marEntries) != 1 {
		t.Fatalf("expected exactly one rule-derived entry in march, got %d", len(marEntries))
	}

	// february shows pending again and can be booked afresh
	_, created, err = svc.Materialize(ctx, userID, rent.ID, feb)
	if err != nil || !created {
		t.Fatalf("expected february re-materializable, created=%v err=%v", created, err)
	}

	// moving onto a period that already holds an entry for the rule conflicts
	entry.Date = time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	if _, err := svc.UpdateEntry(ctx, entry); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateManual_StripsSourceRule(t *testing.T) {
	svc, _, _ := newService(t)
	userID := uuid.New()
	e := manualEntry(t, userID, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC))
	bogus := uuid.New()
	e.SourceRuleID = &bogus
	got, err := svc.CreateManual(context.Background(), e)
	if err != nil {
		t.Fatalf("create manual: %v", err)
	}
	if got.SourceRuleID != nil {
		t.Fatalf("expected manual entry without a source rule")
	}
}
