package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/treiswell/fintrack/internal/errs"
)

func TestPendingRef_RoundTrip(t *testing.T) {
	ref := PendingRef{RuleID: uuid.New(), Period: Period{Year: 2024, Month: time.July}}
	s := ref.String()
	back, err := ParsePendingRef(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	if back != ref {
		t.Fatalf("round trip mismatch: %v vs %v", back, ref)
	}
}

func TestParsePendingRef_Malformed(t *testing.T) {
	id := uuid.New().String()
	cases := []string{
		"",
		"pending",
		"pending:" + id,
		"PENDING:" + id + ":2024-07",
		"entry:" + id + ":2024-07",
		"pending:not-a-uuid:2024-07",
		"pending:00000000-0000-0000-0000-000000000000:2024-07",
		"pending:" + id + ":2024-7",
		"pending:" + id + ":2024-13",
		"pending:" + id + ":2024-07:extra",
		"pending:" + id + ":2024/07",
	}
	for _, s := range cases {
		if _, err := ParsePendingRef(s); !errors.Is(err, errs.ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %q, got %v", s, err)
		}
	}
}
