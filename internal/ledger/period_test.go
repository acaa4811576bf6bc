package ledger

import (
	"testing"
	"time"
)

func TestPeriod_KeyAndParse(t *testing.T) {
	p, err := NewPeriod(2024, 2)
	if err != nil {
		t.Fatalf("new period: %v", err)
	}
	if p.Key() != "2024-02" {
		t.Fatalf("expected key 2024-02, got %s", p.Key())
	}
	back, err := ParsePeriodKey(p.Key())
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	if back != p {
		t.Fatalf("round trip mismatch: %v vs %v", back, p)
	}
}

func TestParsePeriodKey_Malformed(t *testing.T) {
	for _, s := range []string{"", "2024", "2024-2", "24-02", "2024-13", "2024-00", "abcd-ef", "2024-02-01"} {
		if _, err := ParsePeriodKey(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func TestNewPeriod_Range(t *testing.T) {
	if _, err := NewPeriod(2024, 0); err == nil {
		t.Fatalf("expected error for month 0")
	}
	if _, err := NewPeriod(2024, 13); err == nil {
		t.Fatalf("expected error for month 13")
	}
	if _, err := NewPeriod(0, 6); err == nil {
		t.Fatalf("expected error for year 0")
	}
}

func TestPeriod_BoundsAndDays(t *testing.T) {
	p := Period{Year: 2024, Month: time.February}
	if got := p.Days(); got != 29 {
		t.Fatalf("expected 29 days in 2024-02, got %d", got)
	}
	if got := (Period{Year: 2023, Month: time.February}).Days(); got != 28 {
		t.Fatalf("expected 28 days in 2023-02, got %d", got)
	}
	if !p.Start().Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", p.Start())
	}
	if !p.End().Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end: %v", p.End())
	}
	if !p.Contains(time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected period to contain last day")
	}
	if p.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("period must not contain the next month's first day")
	}
}

func TestPeriod_Compare(t *testing.T) {
	a := Period{Year: 2023, Month: time.December}
	b := Period{Year: 2024, Month: time.January}
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Fatalf("compare ordering broken")
	}
}
