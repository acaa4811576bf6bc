package ledger

import (
	"strings"

	"github.com/google/uuid"

	"github.com/treiswell/fintrack/internal/errs"
)

// pendingRefPrefix marks the encoded form so a pending ref can never be
// mistaken for a real row id.
const pendingRefPrefix = "pending"

// PendingRef identifies a pending occurrence by its (rule, period) tuple.
// Pending occurrences have no row of their own, so clients round-trip this
// value back into a materialize request.
type PendingRef struct {
	RuleID uuid.UUID
	Period Period
}

// String encodes the ref as "pending:<rule-uuid>:<YYYY-MM>". UUIDs contain no
// colon, so the encoding is unambiguous.
func (r PendingRef) String() string {
	return pendingRefPrefix + ":" + r.RuleID.String() + ":" + r.Period.Key()
}

// ParsePendingRef decodes a value produced by String. Parsing is strict: any
// deviation (wrong prefix, malformed UUID, out-of-range period) fails with
// ErrInvalid rather than guessing.
func ParsePendingRef(s string) (PendingRef, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != pendingRefPrefix {
		return PendingRef{}, errs.ErrInvalid
	}
	ruleID, err := uuid.Parse(parts[1])
	if err != nil || ruleID == uuid.Nil {
		return PendingRef{}, errs.ErrInvalid
	}
	period, err := ParsePeriodKey(parts[2])
	if err != nil {
		return PendingRef{}, err
	}
	return PendingRef{RuleID: ruleID, Period: period}, nil
}
