package worker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/treiswell/fintrack/internal/amqp"
)

// Notifier consumes materialization events and emits one booking notification
// per entry. AMQP redelivers on requeue, so the handler remembers entry IDs it
// has already notified for and drops repeats.
type Notifier struct {
	log  *slog.Logger
	mu   sync.Mutex
	seen map[uuid.UUID]struct{}
}

// NewNotifier constructs a notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{log: logger, seen: make(map[uuid.UUID]struct{})}
}

// HandleEntryMaterialized is the consume callback for entry-materialized
// messages. Structurally invalid messages are dropped, not requeued; a
// malformed message never becomes deliverable by retrying.
func (n *Notifier) HandleEntryMaterialized(msg *amqp.EntryMaterializedMessage) error {
	if msg.EntryID == uuid.Nil || msg.UserID == uuid.Nil {
		n.log.Warn("dropping malformed materialization message", "entry_id", msg.EntryID, "user_id", msg.UserID)
		return nil
	}
	n.mu.Lock()
	_, dup := n.seen[msg.EntryID]
	if !dup {
		n.seen[msg.EntryID] = struct{}{}
	}
	n.mu.Unlock()
	if dup {
		n.log.Debug("skipping redelivered materialization message", "entry_id", msg.EntryID)
		return nil
	}
	n.log.Info("entry booked",
		"user_id", msg.UserID,
		"entry_id", msg.EntryID,
		"rule_id", msg.RuleID,
		"period", msg.PeriodKey,
		"kind", msg.Kind,
		"amount_minor", msg.AmountMinor,
		"currency", msg.Currency,
		"at", msg.Timestamp.Format(time.RFC3339))
	return nil
}
