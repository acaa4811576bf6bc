package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/treiswell/fintrack/internal/ledger"
)

// EntryMaterializedMessage is published whenever a pending occurrence becomes
// a concrete ledger entry. Consumers fetch the full entry from storage; the
// message only carries the identifiers and display basics.
type EntryMaterializedMessage struct {
	EntryID     uuid.UUID   `json:"entry_id"`
	UserID      uuid.UUID   `json:"user_id"`
	RuleID      uuid.UUID   `json:"rule_id"`
	PeriodKey   string      `json:"period_key"`
	Kind        ledger.Kind `json:"kind"`
	AmountMinor int64       `json:"amount_minor"`
	Currency    string      `json:"currency"`
	Timestamp   time.Time   `json:"timestamp"`
}

// NewEntryMaterializedMessage builds the message for a freshly materialized entry.
func NewEntryMaterializedMessage(e ledger.Entry) *EntryMaterializedMessage {
	msg := &EntryMaterializedMessage{
		EntryID:   e.ID,
		UserID:    e.UserID,
		PeriodKey: e.Period().Key(),
		Kind:      e.Kind,
		Timestamp: time.Now(),
	}
	if e.SourceRuleID != nil {
		msg.RuleID = *e.SourceRuleID
	}
	msg.AmountMinor, _ = e.Amount.MinorUnits()
	msg.Currency = e.Amount.Curr().Code()
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *EntryMaterializedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntryMaterializedMessageFromJSON creates a message from JSON bytes
func EntryMaterializedMessageFromJSON(data []byte) (*EntryMaterializedMessage, error) {
	var msg EntryMaterializedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
