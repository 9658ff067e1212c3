package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryCommitted is emitted once per ledger entry after its transaction has
// committed. Consumers must treat the ledger, not this stream, as the source
// of truth.
type EntryCommitted struct {
	EntryID    string          `json:"entry_id"`
	AccountID  string          `json:"account_id"`
	Kind       string          `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Details    string          `json:"details,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
