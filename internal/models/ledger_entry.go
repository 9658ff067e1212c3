package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind names the operation a ledger entry records.
type EntryKind string

const (
	KindDeposit  EntryKind = "Deposit"
	KindWithdraw EntryKind = "Withdraw"
	KindSend     EntryKind = "Send"
	KindReceive  EntryKind = "Receive"
)

// LedgerEntry is a single append-only ledger record for an account. Amount
// is always positive with two-decimal precision; the sign is implied by the
// kind. Details carries the counterparty annotation for Send/Receive.
type LedgerEntry struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Kind      EntryKind       `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Details   string          `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Signed returns the entry amount with the sign implied by its kind:
// deposits and receives add to the balance, withdrawals and sends subtract.
func (e LedgerEntry) Signed() decimal.Decimal {
	switch e.Kind {
	case KindWithdraw, KindSend:
		return e.Amount.Neg()
	default:
		return e.Amount
	}
}

// TransferReceipt is the committed result of a transfer: the sender's Send
// entry and the recipient's Receive entry, persisted as one unit.
type TransferReceipt struct {
	Send    LedgerEntry `json:"send"`
	Receive LedgerEntry `json:"receive"`
}
