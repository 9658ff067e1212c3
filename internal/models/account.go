package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a ledger account row. The identity is unique and immutable;
// the balance is written only by the ledger core, as a cached projection of
// the account's log entries. CredentialRef points at the stored confirmation
// credential and is opaque to the core.
type Account struct {
	ID            string          `json:"id"`
	Balance       decimal.Decimal `json:"balance"`
	CredentialRef string          `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
}
