package interfaces

import (
	"context"
	"errors"

	"github.com/corebank/ledger/internal/models"
	"github.com/shopspring/decimal"
)

// BalanceChange pairs an account's new balance with the ledger entry that
// explains it. The two must be persisted together or not at all; the balance
// column is only ever a projection of the entry log.
type BalanceChange struct {
	AccountID  string
	NewBalance decimal.Decimal
	Entry      models.LedgerEntry
}

// LedgerStore is the persistence contract for accounts and their entry log.
// Implementations must make each Apply* call atomic: either every balance
// write and entry insert in the call is visible, or none is.
type LedgerStore interface {
	Account(ctx context.Context, id string) (models.Account, error)
	Accounts(ctx context.Context) ([]models.Account, error)
	CreateAccount(ctx context.Context, account models.Account) error

	// ApplyEntry commits a single-account mutation.
	ApplyEntry(ctx context.Context, change BalanceChange) error

	// ApplyTransfer commits both legs of a transfer as one unit.
	ApplyTransfer(ctx context.Context, debit, credit BalanceChange) error

	// EntriesByAccount returns the account's log, most recent first.
	EntriesByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error)
}

// ErrAccountNotFound is returned by stores when an account id resolves to
// nothing. The ledger core maps it onto its own rejection kinds.
var ErrAccountNotFound = errors.New("account not found")
