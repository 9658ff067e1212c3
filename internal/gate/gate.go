// Package gate implements the two-step confirmation protocol in front of
// the ledger core: an operation is first staged with its parsed parameters,
// then committed only when the caller confirms it with the account's
// secondary credential. A staged operation is single-use; confirming it,
// successfully or not, consumes it.
package gate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/corebank/ledger/internal/interfaces"
	"github.com/corebank/ledger/internal/ledger"
	"github.com/corebank/ledger/internal/models"
)

// Action names a stageable ledger operation.
type Action string

const (
	ActionDeposit  Action = "deposit"
	ActionWithdraw Action = "withdraw"
	ActionSend     Action = "send"
)

// PendingOperation is a staged intent awaiting confirmation. It lives only
// in its Session, never in durable storage.
type PendingOperation struct {
	Action    Action
	Amount    decimal.Decimal
	Recipient string
}

// StagedIntent is what Stage returns for display: the exact parameters that
// Confirm will later execute, plus the eligible counterparties for a send.
type StagedIntent struct {
	Action             Action          `json:"action"`
	Amount             decimal.Decimal `json:"amount"`
	Recipient          string          `json:"recipient,omitempty"`
	EligibleRecipients []string        `json:"eligible_recipients,omitempty"`
}

// ConfirmResult carries the ledger core's committed outcome: one entry for
// a deposit or withdrawal, the send and receive pair for a transfer.
type ConfirmResult struct {
	Action  Action               `json:"action"`
	Entries []models.LedgerEntry `json:"entries"`
}

// Gate guards the ledger core behind stage-then-confirm.
type Gate struct {
	core  *ledger.Ledger
	store interfaces.LedgerStore
	creds interfaces.CredentialSource
}

func New(core *ledger.Ledger, store interfaces.LedgerStore, creds interfaces.CredentialSource) *Gate {
	return &Gate{core: core, store: store, creds: creds}
}

// ParseAmount parses user input into a positive amount rounded to two
// decimal places. Amount validation happens here, once; Confirm executes
// exactly what was staged.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ledger.ErrInvalidAmount
	}
	amount = amount.Round(2)
	if amount.Sign() <= 0 {
		return decimal.Zero, ledger.ErrInvalidAmount
	}
	return amount, nil
}

// Stage validates and records an intended operation in the session,
// replacing any previously staged one, and returns the intent for display.
func (g *Gate) Stage(ctx context.Context, sess *Session, accountID string, action Action, rawAmount, recipient string) (StagedIntent, error) {
	switch action {
	case ActionDeposit, ActionWithdraw, ActionSend:
	default:
		return StagedIntent{}, ErrUnknownAction
	}

	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return StagedIntent{}, err
	}

	intent := StagedIntent{Action: action, Amount: amount, Recipient: recipient}
	if action == ActionSend {
		accounts, err := g.store.Accounts(ctx)
		if err != nil {
			return StagedIntent{}, fmt.Errorf("%w: %v", ledger.ErrStorageFailure, err)
		}
		for _, a := range accounts {
			if a.ID != accountID {
				intent.EligibleRecipients = append(intent.EligibleRecipients, a.ID)
			}
		}
	}

	sess.put(PendingOperation{Action: action, Amount: amount, Recipient: recipient})
	return intent, nil
}

// Confirm consumes the session's staged operation and, if the supplied
// credential matches the stored one, executes it against the ledger core.
// The staged operation is gone after this call whatever the outcome.
func (g *Gate) Confirm(ctx context.Context, sess *Session, accountID, suppliedCredential string) (ConfirmResult, error) {
	pending, ok := sess.take()
	if !ok {
		return ConfirmResult{}, ErrNoPendingOperation
	}

	stored, err := g.creds.Credential(ctx, accountID)
	if err != nil {
		if errors.Is(err, interfaces.ErrAccountNotFound) {
			return ConfirmResult{}, ledger.ErrUnknownAccount
		}
		return ConfirmResult{}, fmt.Errorf("%w: %v", ledger.ErrStorageFailure, err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(suppliedCredential)) != 1 {
		return ConfirmResult{}, ErrInvalidCredential
	}

	result := ConfirmResult{Action: pending.Action}
	switch pending.Action {
	case ActionDeposit:
		entry, err := g.core.Deposit(ctx, accountID, pending.Amount)
		if err != nil {
			return ConfirmResult{}, err
		}
		result.Entries = []models.LedgerEntry{entry}
	case ActionWithdraw:
		entry, err := g.core.Withdraw(ctx, accountID, pending.Amount)
		if err != nil {
			return ConfirmResult{}, err
		}
		result.Entries = []models.LedgerEntry{entry}
	case ActionSend:
		receipt, err := g.core.Transfer(ctx, accountID, pending.Recipient, pending.Amount)
		if err != nil {
			return ConfirmResult{}, err
		}
		result.Entries = []models.LedgerEntry{receipt.Send, receipt.Receive}
	default:
		return ConfirmResult{}, ErrUnknownAction
	}
	return result, nil
}
