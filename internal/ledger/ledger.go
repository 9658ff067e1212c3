// Package ledger implements the account ledger core: it validates deposit,
// withdraw and transfer requests, applies them to account balances and
// records every committed operation as an immutable log entry. It is the
// sole writer of balances; an operation either commits its balance write
// together with its log entries or leaves all state untouched.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"github.com/shopspring/decimal"

	"github.com/corebank/ledger/internal/interfaces"
	"github.com/corebank/ledger/internal/models"
	"github.com/corebank/ledger/internal/models/events"
)

// DefaultMaxBalance caps any account balance unless a different limit is
// configured.
var DefaultMaxBalance = decimal.RequireFromString("50000.00")

// Ledger is the core service. It serializes operations per account through
// a lock table; a transfer takes both account locks in ascending identity
// order so opposite-direction transfers cannot deadlock.
type Ledger struct {
	store      interfaces.LedgerStore
	maxBalance decimal.Decimal

	publisher interfaces.EventPublisher
	topic     string
	// OnPublishError is invoked when an after-commit event publish fails.
	// Publishing is best-effort: the committed operation stands regardless.
	OnPublishError func(error)

	now func() time.Time

	muMap map[string]*deadlock.Mutex
	mapMu deadlock.Mutex
}

func NewLedger(store interfaces.LedgerStore, maxBalance decimal.Decimal) *Ledger {
	return &Ledger{
		store:      store,
		maxBalance: maxBalance,
		now:        time.Now,
		muMap:      make(map[string]*deadlock.Mutex),
	}
}

// UsePublisher makes the ledger emit one EntryCommitted event per committed
// entry on the given topic.
func (l *Ledger) UsePublisher(pub interfaces.EventPublisher, topic string) {
	l.publisher = pub
	l.topic = topic
}

func (l *Ledger) accountLock(accountID string) *deadlock.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountID]; !exists {
		l.muMap[accountID] = &deadlock.Mutex{}
	}
	return l.muMap[accountID]
}

// Deposit credits the account and appends one Deposit entry.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (models.LedgerEntry, error) {
	amount = amount.Round(2)
	if amount.Sign() <= 0 {
		return models.LedgerEntry{}, ErrInvalidAmount
	}

	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := l.store.Account(ctx, accountID)
	if err != nil {
		return models.LedgerEntry{}, l.actorErr(err)
	}

	next := acct.Balance.Add(amount)
	if next.Cmp(l.maxBalance) > 0 {
		return models.LedgerEntry{}, ErrLimitExceeded
	}

	entry := l.newEntry(accountID, models.KindDeposit, amount, "")
	if err := l.store.ApplyEntry(ctx, interfaces.BalanceChange{
		AccountID:  accountID,
		NewBalance: next,
		Entry:      entry,
	}); err != nil {
		return models.LedgerEntry{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	l.publish(entry)
	return entry, nil
}

// Withdraw debits the account and appends one Withdraw entry. Withdrawing
// the full balance is permitted and leaves the account at exactly zero.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (models.LedgerEntry, error) {
	amount = amount.Round(2)
	if amount.Sign() <= 0 {
		return models.LedgerEntry{}, ErrInvalidAmount
	}

	mu := l.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := l.store.Account(ctx, accountID)
	if err != nil {
		return models.LedgerEntry{}, l.actorErr(err)
	}

	if amount.Cmp(acct.Balance) > 0 {
		return models.LedgerEntry{}, ErrInsufficientFunds
	}

	entry := l.newEntry(accountID, models.KindWithdraw, amount, "")
	if err := l.store.ApplyEntry(ctx, interfaces.BalanceChange{
		AccountID:  accountID,
		NewBalance: acct.Balance.Sub(amount),
		Entry:      entry,
	}); err != nil {
		return models.LedgerEntry{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	l.publish(entry)
	return entry, nil
}

// Transfer moves amount from sender to recipient, committing a Send entry,
// a Receive entry and both balance writes as a single unit.
func (l *Ledger) Transfer(ctx context.Context, senderID, recipientID string, amount decimal.Decimal) (models.TransferReceipt, error) {
	amount = amount.Round(2)
	if amount.Sign() <= 0 {
		return models.TransferReceipt{}, ErrInvalidAmount
	}
	if recipientID == senderID {
		// The sender is never an eligible counterparty; rejecting here also
		// keeps the two-lock acquisition below from taking one lock twice.
		return models.TransferReceipt{}, ErrUnknownRecipient
	}

	senderMu := l.accountLock(senderID)
	recipientMu := l.accountLock(recipientID)

	// Lock in ascending account order to avoid deadlock between two
	// simultaneous opposite-direction transfers.
	if senderID < recipientID {
		senderMu.Lock()
		recipientMu.Lock()
	} else {
		recipientMu.Lock()
		senderMu.Lock()
	}
	defer senderMu.Unlock()
	defer recipientMu.Unlock()

	sender, err := l.store.Account(ctx, senderID)
	if err != nil {
		return models.TransferReceipt{}, l.actorErr(err)
	}
	recipient, err := l.store.Account(ctx, recipientID)
	if err != nil {
		if errors.Is(err, interfaces.ErrAccountNotFound) {
			return models.TransferReceipt{}, ErrUnknownRecipient
		}
		return models.TransferReceipt{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	if amount.Cmp(sender.Balance) > 0 {
		return models.TransferReceipt{}, ErrInsufficientFunds
	}
	if recipient.Balance.Add(amount).Cmp(l.maxBalance) > 0 {
		return models.TransferReceipt{}, ErrLimitExceeded
	}

	send := l.newEntry(senderID, models.KindSend, amount, "To "+recipientID)
	receive := l.newEntry(recipientID, models.KindReceive, amount, "From "+senderID)

	debit := interfaces.BalanceChange{
		AccountID:  senderID,
		NewBalance: sender.Balance.Sub(amount),
		Entry:      send,
	}
	credit := interfaces.BalanceChange{
		AccountID:  recipientID,
		NewBalance: recipient.Balance.Add(amount),
		Entry:      receive,
	}
	if err := l.store.ApplyTransfer(ctx, debit, credit); err != nil {
		return models.TransferReceipt{}, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	l.publish(send)
	l.publish(receive)
	return models.TransferReceipt{Send: send, Receive: receive}, nil
}

// Balance returns the account's current balance.
func (l *Ledger) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acct, err := l.store.Account(ctx, accountID)
	if err != nil {
		return decimal.Zero, l.actorErr(err)
	}
	return acct.Balance, nil
}

// Entries returns the account's log entries, most recent first.
func (l *Ledger) Entries(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	entries, err := l.store.EntriesByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return entries, nil
}

func (l *Ledger) newEntry(accountID string, kind models.EntryKind, amount decimal.Decimal, details string) models.LedgerEntry {
	return models.LedgerEntry{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Kind:      kind,
		Amount:    amount,
		Details:   details,
		CreatedAt: l.now(),
	}
}

func (l *Ledger) actorErr(err error) error {
	if errors.Is(err, interfaces.ErrAccountNotFound) {
		return ErrUnknownAccount
	}
	return fmt.Errorf("%w: %v", ErrStorageFailure, err)
}

func (l *Ledger) publish(entry models.LedgerEntry) {
	if l.publisher == nil {
		return
	}
	ev := events.EntryCommitted{
		EntryID:    entry.ID,
		AccountID:  entry.AccountID,
		Kind:       string(entry.Kind),
		Amount:     entry.Amount,
		Details:    entry.Details,
		OccurredAt: entry.CreatedAt,
	}
	if err := l.publisher.Publish(l.topic, ev); err != nil && l.OnPublishError != nil {
		l.OnPublishError(err)
	}
}
