// Package memory is an in-memory LedgerStore for tests and single-process
// runs. Every composite operation happens under one mutex, so the atomicity
// the store contract requires is trivial here.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/corebank/ledger/internal/interfaces"
	"github.com/corebank/ledger/internal/models"
)

type Store struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	entries  map[string][]models.LedgerEntry // account id -> entries, append order
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[string]models.Account),
		entries:  make(map[string][]models.LedgerEntry),
	}
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = account
	return nil
}

func (s *Store) Account(ctx context.Context, id string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return models.Account{}, interfaces.ErrAccountNotFound
	}
	return acct, nil
}

func (s *Store) Accounts(ctx context.Context) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ApplyEntry(ctx context.Context, change interfaces.BalanceChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.apply(change)
}

func (s *Store) ApplyTransfer(ctx context.Context, debit, credit interfaces.BalanceChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate both legs before touching anything so a failure cannot leave
	// one side applied.
	for _, change := range []interfaces.BalanceChange{debit, credit} {
		if _, ok := s.accounts[change.AccountID]; !ok {
			return interfaces.ErrAccountNotFound
		}
	}
	if err := s.apply(debit); err != nil {
		return err
	}
	return s.apply(credit)
}

func (s *Store) apply(change interfaces.BalanceChange) error {
	acct, ok := s.accounts[change.AccountID]
	if !ok {
		return interfaces.ErrAccountNotFound
	}
	acct.Balance = change.NewBalance
	s.accounts[change.AccountID] = acct
	s.entries[change.AccountID] = append(s.entries[change.AccountID], change.Entry)
	return nil
}

// EntriesByAccount returns the account's entries most recent first.
func (s *Store) EntriesByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.entries[accountID]
	out := make([]models.LedgerEntry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}

// Credential serves the confirmation gate from the account row, standing in
// for the external credential store.
func (s *Store) Credential(ctx context.Context, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return "", interfaces.ErrAccountNotFound
	}
	return acct.CredentialRef, nil
}

var _ interfaces.LedgerStore = (*Store)(nil)
var _ interfaces.CredentialSource = (*Store)(nil)
