package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebank/ledger/internal/interfaces"
	"github.com/corebank/ledger/internal/models"
	"github.com/corebank/ledger/internal/storage/memory"
)

func newTestLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewLedger(store, DefaultMaxBalance), store
}

func seedAccount(t *testing.T, store *memory.Store, id, balance string) {
	t.Helper()
	err := store.CreateAccount(context.Background(), models.Account{
		ID:            id,
		Balance:       decimal.RequireFromString(balance),
		CredentialRef: "4321",
		CreatedAt:     time.Now(),
	})
	require.NoError(t, err)
}

func balanceOf(t *testing.T, store *memory.Store, id string) decimal.Decimal {
	t.Helper()
	acct, err := store.Account(context.Background(), id)
	require.NoError(t, err)
	return acct.Balance
}

// The balance must stay a projection of the log at all times.
func requireBalanceMatchesLog(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	entries, err := store.EntriesByAccount(context.Background(), id)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Signed())
	}
	assert.Equal(t, balanceOf(t, store, id).StringFixed(2), sum.StringFixed(2))
}

func TestDeposit(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "100.00")

	entry, err := l.Deposit(context.Background(), "alice", decimal.RequireFromString("25.555"))
	require.NoError(t, err)

	assert.Equal(t, models.KindDeposit, entry.Kind)
	assert.Equal(t, "25.56", entry.Amount.StringFixed(2))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "125.56", balanceOf(t, store, "alice").StringFixed(2))
	requireBalanceMatchesLog(t, store, "alice")
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "100.00")

	for _, raw := range []string{"0", "-5", "0.004"} {
		_, err := l.Deposit(context.Background(), "alice", decimal.RequireFromString(raw))
		assert.ErrorIs(t, err, ErrInvalidAmount, raw)
	}

	entries, err := store.EntriesByAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, "100.00", balanceOf(t, store, "alice").StringFixed(2))
}

func TestDepositBalanceLimit(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "49900.00")

	_, err := l.Deposit(context.Background(), "alice", decimal.RequireFromString("100.01"))
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, "49900.00", balanceOf(t, store, "alice").StringFixed(2))

	// Landing exactly on the limit is allowed.
	_, err = l.Deposit(context.Background(), "alice", decimal.RequireFromString("100.00"))
	require.NoError(t, err)
	assert.Equal(t, "50000.00", balanceOf(t, store, "alice").StringFixed(2))
	requireBalanceMatchesLog(t, store, "alice")
}

func TestDepositUnknownAccount(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Deposit(context.Background(), "ghost", decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestWithdraw(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "100.00")

	entry, err := l.Withdraw(context.Background(), "alice", decimal.RequireFromString("40.00"))
	require.NoError(t, err)

	assert.Equal(t, models.KindWithdraw, entry.Kind)
	assert.Equal(t, "40.00", entry.Amount.StringFixed(2))
	assert.Equal(t, "60.00", balanceOf(t, store, "alice").StringFixed(2))
	requireBalanceMatchesLog(t, store, "alice")
}

func TestWithdrawBoundaries(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "100.00")

	// One cent over the balance is rejected.
	_, err := l.Withdraw(context.Background(), "alice", decimal.RequireFromString("100.01"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "100.00", balanceOf(t, store, "alice").StringFixed(2))

	// Withdrawing the full balance down to exactly zero is permitted.
	_, err = l.Withdraw(context.Background(), "alice", decimal.RequireFromString("100.00"))
	require.NoError(t, err)
	assert.Equal(t, "0.00", balanceOf(t, store, "alice").StringFixed(2))
	requireBalanceMatchesLog(t, store, "alice")
}

func TestWithdrawRejectsNonPositiveAmount(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "100.00")

	_, err := l.Withdraw(context.Background(), "alice", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	entries, err := store.EntriesByAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransfer(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "100.00")
	seedAccount(t, store, "bob", "200.00")

	receipt, err := l.Transfer(context.Background(), "alice", "bob", decimal.RequireFromString("50.00"))
	require.NoError(t, err)

	assert.Equal(t, "50.00", balanceOf(t, store, "alice").StringFixed(2))
	assert.Equal(t, "250.00", balanceOf(t, store, "bob").StringFixed(2))

	assert.Equal(t, models.KindSend, receipt.Send.Kind)
	assert.Equal(t, "alice", receipt.Send.AccountID)
	assert.Equal(t, "To bob", receipt.Send.Details)
	assert.Equal(t, models.KindReceive, receipt.Receive.Kind)
	assert.Equal(t, "bob", receipt.Receive.AccountID)
	assert.Equal(t, "From alice", receipt.Receive.Details)
	assert.Equal(t, receipt.Send.Amount.StringFixed(2), receipt.Receive.Amount.StringFixed(2))

	aliceEntries, err := store.EntriesByAccount(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, aliceEntries, 1)
	bobEntries, err := store.EntriesByAccount(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, bobEntries, 1)

	requireBalanceMatchesLog(t, store, "alice")
	requireBalanceMatchesLog(t, store, "bob")
}

func TestTransferRejections(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "100.00")
	seedAccount(t, store, "bob", "49990.00")

	cases := []struct {
		name      string
		recipient string
		amount    string
		want      error
	}{
		{"non-positive amount", "bob", "0", ErrInvalidAmount},
		{"unknown recipient", "ghost", "10.00", ErrUnknownRecipient},
		{"self transfer", "alice", "10.00", ErrUnknownRecipient},
		{"insufficient funds", "bob", "100.01", ErrInsufficientFunds},
		{"recipient over limit", "bob", "20.00", ErrLimitExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Transfer(context.Background(), "alice", tc.recipient, decimal.RequireFromString(tc.amount))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// No rejection left a trace.
	assert.Equal(t, "100.00", balanceOf(t, store, "alice").StringFixed(2))
	assert.Equal(t, "49990.00", balanceOf(t, store, "bob").StringFixed(2))
	entries, err := store.EntriesByAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntriesMostRecentFirst(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "0.00")

	for _, amt := range []string{"10.00", "20.00", "30.00"} {
		_, err := l.Deposit(context.Background(), "alice", decimal.RequireFromString(amt))
		require.NoError(t, err)
	}

	entries, err := l.Entries(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "30.00", entries[0].Amount.StringFixed(2))
	assert.Equal(t, "20.00", entries[1].Amount.StringFixed(2))
	assert.Equal(t, "10.00", entries[2].Amount.StringFixed(2))

	// Per-account timestamps never decrease in commit order.
	for i := 0; i < len(entries)-1; i++ {
		assert.False(t, entries[i].CreatedAt.Before(entries[i+1].CreatedAt))
	}
}

// failingStore aborts composite writes to exercise the storage-failure path.
type failingStore struct {
	*memory.Store
}

func (f *failingStore) ApplyEntry(ctx context.Context, change interfaces.BalanceChange) error {
	return errors.New("disk on fire")
}

func (f *failingStore) ApplyTransfer(ctx context.Context, debit, credit interfaces.BalanceChange) error {
	return errors.New("disk on fire")
}

func TestStorageFailureLeavesStateUntouched(t *testing.T) {
	mem := memory.NewStore()
	seedAccount(t, mem, "alice", "100.00")
	seedAccount(t, mem, "bob", "200.00")
	l := NewLedger(&failingStore{mem}, DefaultMaxBalance)

	_, err := l.Deposit(context.Background(), "alice", decimal.RequireFromString("10.00"))
	assert.ErrorIs(t, err, ErrStorageFailure)

	_, err = l.Transfer(context.Background(), "alice", "bob", decimal.RequireFromString("10.00"))
	assert.ErrorIs(t, err, ErrStorageFailure)

	assert.Equal(t, "100.00", balanceOf(t, mem, "alice").StringFixed(2))
	assert.Equal(t, "200.00", balanceOf(t, mem, "bob").StringFixed(2))
	entries, err := mem.EntriesByAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConcurrentOppositeTransfers(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "1000.00")
	seedAccount(t, store, "bob", "1000.00")

	const rounds = 100
	amount := decimal.RequireFromString("1.00")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := l.Transfer(context.Background(), "alice", "bob", amount)
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := l.Transfer(context.Background(), "bob", "alice", amount)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	sum := balanceOf(t, store, "alice").Add(balanceOf(t, store, "bob"))
	assert.Equal(t, "2000.00", sum.StringFixed(2))
	requireBalanceMatchesLog(t, store, "alice")
	requireBalanceMatchesLog(t, store, "bob")
}

func TestConcurrentDepositsSameAccount(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "0.00")

	const workers, rounds = 4, 25
	amount := decimal.RequireFromString("1.00")

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, err := l.Deposit(context.Background(), "alice", amount)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, "100.00", balanceOf(t, store, "alice").StringFixed(2))
	requireBalanceMatchesLog(t, store, "alice")
}

// capturingPublisher records published events.
type capturingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
	err    error
}

func (p *capturingPublisher) Publish(topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return p.err
}

func TestPublishesCommittedEntries(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "100.00")
	seedAccount(t, store, "bob", "100.00")

	pub := &capturingPublisher{}
	l.UsePublisher(pub, "ledger_entry_committed")

	_, err := l.Deposit(context.Background(), "alice", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	_, err = l.Transfer(context.Background(), "alice", "bob", decimal.RequireFromString("5.00"))
	require.NoError(t, err)

	assert.Len(t, pub.events, 3) // one for the deposit, two for the transfer
	for _, topic := range pub.topics {
		assert.Equal(t, "ledger_entry_committed", topic)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	l, store := newTestLedger(t)
	seedAccount(t, store, "alice", "100.00")

	pub := &capturingPublisher{err: errors.New("broker down")}
	l.UsePublisher(pub, "ledger_entry_committed")
	var hookErr error
	l.OnPublishError = func(err error) { hookErr = err }

	_, err := l.Deposit(context.Background(), "alice", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	assert.Error(t, hookErr)
	assert.Equal(t, "110.00", balanceOf(t, store, "alice").StringFixed(2))
}
