// Package postgres is the durable LedgerStore. Composite operations run in
// serializable transactions so a balance write and its log entries commit
// as one unit or not at all.
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/corebank/ledger/internal/interfaces"
	"github.com/corebank/ledger/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the given DSN and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	const query = `INSERT INTO accounts (id, balance, credential_ref, created_at)
	VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query, account.ID, account.Balance, account.CredentialRef, account.CreatedAt)
	return err
}

func (s *Store) Account(ctx context.Context, id string) (models.Account, error) {
	const query = `SELECT id, balance, credential_ref, created_at FROM accounts WHERE id = $1`

	var acct models.Account
	err := s.db.QueryRowContext(ctx, query, id).Scan(&acct.ID, &acct.Balance, &acct.CredentialRef, &acct.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Account{}, interfaces.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	return acct, nil
}

func (s *Store) Accounts(ctx context.Context) ([]models.Account, error) {
	const query = `SELECT id, balance, credential_ref, created_at FROM accounts ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var acct models.Account
		if err := rows.Scan(&acct.ID, &acct.Balance, &acct.CredentialRef, &acct.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func (s *Store) ApplyEntry(ctx context.Context, change interfaces.BalanceChange) error {
	return s.transact(ctx, func(tx *sql.Tx) error {
		return applyChange(ctx, tx, change)
	})
}

func (s *Store) ApplyTransfer(ctx context.Context, debit, credit interfaces.BalanceChange) error {
	return s.transact(ctx, func(tx *sql.Tx) error {
		if err := applyChange(ctx, tx, debit); err != nil {
			return err
		}
		return applyChange(ctx, tx, credit)
	})
}

func (s *Store) transact(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func applyChange(ctx context.Context, tx *sql.Tx, change interfaces.BalanceChange) error {
	const updateBalance = `UPDATE accounts SET balance = $2 WHERE id = $1`

	res, err := tx.ExecContext(ctx, updateBalance, change.AccountID, change.NewBalance)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrAccountNotFound
	}

	const insertEntry = `INSERT INTO ledger_entries (id, account_id, kind, amount, details, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	e := change.Entry
	_, err = tx.ExecContext(ctx, insertEntry, e.ID, e.AccountID, string(e.Kind), e.Amount, e.Details, e.CreatedAt)
	return err
}

func (s *Store) EntriesByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	const query = `SELECT id, account_id, kind, amount, details, created_at FROM ledger_entries
	WHERE account_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var kind string
		if err := rows.Scan(&entry.ID, &entry.AccountID, &kind, &entry.Amount, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Kind = models.EntryKind(kind)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Credential reads the stored confirmation credential for an account.
func (s *Store) Credential(ctx context.Context, accountID string) (string, error) {
	const query = `SELECT credential_ref FROM accounts WHERE id = $1`

	var cred string
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(&cred)
	if err == sql.ErrNoRows {
		return "", interfaces.ErrAccountNotFound
	}
	if err != nil {
		return "", err
	}
	return cred, nil
}

var _ interfaces.LedgerStore = (*Store)(nil)
var _ interfaces.CredentialSource = (*Store)(nil)
