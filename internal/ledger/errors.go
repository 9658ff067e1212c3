package ledger

import "errors"

// Rejection kinds returned by the ledger core. Every failure path returns
// one of these (possibly wrapped with context); a rejected operation leaves
// balances and the entry log untouched.
var (
	// ErrInvalidAmount: the amount is not positive after rounding to two
	// decimal places.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds: a withdrawal or transfer exceeds the sender's
	// balance.
	ErrInsufficientFunds = errors.New("insufficient balance")

	// ErrLimitExceeded: the credited account would exceed the configured
	// maximum balance.
	ErrLimitExceeded = errors.New("account balance limit exceeded")

	// ErrUnknownAccount: the acting account does not exist.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrUnknownRecipient: the transfer recipient does not exist or is the
	// sender itself.
	ErrUnknownRecipient = errors.New("unknown recipient")

	// ErrStorageFailure: the underlying store aborted; no partial effect is
	// observable.
	ErrStorageFailure = errors.New("storage failure")
)
