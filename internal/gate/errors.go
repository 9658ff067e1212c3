package gate

import "errors"

var (
	// ErrNoPendingOperation: Confirm was called with nothing staged.
	ErrNoPendingOperation = errors.New("no operation pending")

	// ErrInvalidCredential: the supplied code did not match the stored one.
	// The staged operation is consumed either way.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrUnknownAction: the staged action is not deposit, withdraw or send.
	ErrUnknownAction = errors.New("unknown action")
)
