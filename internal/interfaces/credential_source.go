package interfaces

import "context"

// CredentialSource is the boundary to the external credential store. The
// confirmation gate compares the supplied code against the returned value;
// nothing in this module ever creates or mutates credentials.
type CredentialSource interface {
	Credential(ctx context.Context, accountID string) (string, error)
}
