package keyring

import "context"

// Store persists credentials and the key-hierarchy record.
type Store interface {
	CreateCredential(ctx context.Context, cred *Credential) error
	FindCredentialByUsername(ctx context.Context, username string) (*Credential, error)
	FindCredential(ctx context.Context, id string) (*Credential, error)
	// UpdateCredentialKeys replaces the verifier and wrapped data key as a
	// single atomic update. Rotation depends on the two fields never being
	// observed out of step.
	UpdateCredentialKeys(ctx context.Context, id, verifier string, wrappedDataKey []byte) error

	FindKeys(ctx context.Context) (*Keys, error)
	// SaveSetup persists the key hierarchy and the first credential as one
	// atomic write. A failure on either side must leave nothing behind, so
	// a retried setup starts from a clean slate.
	SaveSetup(ctx context.Context, keys *Keys, cred *Credential) error
}
