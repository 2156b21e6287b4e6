package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// SUNGAZER_ENCRYPTION_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set SUNGAZER_ENCRYPTION_KEY")

// ErrCredentialNotFound is returned when no credential is stored for a vendor.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore defines the driven port for encrypted vendor credential
// persistence. The adapter encrypts and decrypts; this interface works with
// plaintext at the domain boundary.
type CredentialStore interface {
	// Set stores or replaces the credential for the given vendor.
	// Returns ErrEncryptionKeyNotSet if the adapter has no encryption key.
	Set(ctx context.Context, vendor model.Vendor, secret string) error

	// Get retrieves the credential for the given vendor.
	// Returns ErrCredentialNotFound if none is stored.
	Get(ctx context.Context, vendor model.Vendor) (model.Credential, error)

	// List returns all stored credentials ordered by vendor.
	List(ctx context.Context) ([]model.Credential, error)

	// Delete removes the credential for the given vendor.
	Delete(ctx context.Context, vendor model.Vendor) error
}
