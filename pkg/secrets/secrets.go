// Package secrets resolves upstream credentials from Vault with an
// environment fallback.
package secrets

import "context"

// Manager provides access to secrets
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// Well-known secret keys
const (
	ExecutionServiceToken = "EXECUTION_SERVICE_TOKEN"
	WebhookToken          = "WEBHOOK_TOKEN"
)

// Error represents a secrets management error
type Error string

// Error implements the error interface
func (e Error) Error() string {
	return string(e)
}

// NewError creates a new Error
func NewError(text string) Error {
	return Error(text)
}
