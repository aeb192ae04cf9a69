package port

import (
	"context"
	"errors"
)

// ErrSelectorUnavailable is returned by providers whose key cannot be
// re-selected at runtime.
var ErrSelectorUnavailable = errors.New("credential selector unavailable")

// CredentialProvider supplies the user-selected API key. APIKey must be read
// fresh on every call since the selection can change between calls.
type CredentialProvider interface {
	HasSelectedCredential(ctx context.Context) (bool, error)
	OpenCredentialSelector(ctx context.Context) error
	APIKey(ctx context.Context) (string, error)
}

type CredentialSelector interface {
	SetAPIKey(ctx context.Context, apiKey string) error
}
