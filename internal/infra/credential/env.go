package credential

import (
	"context"
	"os"
	"strings"

	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
)

var _ port.CredentialProvider = (*EnvProvider)(nil)

// EnvProvider reads the API key from an environment variable on every call.
// It has no selector, so a rejected key stays in place until the process
// environment changes.
type EnvProvider struct {
	variable string
}

func NewEnvProvider(variable string) *EnvProvider {
	return &EnvProvider{variable: variable}
}

func (p *EnvProvider) HasSelectedCredential(context.Context) (bool, error) {
	return strings.TrimSpace(os.Getenv(p.variable)) != "", nil
}

func (p *EnvProvider) OpenCredentialSelector(context.Context) error {
	return port.ErrSelectorUnavailable
}

func (p *EnvProvider) APIKey(context.Context) (string, error) {
	return strings.TrimSpace(os.Getenv(p.variable)), nil
}
