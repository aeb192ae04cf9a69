package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const geminiProvider = "gemini"

var (
	_ port.CredentialProvider = (*CredentialStore)(nil)
	_ port.CredentialSelector = (*CredentialStore)(nil)
)

// CredentialStore keeps the selected Gemini API key in integration_tokens.
// Every read goes to the database so a newly selected key is picked up by
// in-flight generations on their next remote call.
type CredentialStore struct {
	pool     *pgxpool.Pool
	provider string
}

func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool, provider: geminiProvider}
}

func (s *CredentialStore) HasSelectedCredential(ctx context.Context) (bool, error) {
	var selected bool
	err := s.pool.QueryRow(ctx,
		`SELECT token <> '' AND invalidated_at IS NULL FROM integration_tokens WHERE provider=$1`,
		s.provider,
	).Scan(&selected)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check credential: %w", err)
	}
	return selected, nil
}

// OpenCredentialSelector invalidates the current key; the user has to select
// one again before the next generation starts.
func (s *CredentialStore) OpenCredentialSelector(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE integration_tokens SET invalidated_at=$2, updated_at=$2 WHERE provider=$1`,
		s.provider, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("invalidate credential: %w", err)
	}
	return nil
}

// APIKey returns the stored key, or "" when none is selected.
func (s *CredentialStore) APIKey(ctx context.Context) (string, error) {
	var token string
	err := s.pool.QueryRow(ctx,
		`SELECT token FROM integration_tokens WHERE provider=$1 AND invalidated_at IS NULL`,
		s.provider,
	).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	return token, nil
}

func (s *CredentialStore) SetAPIKey(ctx context.Context, apiKey string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO integration_tokens (provider, token, selected_at, invalidated_at, updated_at)
		VALUES ($1, $2, $3, NULL, $3)
		ON CONFLICT (provider) DO UPDATE
		SET token=EXCLUDED.token, selected_at=EXCLUDED.selected_at, invalidated_at=NULL, updated_at=EXCLUDED.updated_at`,
		s.provider, apiKey, now,
	)
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}
