package flow

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/refresh"
)

// SilentAcquirer turns a stored refresh token into fresh credentials via
// the refresh-token grant. It is the bridge between the interactive flow
// (which seeds the refresh token) and the refresh engine (which calls
// AcquireSilent whenever the access token is expiring).
type SilentAcquirer struct {
	exchanger *Exchanger
	vault     TokenVault

	mu           sync.Mutex
	refreshToken string
}

var _ refresh.CredentialAcquirer = (*SilentAcquirer)(nil)

// NewSilentAcquirer loads any previously persisted refresh token from
// the vault. vault may be nil when persistence is not wanted.
func NewSilentAcquirer(exchanger *Exchanger, vault TokenVault) (*SilentAcquirer, error) {
	if exchanger == nil {
		return nil, errors.New("[NewSilentAcquirer] exchanger is required")
	}

	acquirer := &SilentAcquirer{exchanger: exchanger, vault: vault}
	if vault != nil {
		token, err := vault.LoadRefreshToken()
		if err != nil && !autherrors.Is(err, autherrors.ErrNoStoredSession) {
			log.Warn().Err(err).Msg("Could not load persisted refresh token")
		}
		acquirer.refreshToken = token
	}
	return acquirer, nil
}

// AcquireSilent exchanges the held refresh token for a new access token.
// Providers rotate refresh tokens; when a new one arrives it replaces
// the held token and is persisted, otherwise the old one stays valid.
func (a *SilentAcquirer) AcquireSilent(ctx context.Context) (*refresh.Credential, error) {
	a.mu.Lock()
	refreshToken := a.refreshToken
	a.mu.Unlock()

	if refreshToken == "" {
		return nil, errors.Wrap(autherrors.ErrSilentRefreshFailed, "[SilentAcquirer.AcquireSilent] no refresh token held")
	}

	tokenResp, err := a.exchanger.RefreshGrant(ctx, refreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "[SilentAcquirer.AcquireSilent]")
	}

	if tokenResp.RefreshToken != "" && tokenResp.RefreshToken != refreshToken {
		a.SetRefreshToken(tokenResp.RefreshToken)
	}

	return &refresh.Credential{
		AccessToken: tokenResp.AccessToken,
		Identity:    identityFromTokens(tokenResp.IDToken, tokenResp.AccessToken),
		ExpiresIn:   tokenResp.ExpiresIn,
	}, nil
}

// SetRefreshToken replaces the held refresh token and persists it.
func (a *SilentAcquirer) SetRefreshToken(token string) {
	a.mu.Lock()
	a.refreshToken = token
	a.mu.Unlock()

	if a.vault != nil && token != "" {
		if err := a.vault.SaveRefreshToken(token); err != nil {
			log.Warn().Err(err).Msg("Could not persist refresh token")
		}
	}
}

// Clear drops the held refresh token and removes it from the vault.
func (a *SilentAcquirer) Clear() {
	a.mu.Lock()
	a.refreshToken = ""
	a.mu.Unlock()

	if a.vault != nil {
		if err := a.vault.DeleteRefreshToken(); err != nil {
			log.Warn().Err(err).Msg("Could not remove persisted refresh token")
		}
	}
}
