package flow

import (
	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

const refreshTokenKey = "refresh-token"

// TokenVault stores the refresh token across restarts.
type TokenVault interface {
	SaveRefreshToken(token string) error
	LoadRefreshToken() (string, error)
	DeleteRefreshToken() error
}

// KeyringVault keeps the refresh token in the OS credential store.
type KeyringVault struct {
	service string
}

var _ TokenVault = (*KeyringVault)(nil)

func NewKeyringVault(service string) (*KeyringVault, error) {
	if service == "" {
		return nil, errors.New("[NewKeyringVault] service name is required")
	}
	return &KeyringVault{service: service}, nil
}

func (v *KeyringVault) SaveRefreshToken(token string) error {
	if err := keyring.Set(v.service, refreshTokenKey, token); err != nil {
		return errors.Wrap(err, "[KeyringVault.SaveRefreshToken]")
	}
	return nil
}

func (v *KeyringVault) LoadRefreshToken() (string, error) {
	token, err := keyring.Get(v.service, refreshTokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", autherrors.Wrapf(autherrors.ErrNoStoredSession, "[KeyringVault.LoadRefreshToken]")
		}
		return "", errors.Wrap(err, "[KeyringVault.LoadRefreshToken]")
	}
	return token, nil
}

func (v *KeyringVault) DeleteRefreshToken() error {
	if err := keyring.Delete(v.service, refreshTokenKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errors.Wrap(err, "[KeyringVault.DeleteRefreshToken]")
	}
	return nil
}
