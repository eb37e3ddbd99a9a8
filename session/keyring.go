package session

import (
	"encoding/json"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"
)

const keyringSessionKey = "session"

// KeyringPersistence stores the session in the OS credential manager
// instead of a plain file, keeping the bearer token out of the
// filesystem on hosts that have a keyring.
type KeyringPersistence struct {
	service string
}

var _ Persistence = (*KeyringPersistence)(nil)

func NewKeyringPersistence(service string) *KeyringPersistence {
	return &KeyringPersistence{service: service}
}

func (p *KeyringPersistence) Save(sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "[KeyringPersistence.Save] marshal session")
	}
	if err := keyring.Set(p.service, keyringSessionKey, string(data)); err != nil {
		return errors.Wrap(err, "[KeyringPersistence.Save] keyring set")
	}
	return nil
}

func (p *KeyringPersistence) Load() (Session, error) {
	raw, err := keyring.Get(p.service, keyringSessionKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Session{}, autherrors.ErrNoStoredSession
		}
		return Session{}, errors.Wrap(err, "[KeyringPersistence.Load] keyring get")
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return Session{}, errors.Wrap(err, "[KeyringPersistence.Load] parse stored session")
	}
	if sess.AccessToken == "" {
		return Session{}, autherrors.ErrNoStoredSession
	}
	return sess, nil
}

func (p *KeyringPersistence) Delete() error {
	if err := keyring.Delete(p.service, keyringSessionKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errors.Wrap(err, "[KeyringPersistence.Delete] keyring delete")
	}
	return nil
}
