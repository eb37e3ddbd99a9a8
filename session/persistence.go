package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Persistence stores the durable session (token plus identity) across
// application restarts, so a returning user only re-authenticates
// interactively when the token is no longer refreshable. Ephemeral
// login-attempt artifacts (state, nonce) are never persisted.
type Persistence interface {
	Save(Session) error
	Load() (Session, error)
	Delete() error
}

// FilePersistence stores the session as JSON in a single file, written
// atomically (temp file + rename) with owner-only permissions.
type FilePersistence struct {
	path string
}

var _ Persistence = (*FilePersistence)(nil)

func NewFilePersistence(path string) *FilePersistence {
	return &FilePersistence{path: path}
}

func (p *FilePersistence) Save(sess Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[FilePersistence.Save] marshal session")
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return errors.Wrap(err, "[FilePersistence.Save] create data folder")
	}

	tempFile := p.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return errors.Wrap(err, "[FilePersistence.Save] write temp file")
	}
	if err := os.Rename(tempFile, p.path); err != nil {
		_ = os.Remove(tempFile)
		return errors.Wrap(err, "[FilePersistence.Save] rename temp file")
	}
	return nil
}

func (p *FilePersistence) Load() (Session, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, autherrors.ErrNoStoredSession
		}
		return Session{}, errors.Wrap(err, "[FilePersistence.Load] read file")
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, errors.Wrap(err, "[FilePersistence.Load] parse session file")
	}
	if sess.AccessToken == "" {
		return Session{}, autherrors.ErrNoStoredSession
	}
	return sess, nil
}

func (p *FilePersistence) Delete() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FilePersistence.Delete] remove file")
	}
	return nil
}

// PersistOnChange subscribes to the store and mirrors every write into
// the given persistence: sets are saved, clears delete the stored copy.
// The returned function removes the subscription.
func PersistOnChange(store *Store, p Persistence) (unsubscribe func()) {
	return store.Subscribe(func(sess Session) {
		if sess.AccessToken == "" {
			if err := p.Delete(); err != nil {
				log.Err(err).Msg("Failed to delete persisted session")
			}
			return
		}
		if err := p.Save(sess); err != nil {
			log.Err(err).Msg("Failed to persist session")
		}
	})
}
