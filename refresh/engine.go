package refresh

import (
	"context"
	"time"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/token/jwt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// refreshKey is the singleflight key: there is only ever one logical
// refresh for the process-wide session.
const refreshKey = "silent-refresh"

const defaultAcquireTimeout = 30 * time.Second

// Credential is the result of a silent token acquisition. Identity may be
// nil when the provider only returned a bare token.
type Credential struct {
	AccessToken string
	Identity    *session.Identity
	ExpiresIn   int
}

// CredentialAcquirer obtains a fresh token from a cached identity or
// refresh grant without user interaction.
type CredentialAcquirer interface {
	AcquireSilent(ctx context.Context) (*Credential, error)
}

// Engine hands out valid bearer tokens, refreshing silently when the
// stored token is expiring. Concurrent callers that arrive while a
// refresh is in flight all await the same underlying acquisition; there
// is never more than one network-level refresh active at a time. Both
// the background timer and on-demand (failed API call) refreshes go
// through GetValidToken, never a separate path.
type Engine struct {
	store          *session.Store
	acquirer       CredentialAcquirer
	expiry         *session.ExpiryHandler
	buffer         time.Duration
	acquireTimeout time.Duration
	group          singleflight.Group
}

// EngineOption defines a function type to modify the Engine instance.
type EngineOption func(*Engine)

// WithExpiryBuffer overrides how long before exp a token counts as expiring.
func WithExpiryBuffer(buffer time.Duration) EngineOption {
	return func(e *Engine) {
		e.buffer = buffer
	}
}

// WithAcquireTimeout overrides the upper bound on a single
// silent acquisition, so a hung provider call cannot wedge every future
// GetValidToken behind a stuck singleflight entry.
func WithAcquireTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) {
		e.acquireTimeout = timeout
	}
}

// NewEngine initializes the refresh engine with its required dependencies.
func NewEngine(store *session.Store, acquirer CredentialAcquirer, expiry *session.ExpiryHandler, options ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("[NewEngine] store is required")
	}
	if acquirer == nil {
		return nil, errors.New("[NewEngine] acquirer is required")
	}
	if expiry == nil {
		return nil, errors.New("[NewEngine] expiry handler is required")
	}

	engine := &Engine{
		store:          store,
		acquirer:       acquirer,
		expiry:         expiry,
		buffer:         jwt.DefaultExpiryBuffer,
		acquireTimeout: defaultAcquireTimeout,
	}
	for _, opt := range options {
		opt(engine)
	}
	return engine, nil
}

// GetValidToken returns a bearer token that is not within the expiry
// buffer, refreshing silently if needed. An absent stored token is
// treated the same as an expiring one: a refresh is attempted rather
// than short-circuiting to failure. On unrecoverable refresh failure the
// session is cleared, the login-required signal is raised and
// ErrLoginRequired is returned.
func (e *Engine) GetValidToken(ctx context.Context) (string, error) {
	current := e.store.Read()
	if current.AccessToken != "" && !jwt.IsExpiringSoon(current.AccessToken, e.buffer) {
		return current.AccessToken, nil
	}

	result, err, _ := e.group.Do(refreshKey, func() (any, error) {
		return e.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// ForceRefresh refreshes regardless of the stored token's apparent
// freshness. Used when the API rejects a token that has not yet hit its
// expiry buffer, such as after server-side revocation. Concurrent calls
// still share a single acquisition.
func (e *Engine) ForceRefresh(ctx context.Context) (string, error) {
	result, err, _ := e.group.Do(refreshKey, func() (any, error) {
		return e.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (e *Engine) refresh(ctx context.Context) (string, error) {
	// Detached from the triggering caller: other callers share this
	// result, so one caller's cancellation must not abort it. The timeout
	// keeps the invariant "exactly one in-flight refresh" from becoming
	// "exactly one, forever stuck".
	acquireCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.acquireTimeout)
	defer cancel()

	credential, err := e.acquirer.AcquireSilent(acquireCtx)
	if err != nil || credential == nil || credential.AccessToken == "" {
		if err != nil {
			log.Warn().Err(err).Msg("Silent token refresh failed")
		} else {
			log.Warn().Msg("Silent token refresh returned no credential")
		}
		e.expiry.OnRefreshFailure()
		return "", errors.Wrap(autherrors.ErrLoginRequired, "[Engine.refresh] silent credential acquisition failed")
	}

	e.store.SetToken(credential.AccessToken, credential.Identity)
	log.Debug().Msg("Access token refreshed silently")
	return credential.AccessToken, nil
}

// RunPeriodic refreshes the token on a timer while a session is
// authenticated. It blocks until ctx is cancelled and shares the same
// deduplication path as on-demand callers.
func (e *Engine) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.store.Read().Authenticated() {
				continue
			}
			if _, err := e.GetValidToken(ctx); err != nil {
				log.Warn().Err(err).Msg("Background token refresh failed")
			}
		}
	}
}
