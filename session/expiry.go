package session

import "github.com/rs/zerolog/log"

// ExpiryHandler turns an unrecoverable refresh failure into the single
// user-visible outcome: a cleared session plus a login-required signal.
// Every internal failure path funnels through here so the user experience
// is uniform regardless of which error triggered it.
type ExpiryHandler struct {
	store         *Store
	loginRequired func()
}

// NewExpiryHandler wires the handler to the store and the host UI's
// "navigate to login" action. loginRequired may be nil in tests.
func NewExpiryHandler(store *Store, loginRequired func()) *ExpiryHandler {
	return &ExpiryHandler{store: store, loginRequired: loginRequired}
}

// OnRefreshFailure clears the store and signals the host to show the
// login screen. Idempotent: calling it when already logged out still
// re-issues the signal and never fails.
func (h *ExpiryHandler) OnRefreshFailure() {
	if h.store.Read().Authenticated() {
		log.Warn().Msg("Session expired, clearing credentials")
	}
	h.store.Clear()
	if h.loginRequired != nil {
		h.loginRequired()
	}
}
