package flow

import (
	"context"

	"github.com/pkg/errors"
)

// ErrRedirectPending signals that a full-page navigation was started and
// the attempt will be completed by Controller.CompleteRedirect when the
// app processes the redirect on its next load.
var ErrRedirectPending = errors.New("redirect navigation started, awaiting app reload")

// RedirectTransport navigates the host's main window to the
// authorization URL. Last resort in the fallback order: it tears down
// the current page, so everything window-based is tried first.
type RedirectTransport struct {
	navigator Navigator
}

var _ Transport = (*RedirectTransport)(nil)

func NewRedirectTransport(navigator Navigator) *RedirectTransport {
	return &RedirectTransport{navigator: navigator}
}

func (t *RedirectTransport) Name() string { return "redirect" }

func (t *RedirectTransport) Attempt(_ context.Context, req *AuthorizationRequest) (*AuthorizationResponse, error) {
	if err := t.navigator.Navigate(req.BuildURL(req.RedirectURI)); err != nil {
		return nil, &TransportError{Transport: t.Name(), Class: FailureFatal, Err: err}
	}
	return nil, ErrRedirectPending
}
