package flow

import "context"

// PopupTransport drives the login through a popup window opened by the
// host. First in the default fallback order; popup-blocked and
// window-closed failures fall through to the next transport.
type PopupTransport struct {
	popups PopupOpener
}

var _ Transport = (*PopupTransport)(nil)

func NewPopupTransport(popups PopupOpener) *PopupTransport {
	return &PopupTransport{popups: popups}
}

func (t *PopupTransport) Name() string { return "popup" }

func (t *PopupTransport) Attempt(ctx context.Context, req *AuthorizationRequest) (*AuthorizationResponse, error) {
	redirectURL, err := t.popups.OpenPopup(ctx, req.BuildURL(req.RedirectURI))
	if err != nil {
		return nil, classifyHostError(t.Name(), err)
	}
	resp, err := ParseAuthorizationResponse(redirectURL)
	if err != nil {
		return nil, err
	}
	resp.RedirectURI = req.RedirectURI
	return resp, nil
}
