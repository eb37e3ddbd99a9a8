package flow

import "context"

// NativeWindowTransport asks the host process to open a native window
// and hand the redirect URL back over its inter-process channel. Used in
// desktop-shell contexts where an in-page popup is unavailable.
type NativeWindowTransport struct {
	windows WindowOpener
}

var _ Transport = (*NativeWindowTransport)(nil)

func NewNativeWindowTransport(windows WindowOpener) *NativeWindowTransport {
	return &NativeWindowTransport{windows: windows}
}

func (t *NativeWindowTransport) Name() string { return "native-window" }

func (t *NativeWindowTransport) Attempt(ctx context.Context, req *AuthorizationRequest) (*AuthorizationResponse, error) {
	redirectURL, err := t.windows.OpenAuthWindow(ctx, req.BuildURL(req.RedirectURI))
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
