package flow

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const loopbackCallbackPath = "/auth/callback"

const loginCompletePage = `<!DOCTYPE html><html><body>
<p>Login complete. You can close this window and return to the application.</p>
</body></html>`

// LoopbackTransport opens the authorization URL in the user's default
// browser and captures the redirect on a short-lived local HTTP
// listener. The listener's own address becomes the redirect URI for this
// attempt, and the same string is recorded on the response so the token
// exchange presents it unchanged.
type LoopbackTransport struct {
	browser BrowserOpener
	addr    string
}

var _ Transport = (*LoopbackTransport)(nil)

// NewLoopbackTransport listens on addr ("127.0.0.1:0" selects an
// ephemeral port).
func NewLoopbackTransport(browser BrowserOpener, addr string) *LoopbackTransport {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	return &LoopbackTransport{browser: browser, addr: addr}
}

func (t *LoopbackTransport) Name() string { return "system-browser" }

// InvolvesAppSwitch marks this transport as needing the longer timeout:
// the user has to switch to the browser and back.
func (t *LoopbackTransport) InvolvesAppSwitch() bool { return true }

func (t *LoopbackTransport) Attempt(ctx context.Context, req *AuthorizationRequest) (*AuthorizationResponse, error) {
	listener, err := net.Listen("tcp", t.addr)
	if err != nil {
		return nil, &TransportError{
			Transport: t.Name(),
			Class:     FailureBlocked,
			Err:       errors.Wrap(err, "loopback listener"),
		}
	}

	redirectURI := fmt.Sprintf("http://%s%s", listener.Addr().String(), loopbackCallbackPath)

	// One-shot capture: the first callback wins, later hits are rejected.
	captured := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+loopbackCallbackPath, func(w http.ResponseWriter, r *http.Request) {
		select {
		case captured <- r.URL.String():
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(loginCompletePage))
		default:
			http.Error(w, "login already completed", http.StatusConflict)
		}
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Err(err).Msg("Loopback callback server stopped unexpectedly")
		}
	}()
	// Closing the server releases the listener on every exit path.
	defer server.Close()

	log.Info().Str("redirect_uri", redirectURI).Msg("Starting loopback login")
	if err := t.browser.OpenSystemBrowser(req.BuildURL(redirectURI)); err != nil {
		return nil, &TransportError{
			Transport: t.Name(),
			Class:     FailureBlocked,
			Err:       errors.Wrap(err, "open system browser"),
		}
	}

	select {
	case <-ctx.Done():
		return nil, classifyHostError(t.Name(), ctx.Err())
	case redirectURL := <-captured:
		resp, err := ParseAuthorizationResponse(redirectURL)
		if err != nil {
			return nil, err
		}
		resp.RedirectURI = redirectURI
		return resp, nil
	}
}
