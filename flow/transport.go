package flow

import (
	"context"
	"fmt"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/pkg/errors"
)

// AuthorizationRequest is what a transport needs to drive one
// authorization round trip. BuildURL bakes the attempt's state and nonce
// into the authorization URL for whichever redirect URI the transport
// ends up using; transports that run their own listener (loopback)
// substitute their listener address for the default RedirectURI.
type AuthorizationRequest struct {
	RedirectURI string
	BuildURL    func(redirectURI string) string
}

// AuthorizationResponse is the parsed authorization redirect. Either Code
// (authorization-code flow) or AccessToken (inline token flows) is set on
// success; Error carries the provider's error when the user was bounced
// back with one. RedirectURI records the exact URI the response arrived
// on, because the token exchange must present the same string.
type AuthorizationResponse struct {
	Code             string
	State            string
	AccessToken      string
	IDToken          string
	ExpiresIn        int
	Error            string
	ErrorDescription string
	RedirectURI      string
}

// Transport is one interchangeable way of getting an authorization
// response in front of the user: popup, native window, system browser
// with loopback listener, or full-page redirect. The controller walks an
// ordered list of transports and falls through on recoverable failures.
type Transport interface {
	Name() string
	Attempt(ctx context.Context, req *AuthorizationRequest) (*AuthorizationResponse, error)
}

// FailureClass categorizes transport failures. Blocked, closed and
// timeout failures are recoverable: the controller moves on to the next
// transport instead of surfacing them.
type FailureClass string

const (
	FailureBlocked FailureClass = "blocked"
	FailureClosed  FailureClass = "closed"
	FailureTimeout FailureClass = "timeout"
	FailureFatal   FailureClass = "fatal"
)

// TransportError wraps a transport failure with its class so the
// controller can decide between falling through and failing the attempt.
type TransportError struct {
	Transport string
	Class     FailureClass
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport %s: %v", e.Transport, e.Class, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the controller should try the next
// transport in the fallback order.
func (e *TransportError) Recoverable() bool {
	return e.Class != FailureFatal
}

// Sentinel errors host shells return so transports can classify window
// failures.
var (
	ErrPopupBlocked = errors.New("popup blocked by the host")
	ErrWindowClosed = errors.New("window closed before login completed")
)

// classifyHostError maps a host-shell failure onto a TransportError.
func classifyHostError(transport string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return &TransportError{Transport: transport, Class: FailureTimeout, Err: autherrors.ErrAttemptTimeout}
	case errors.Is(err, ErrPopupBlocked):
		return &TransportError{Transport: transport, Class: FailureBlocked, Err: err}
	case errors.Is(err, ErrWindowClosed):
		return &TransportError{Transport: transport, Class: FailureClosed, Err: err}
	default:
		return &TransportError{Transport: transport, Class: FailureFatal, Err: err}
	}
}
