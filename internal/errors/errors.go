package errors

import (
	"errors"
	"fmt"
)

// Common error types for the token lifecycle client
var (
	// Token errors
	ErrMalformedToken = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")

	// Silent refresh errors
	ErrSilentRefreshFailed = errors.New("silent refresh failed")
	ErrLoginRequired       = errors.New("login required")

	// Interactive flow errors
	ErrStateMismatch       = errors.New("authorization state mismatch")
	ErrTransportFailed     = errors.New("interactive transport failed")
	ErrAllTransportsFailed = errors.New("all interactive transports failed")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrAttemptTimeout      = errors.New("interactive attempt timed out")
	ErrNoPendingAttempt    = errors.New("no pending login attempt")

	// Downstream API errors
	ErrReauthenticationRequired = errors.New("re-authentication required")

	// Persistence errors
	ErrNoStoredSession = errors.New("no stored session")

	// General errors
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
