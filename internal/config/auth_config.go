package config

import (
	"strconv"
	"strings"
	"time"
)

// AuthConfig exposes the identity-provider settings for the interactive
// and silent token flows.
type AuthConfig interface {
	// GetClientID returns the OAuth2 client ID registered with the provider.
	GetClientID() string

	// GetAuthority returns the OIDC issuer URL used for endpoint discovery
	// (e.g. "https://login.microsoftonline.com/<tenant>/v2.0"). When empty,
	// the tenant ID is used to derive the Azure AD endpoints directly.
	GetAuthority() string

	// GetTenantID returns the directory/tenant identifier.
	GetTenantID() string

	// GetScopes returns the scopes requested on every authorization and
	// token request.
	GetScopes() []string

	// GetRedirectURI returns the redirect URI registered for window-based
	// transports. The loopback transport substitutes its own listener URI.
	GetRedirectURI() string

	// GetLoopbackAddr returns the listen address for the system-browser
	// loopback transport. A ":0" port selects an ephemeral port.
	GetLoopbackAddr() string

	GetLoginHint() string
	GetDomainHint() string

	// GetExpiryBuffer returns how long before the token's exp claim the
	// token is already treated as expiring.
	GetExpiryBuffer() time.Duration

	// GetInteractiveTimeout bounds a window-based login attempt.
	GetInteractiveTimeout() time.Duration

	// GetBrowserTimeout bounds a system-browser login attempt. Longer than
	// the window timeout because the user has to switch applications.
	GetBrowserTimeout() time.Duration

	// GetRefreshInterval returns the period of the background refresh timer.
	GetRefreshInterval() time.Duration
}

type Auth struct{}

var _ AuthConfig = Auth{}

func (Auth) GetClientID() string {
	return GetEnv("AUTH_CLIENT_ID", "")
}

func (Auth) GetAuthority() string {
	return GetEnv("AUTH_AUTHORITY", "")
}

func (Auth) GetTenantID() string {
	return GetEnv("AUTH_TENANT_ID", "common")
}

func (Auth) GetScopes() []string {
	raw := GetEnv("AUTH_SCOPES", "openid profile email offline_access")
	return strings.Fields(raw)
}

func (Auth) GetRedirectURI() string {
	return GetEnv("AUTH_REDIRECT_URI", "http://localhost:5173/auth/callback")
}

func (Auth) GetLoopbackAddr() string {
	return GetEnv("AUTH_LOOPBACK_ADDR", "127.0.0.1:0")
}

func (Auth) GetLoginHint() string {
	return GetEnv("AUTH_LOGIN_HINT", "")
}

func (Auth) GetDomainHint() string {
	return GetEnv("AUTH_DOMAIN_HINT", "")
}

func (Auth) GetExpiryBuffer() time.Duration {
	return getDuration("AUTH_EXPIRY_BUFFER_SECONDS", 5*time.Minute)
}

func (Auth) GetInteractiveTimeout() time.Duration {
	return getDuration("AUTH_INTERACTIVE_TIMEOUT_SECONDS", 2*time.Minute)
}

func (Auth) GetBrowserTimeout() time.Duration {
	return getDuration("AUTH_BROWSER_TIMEOUT_SECONDS", 5*time.Minute)
}

func (Auth) GetRefreshInterval() time.Duration {
	return getDuration("AUTH_REFRESH_INTERVAL_SECONDS", 4*time.Minute)
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
