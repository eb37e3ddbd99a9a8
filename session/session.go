package session

// Identity holds the user fields derived from the provider's ID token.
type Identity struct {
	// Subject is the provider's stable user identifier (the sub claim).
	Subject string `json:"subject"`

	// DisplayName is the human-readable name (the name claim).
	DisplayName string `json:"display_name,omitempty"`

	// Email is the user's email or preferred username.
	Email string `json:"email,omitempty"`

	// UserID is the backend's numeric user id. The provider does not
	// always return it on refresh, so the store preserves an existing
	// value when an update omits it.
	UserID int64 `json:"user_id,omitempty"`
}

// Session is the process-wide authentication state: the current bearer
// token and the identity it belongs to. Exactly one Session exists per
// running application instance; it lives in the Store.
type Session struct {
	AccessToken string    `json:"access_token,omitempty"`
	Identity    *Identity `json:"identity,omitempty"`
}

// Authenticated reports whether the session holds both a token and an
// identity. It is derived, never stored, so it can never disagree with
// the fields it is derived from.
func (s Session) Authenticated() bool {
	return s.AccessToken != "" && s.Identity != nil
}
