package jwt

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/pkg/errors"
)

// DefaultExpiryBuffer is how long before the exp claim a token is already
// treated as expiring, so callers refresh before the provider rejects it.
const DefaultExpiryBuffer = 5 * time.Minute

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims is the subset of bearer-token claims this client cares about,
// extracted without signature verification. Verification belongs to the
// resource server; the client only needs the expiry and identity hints.
type Claims struct {
	Subject     string    // sub
	DisplayName string    // name
	Email       string    // email or preferred_username
	UserID      int64     // user_id (numeric, provider specific)
	Nonce       string    // nonce (ID tokens only)
	ExpiresAt   time.Time // exp; zero when the claim is absent
}

// HasExpiry reports whether the token carried a numeric exp claim.
func (c *Claims) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// Decode parses the token payload without verifying the signature and
// returns a tagged result: either usable claims or ErrMalformedToken.
// It never panics; any decode or parse failure classifies as malformed.
func Decode(rawToken string) (*Claims, error) {
	if rawToken == "" {
		return nil, errors.Wrap(autherrors.ErrMalformedToken, "[jwt.Decode] empty token")
	}

	unverified, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(autherrors.ErrMalformedToken, err.Error())
	}

	mapClaims, ok := unverified.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.Wrap(autherrors.ErrMalformedToken, "[jwt.Decode] claims are not a JSON object")
	}

	claims := &Claims{}
	claims.Subject, _ = mapClaims["sub"].(string)
	claims.DisplayName, _ = mapClaims["name"].(string)
	claims.Nonce, _ = mapClaims["nonce"].(string)

	if email, ok := mapClaims["email"].(string); ok && email != "" {
		claims.Email = email
	} else if username, ok := mapClaims["preferred_username"].(string); ok {
		claims.Email = username
	}

	if userID, ok := mapClaims["user_id"].(float64); ok {
		claims.UserID = int64(userID)
	}

	// A missing or non-numeric exp leaves ExpiresAt zero rather than
	// failing the whole decode.
	if expiresAt, err := mapClaims.GetExpirationTime(); err == nil && expiresAt != nil {
		claims.ExpiresAt = expiresAt.Time
	}

	return claims, nil
}

// IsExpiringSoon reports whether the token should be refreshed. Malformed
// tokens and tokens without expiry information classify as expiring, so the
// caller fails safe toward refreshing instead of trusting an unparseable
// token. This function never returns an error.
func IsExpiringSoon(rawToken string, buffer time.Duration) bool {
	claims, err := Decode(rawToken)
	if err != nil {
		return true
	}
	if !claims.HasExpiry() {
		return true
	}
	return NowTimeFunc().After(claims.ExpiresAt.Add(-buffer))
}
