package flow

import (
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/token/jwt"
	"github.com/rs/zerolog/log"
)

// identityFromTokens derives the signed-in identity from the id_token
// when present, falling back to the access token's claims. Returns nil
// when neither token is decodable, which lets the store keep whatever
// identity it already holds.
// decodeNonce extracts the nonce claim from an id_token so completions
// can check it against the attempt's nonce.
func decodeNonce(idToken string) (string, error) {
	claims, err := jwt.Decode(idToken)
	if err != nil {
		return "", err
	}
	return claims.Nonce, nil
}

func identityFromTokens(idToken, accessToken string) *session.Identity {
	for _, raw := range []string{idToken, accessToken} {
		if raw == "" {
			continue
		}
		claims, err := jwt.Decode(raw)
		if err != nil {
			log.Debug().Err(err).Msg("Token not decodable for identity claims")
			continue
		}
		return &session.Identity{
			Subject:     claims.Subject,
			DisplayName: claims.DisplayName,
			Email:       claims.Email,
			UserID:      claims.UserID,
		}
	}
	return nil
}
