package apiclient

import (
	"fmt"
	"strings"
)

// authErrorFragments are the lowercase markers that identify a response
// as an authentication failure. The upstream API does not reliably
// distinguish auth failures by status code, so classification works on
// the error text.
var authErrorFragments = []string{
	"invalid_api_key",
	"incorrect api key",
	"unauthorized",
	"forbidden",
	"401",
	"403",
}

// IsAuthError reports whether an API error payload describes an
// authentication or authorization failure that a token refresh might
// fix. The payload may be a decoded JSON body, an error, or any other
// value; nil and empty payloads are never auth errors.
func IsAuthError(payload any) bool {
	if payload == nil {
		return false
	}

	message := strings.ToLower(extractMessage(payload))
	if message == "" {
		return false
	}

	for _, fragment := range authErrorFragments {
		if strings.Contains(message, fragment) {
			return true
		}
	}

	// "token expired" / "token is invalid" and variants.
	if strings.Contains(message, "token") &&
		(strings.Contains(message, "expired") || strings.Contains(message, "invalid")) {
		return true
	}
	return false
}

// extractMessage digs the human-readable message out of the payload
// shapes the API is known to produce, falling back to stringifying the
// whole payload.
func extractMessage(payload any) string {
	switch typed := payload.(type) {
	case string:
		return typed
	case error:
		return typed.Error()
	case map[string]any:
		if len(typed) == 0 {
			return ""
		}
		if message, ok := typed["message"].(string); ok && message != "" {
			return message
		}
		if detail, ok := typed["detail"]; ok {
			if message := extractMessage(detail); message != "" {
				return message
			}
		}
		if nested, ok := typed["error"]; ok {
			if message := extractMessage(nested); message != "" {
				return message
			}
		}
		return fmt.Sprintf("%v", typed)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
