package apiclient_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-client/apiclient"
)

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    bool
	}{
		{"nil payload", nil, false},
		{"empty object", map[string]any{}, false},
		{"plain string unauthorized", "Unauthorized", true},
		{"plain string unrelated", "record not found", false},
		{"top-level message", map[string]any{"message": "Invalid_API_Key provided"}, true},
		{"detail message", map[string]any{"detail": map[string]any{"message": "Forbidden resource"}}, true},
		{"detail error message", map[string]any{"detail": map[string]any{"error": map[string]any{"message": "incorrect API key"}}}, true},
		{"error object message", map[string]any{"error": map[string]any{"message": "status 401 from upstream"}}, true},
		{"error string", map[string]any{"error": "403 forbidden"}, true},
		{"token expired", map[string]any{"message": "Bearer token expired"}, true},
		{"token invalid", map[string]any{"detail": map[string]any{"message": "token is invalid"}}, true},
		{"token unrelated", map[string]any{"message": "token quota exceeded"}, false},
		{"error value", errors.New("upstream returned unauthorized"), true},
		{"non-auth error value", errors.New("connection refused"), false},
		{"server error payload", map[string]any{"message": "internal server error"}, false},
		{"validation payload", map[string]any{"detail": map[string]any{"message": "field name is required"}}, false},
		{"stringified fallback", map[string]any{"status": "401"}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, apiclient.IsAuthError(test.payload))
		})
	}
}
