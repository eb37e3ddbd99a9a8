package flow

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/pkg/errors"
)

// TokenResponse is the token endpoint's success payload (RFC 6749 §5.1
// plus the OIDC id_token).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Error is the token endpoint's error payload.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPDoer is satisfied by go-httpretry's client and by test doubles.
type HTTPDoer interface {
	DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error)
}

// NewRetryHTTPClient builds the retrying HTTP client used for token
// endpoint and API calls.
func NewRetryHTTPClient() (*retry.Client, error) {
	base := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	return retry.NewBackgroundClient(retry.WithHTTPClient(base))
}

// Exchanger talks to the provider's token endpoint for both the
// authorization-code and refresh-token grants.
type Exchanger struct {
	httpClient HTTPDoer
	tokenURL   string
	clientID   string
	scopes     []string
}

func NewExchanger(httpClient HTTPDoer, tokenURL, clientID string, scopes []string) (*Exchanger, error) {
	if httpClient == nil {
		return nil, errors.New("[NewExchanger] httpClient is required")
	}
	if tokenURL == "" {
		return nil, errors.New("[NewExchanger] tokenURL is required")
	}
	if clientID == "" {
		return nil, errors.New("[NewExchanger] clientID is required")
	}
	return &Exchanger{
		httpClient: httpClient,
		tokenURL:   tokenURL,
		clientID:   clientID,
		scopes:     scopes,
	}, nil
}

// ExchangeCode exchanges an authorization code for tokens. redirectURI
// must be the exact string presented to the authorization endpoint; the
// provider hard-fails on any mismatch.
func (x *Exchanger) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", x.clientID)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("scope", strings.Join(x.scopes, " "))
	return x.post(ctx, form)
}

// RefreshGrant exchanges a refresh token for a new access token.
func (x *Exchanger) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", x.clientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("scope", strings.Join(x.scopes, " "))
	return x.post(ctx, form)
}

func (x *Exchanger) post(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "[Exchanger.post] create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := x.httpClient.DoWithContext(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "[Exchanger.post] token request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "[Exchanger.post] read response")
	}

	if resp.StatusCode != http.StatusOK {
		var providerErr Error
		if err := json.Unmarshal(body, &providerErr); err == nil && providerErr.Code != "" {
			return nil, errors.Wrap(autherrors.ErrTokenExchangeFailed, providerErr.Error())
		}
		return nil, errors.Wrapf(autherrors.ErrTokenExchangeFailed, "status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, errors.Wrap(err, "[Exchanger.post] parse token response")
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.Wrap(autherrors.ErrTokenExchangeFailed, "response carries no access_token")
	}
	return &tokenResp, nil
}
