package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

// TokenSource hands out bearer tokens for outgoing requests.
// ForceRefresh is called when the API rejects a token that still looks
// fresh locally.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// HTTPDoer is satisfied by go-httpretry's client and by test doubles.
type HTTPDoer interface {
	DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client is a bearer-authenticated JSON client for the backend API. A
// request rejected with an auth-classified error gets one forced token
// refresh and one retry before ErrReauthenticationRequired surfaces.
type Client struct {
	httpClient HTTPDoer
	tokens     TokenSource
	baseURL    string
}

// NewClient initializes the API client with its required dependencies.
func NewClient(httpClient HTTPDoer, tokens TokenSource, baseURL string) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("[NewClient] httpClient is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewClient] token source is required")
	}
	if baseURL == "" {
		return nil, errors.New("[NewClient] baseURL is required")
	}
	return &Client{
		httpClient: httpClient,
		tokens:     tokens,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// DoJSON sends a JSON request to path and decodes the JSON response into
// out. body and out may be nil. The request body is rebuilt for the
// retry, so it is safe to retry after an auth failure.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[Client.DoJSON] encode request body")
		}
	}

	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return errors.Wrap(err, "[Client.DoJSON]")
	}

	authFailure, err := c.attempt(ctx, method, path, encoded, token, out)
	if err == nil || !authFailure {
		return err
	}

	// The API rejected a token that looked fresh locally. Refresh once
	// and retry; a second rejection means interactive login is needed.
	log.Warn().Str("path", path).Msg("API rejected bearer token, forcing refresh")
	token, refreshErr := c.tokens.ForceRefresh(ctx)
	if refreshErr != nil {
		return errors.Wrap(refreshErr, "[Client.DoJSON] forced refresh")
	}

	authFailure, err = c.attempt(ctx, method, path, encoded, token, out)
	if err != nil && authFailure {
		return errors.Wrap(autherrors.ErrReauthenticationRequired, err.Error())
	}
	return err
}

// attempt performs one HTTP round trip. The bool reports whether the
// failure classified as an auth error worth a refresh-and-retry.
func (c *Client) attempt(ctx context.Context, method, path string, encoded []byte, token string, out any) (bool, error) {
	var bodyReader io.Reader
	if encoded != nil {
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return false, errors.Wrap(err, "[Client.attempt] create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if encoded != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.DoWithContext(ctx, req)
	if err != nil {
		return false, errors.Wrap(err, "[Client.attempt] request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, errors.Wrap(err, "[Client.attempt] read response")
	}

	if resp.StatusCode >= 400 {
		var payload any
		if err := json.Unmarshal(respBody, &payload); err != nil {
			payload = string(respBody)
		}
		apiErr := errors.Errorf("[Client.attempt] %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
		return IsAuthError(payload), apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return false, errors.Wrap(err, "[Client.attempt] decode response")
		}
	}
	return false, nil
}
