package flow_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-auth-client/flow"
	"github.com/jrsteele09/go-auth-client/flow/flowfakes"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

const (
	testClientID    = "desktop-client-1"
	testRedirectURI = "http://localhost:5173/auth/callback"
	testAuthCode    = "auth-code-123"
)

var testScopes = []string{"openid", "profile", "email", "offline_access"}

// httpDoer adapts net/http's client to the retrying-client interface the
// exchanger consumes.
type httpDoer struct {
	client *http.Client
}

func (d httpDoer) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return d.client.Do(req.WithContext(ctx))
}

// makeJWT builds an unsigned token with the given payload claims.
func makeJWT(t *testing.T, payload map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	require.NoError(t, err)
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(body) + "."
}

// tokenEndpoint is an in-process token endpoint recording every exchange.
type tokenEndpoint struct {
	server    *httptest.Server
	calls     atomic.Int64
	lastForm  url.Values
	respond   func(w http.ResponseWriter, form url.Values)
	accessJWT string
}

func newTokenEndpoint(t *testing.T) *tokenEndpoint {
	t.Helper()
	te := &tokenEndpoint{}
	te.accessJWT = makeJWT(t, map[string]any{
		"sub":     "subject-1",
		"name":    "Ada Lovelace",
		"email":   "ada@example.com",
		"user_id": float64(42),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	te.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		te.calls.Add(1)
		require.NoError(t, r.ParseForm())
		te.lastForm = r.PostForm
		if te.respond != nil {
			te.respond(w, r.PostForm)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  te.accessJWT,
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-1",
		})
	}))
	t.Cleanup(te.server.Close)
	return te
}

func newTestController(t *testing.T, endpoint *tokenEndpoint, transports []flow.Transport, configure func(*flow.Config)) *flow.Controller {
	t.Helper()
	exchanger, err := flow.NewExchanger(httpDoer{client: endpoint.server.Client()}, endpoint.server.URL, testClientID, testScopes)
	require.NoError(t, err)

	config := flow.Config{
		ClientID:    testClientID,
		Scopes:      testScopes,
		RedirectURI: testRedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://login.example.com/authorize",
			TokenURL: endpoint.server.URL,
		},
	}
	if configure != nil {
		configure(&config)
	}

	controller, err := flow.NewController(config, transports, exchanger)
	require.NoError(t, err)
	return controller
}

// callbackFromAuthURL parses the authorization URL a transport was handed
// and builds the provider's redirect back, echoing the state parameter.
func callbackFromAuthURL(t *testing.T, authURL string, params url.Values) string {
	t.Helper()
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	query := parsed.Query()
	require.NotEmpty(t, query.Get("state"))
	require.NotEmpty(t, query.Get("nonce"))

	if params.Get("state") == "" && params.Get("error") == "" {
		params.Set("state", query.Get("state"))
	}
	return query.Get("redirect_uri") + "?" + params.Encode()
}

func TestControllerLoginViaPopup(t *testing.T) {
	endpoint := newTokenEndpoint(t)
	shell := flowfakes.NewFakeHostShell()
	shell.PopupFunc = func(_ context.Context, authURL string) (string, error) {
		return callbackFromAuthURL(t, authURL, url.Values{"code": {testAuthCode}}), nil
	}

	controller := newTestController(t, endpoint, []flow.Transport{flow.NewPopupTransport(shell)}, nil)

	result, err := controller.Login(context.Background())
	require.NoError(t, err)
	require.Equal(t, endpoint.accessJWT, result.AccessToken)
	require.Equal(t, "refresh-1", result.RefreshToken)
	require.Equal(t, 3600, result.ExpiresIn)
	require.NotNil(t, result.Identity)
	require.Equal(t, "subject-1", result.Identity.Subject)
	require.Equal(t, "ada@example.com", result.Identity.Email)
	require.Equal(t, int64(42), result.Identity.UserID)
	require.Equal(t, flow.StateComplete, controller.Status())

	require.Equal(t, int64(1), endpoint.calls.Load())
	require.Equal(t, testAuthCode, endpoint.lastForm.Get("code"))
	require.Equal(t, "authorization_code", endpoint.lastForm.Get("grant_type"))
	require.Equal(t, testClientID, endpoint.lastForm.Get("client_id"))
	require.Equal(t, testRedirectURI, endpoint.lastForm.Get("redirect_uri"))
}

func TestControllerLoginAuthURLParameters(t *testing.T) {
	endpoint := newTokenEndpoint(t)
	shell := flowfakes.NewFakeHostShell()
	shell.PopupFunc = func(_ context.Context, authURL string) (string, error) {
		return callbackFromAuthURL(t, authURL, url.Values{"code": {testAuthCode}}), nil
	}

	controller := newTestController(t, endpoint, []flow.Transport{flow.NewPopupTransport(shell)}, func(c *flow.Config) {
		c.LoginHint = "ada@example.com"
		c.DomainHint = "example.com"
	})

	_, err := controller.Login(context.Background())
	require.NoError(t, err)

	opened := shell.OpenedURLs()
	require.Len(t, opened, 1)
	parsed, err := url.Parse(opened[0])
	require.NoError(t, err)
	query := parsed.Query()
	require.Equal(t, "code", query.Get("response_type"))
	require.Equal(t, "select_account", query.Get("prompt"))
	require.Equal(t, "query", query.Get("response_mode"))
	require.Equal(t, "ada@example.com", query.Get("login_hint"))
	require.Equal(t, "example.com", query.Get("domain_hint"))
	require.Equal(t, testRedirectURI, query.Get("redirect_uri"))
}

func TestControllerStateMismatchAbortsBeforeExchange(t *testing.T) {
	endpoint := newTokenEndpoint(t)
	shell := flowfakes.NewFakeHostShell()
	shell.PopupFunc = func(_ context.Context, _ string) (string, error) {
		return testRedirectURI + "?code=" + testAuthCode + "&state=forged-state", nil
	}

	controller := newTestController(t, endpoint, []flow.Transport{flow.NewPopupTransport(shell)}, nil)

	result, err := controller.Login(context.Background())
	require.ErrorIs(t, err, autherrors.ErrStateMismatch)
	require.Nil(t, result)
	require.Equal(t, flow.StateFailed, controller.Status())
	require.Equal(t, int64(0), endpoint.calls.Load(), "forged state must never reach the token endpoint")
}

func TestControllerFallsThroughRecoverableFailures(t *testing.T) {
	endpoint := newTokenEndpoint(t)

	blockedShell := flowfakes.NewFakeHostShell()
	blockedShell.PopupFunc = func(_ context.Context, _ string) (string, error) {
		return "", flow.ErrPopupBlocked
	}
	closedShell := flowfakes.NewFakeHostShell()
	closedShell.WindowFunc = func(_ context.Context, _ string) (string, error) {
		return "", flow.ErrWindowClosed
	}
	okShell := flowfakes.NewFakeHostShell()
	okShell.WindowFunc = func(_ context.Context, authURL string) (string, error) {
		return callbackFromAuthURL(t, authURL, url.Values{"code": {testAuthCode}}), nil
	}

	controller := newTestController(t, endpoint, []flow.Transport{
		flow.NewPopupTransport(blockedShell),
		flow.NewNativeWindowTransport(closedShell),
		flow.NewNativeWindowTransport(okShell),
	}, nil)

	result, err := controller.Login(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, blockedShell.OpenedURLs(), 1)
	require.Len(t, closedShell.OpenedURLs(), 1)
	require.Len(t, okShell.OpenedURLs(), 1)
}

func TestControllerAllTransportsFailed(t *testing.T) {
	endpoint := newTokenEndpoint(t)

	blockedShell := flowfakes.NewFakeHostShell()
	blockedShell.PopupFunc = func(_ context.Context, _ string) (string, error) {
		return "", flow.ErrPopupBlocked
	}
	closedShell := flowfakes.NewFakeHostShell()
	closedShell.WindowFunc = func(_ context.Context, _ string) (string, error) {
		return "", flow.ErrWindowClosed
	}

	controller := newTestController(t, endpoint, []flow.Transport{
		flow.NewPopupTransport(blockedShell),
		flow.NewNativeWindowTransport(closedShell),
	}, nil)

	_, err := controller.Login(context.Background())
	require.ErrorIs(t, err, autherrors.ErrAllTransportsFailed)
	require.Equal(t, flow.StateFailed, controller.Status())
}

func TestControllerFatalTransportErrorAborts(t *testing.T) {
	endpoint := newTokenEndpoint(t)

	brokenShell := flowfakes.NewFakeHostShell()
	brokenShell.PopupFunc = func(_ context.Context, _ string) (string, error) {
		return "", fmt.Errorf("ipc channel gone")
	}
	neverShell := flowfakes.NewFakeHostShell()

	controller := newTestController(t, endpoint, []flow.Transport{
		flow.NewPopupTransport(brokenShell),
		flow.NewNativeWindowTransport(neverShell),
	}, nil)

	_, err := controller.Login(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, autherrors.ErrAllTransportsFailed)
	require.Empty(t, neverShell.OpenedURLs(), "fatal failure must not fall through")
}

func TestControllerTimeoutFallsThrough(t *testing.T) {
	endpoint := newTokenEndpoint(t)

	hangingShell := flowfakes.NewFakeHostShell()
	hangingShell.PopupFunc = func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	okShell := flowfakes.NewFakeHostShell()
	okShell.WindowFunc = func(_ context.Context, authURL string) (string, error) {
		return callbackFromAuthURL(t, authURL, url.Values{"code": {testAuthCode}}), nil
	}

	controller := newTestController(t, endpoint, []flow.Transport{
		flow.NewPopupTransport(hangingShell),
		flow.NewNativeWindowTransport(okShell),
	}, func(c *flow.Config) {
		c.WindowTimeout = 50 * time.Millisecond
	})

	result, err := controller.Login(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, okShell.OpenedURLs(), 1)
}

func TestControllerProviderErrorRedirect(t *testing.T) {
	endpoint := newTokenEndpoint(t)
	shell := flowfakes.NewFakeHostShell()
	shell.PopupFunc = func(_ context.Context, authURL string) (string, error) {
		return callbackFromAuthURL(t, authURL, url.Values{
			"error":             {"access_denied"},
			"error_description": {"user cancelled consent"},
		}), nil
	}

	controller := newTestController(t, endpoint, []flow.Transport{flow.NewPopupTransport(shell)}, nil)

	_, err := controller.Login(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "access_denied")
	require.Contains(t, err.Error(), "user cancelled consent")
	require.Equal(t, int64(0), endpoint.calls.Load())
}

func TestControllerExchangeFailureSurfacesProviderDetail(t *testing.T) {
	endpoint := newTokenEndpoint(t)
	endpoint.respond = func(w http.ResponseWriter, _ url.Values) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "authorization code expired",
		})
	}
	shell := flowfakes.NewFakeHostShell()
	shell.PopupFunc = func(_ context.Context, authURL string) (string, error) {
		return callbackFromAuthURL(t, authURL, url.Values{"code": {testAuthCode}}), nil
	}

	controller := newTestController(t, endpoint, []flow.Transport{flow.NewPopupTransport(shell)}, nil)

	_, err := controller.Login(context.Background())
	require.ErrorIs(t, err, autherrors.ErrTokenExchangeFailed)
	require.Contains(t, err.Error(), "invalid_grant")
	require.Contains(t, err.Error(), "authorization code expired")
	require.Equal(t, flow.StateFailed, controller.Status())
}

func TestControllerInlineTokenSkipsExchange(t *testing.T) {
	endpoint := newTokenEndpoint(t)
	inlineToken := makeJWT(t, map[string]any{
		"sub":   "subject-2",
		"email": "grace@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	shell := flowfakes.NewFakeHostShell()
	shell.PopupFunc = func(_ context.Context, authURL string) (string, error) {
		parsed, err := url.Parse(authURL)
		require.NoError(t, err)
		state := parsed.Query().Get("state")
		fragment := url.Values{
			"access_token": {inlineToken},
			"state":        {state},
			"expires_in":   {"1800"},
		}
		return testRedirectURI + "#" + fragment.Encode(), nil
	}

	controller := newTestController(t, endpoint, []flow.Transport{flow.NewPopupTransport(shell)}, nil)

	result, err := controller.Login(context.Background())
	require.NoError(t, err)
	require.Equal(t, inlineToken, result.AccessToken)
	require.Equal(t, 1800, result.ExpiresIn)
	require.Equal(t, "grace@example.com", result.Identity.Email)
	require.Equal(t, int64(0), endpoint.calls.Load(), "inline tokens need no exchange")
}

func TestControllerRedirectPendingAndCompletion(t *testing.T) {
	endpoint := newTokenEndpoint(t)
	shell := flowfakes.NewFakeHostShell()

	controller := newTestController(t, endpoint, []flow.Transport{flow.NewRedirectTransport(shell)}, nil)

	_, err := controller.Login(context.Background())
	require.ErrorIs(t, err, flow.ErrRedirectPending)

	opened := shell.OpenedURLs()
	require.Len(t, opened, 1)
	callback := callbackFromAuthURL(t, opened[0], url.Values{"code": {testAuthCode}})

	result, err := controller.CompleteRedirect(context.Background(), callback)
	require.NoError(t, err)
	require.Equal(t, endpoint.accessJWT, result.AccessToken)
	require.Equal(t, flow.StateComplete, controller.Status())
	require.Equal(t, testRedirectURI, endpoint.lastForm.Get("redirect_uri"))
}

func TestControllerCompleteRedirectWithoutPendingAttempt(t *testing.T) {
	endpoint := newTokenEndpoint(t)
	controller := newTestController(t, endpoint, []flow.Transport{flow.NewRedirectTransport(flowfakes.NewFakeHostShell())}, nil)

	_, err := controller.CompleteRedirect(context.Background(), testRedirectURI+"?code=x&state=y")
	require.ErrorIs(t, err, autherrors.ErrNoPendingAttempt)
}

func TestControllerPendingAttemptConsumedOnce(t *testing.T) {
	endpoint := newTokenEndpoint(t)
	shell := flowfakes.NewFakeHostShell()
	controller := newTestController(t, endpoint, []flow.Transport{flow.NewRedirectTransport(shell)}, nil)

	_, err := controller.Login(context.Background())
	require.ErrorIs(t, err, flow.ErrRedirectPending)

	callback := callbackFromAuthURL(t, shell.OpenedURLs()[0], url.Values{"code": {testAuthCode}})
	_, err = controller.CompleteRedirect(context.Background(), callback)
	require.NoError(t, err)

	_, err = controller.CompleteRedirect(context.Background(), callback)
	require.ErrorIs(t, err, autherrors.ErrNoPendingAttempt)
}

func TestControllerConstructorValidation(t *testing.T) {
	endpoint := newTokenEndpoint(t)
	exchanger, err := flow.NewExchanger(httpDoer{client: endpoint.server.Client()}, endpoint.server.URL, testClientID, testScopes)
	require.NoError(t, err)
	transports := []flow.Transport{flow.NewPopupTransport(flowfakes.NewFakeHostShell())}
	validConfig := flow.Config{
		ClientID: testClientID,
		Endpoint: oauth2.Endpoint{AuthURL: "https://login.example.com/authorize"},
	}

	t.Run("missing client id", func(t *testing.T) {
		config := validConfig
		config.ClientID = ""
		_, err := flow.NewController(config, transports, exchanger)
		require.Error(t, err)
	})

	t.Run("missing auth endpoint", func(t *testing.T) {
		config := validConfig
		config.Endpoint = oauth2.Endpoint{}
		_, err := flow.NewController(config, transports, exchanger)
		require.Error(t, err)
	})

	t.Run("no transports", func(t *testing.T) {
		_, err := flow.NewController(validConfig, nil, exchanger)
		require.Error(t, err)
	})

	t.Run("nil exchanger", func(t *testing.T) {
		_, err := flow.NewController(validConfig, transports, nil)
		require.Error(t, err)
	})
}
