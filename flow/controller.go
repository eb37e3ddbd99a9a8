package flow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/session"
)

// AttemptState tracks a login attempt through its lifecycle.
type AttemptState string

const (
	StateIdle           AttemptState = "idle"
	StateAwaitingUser   AttemptState = "awaiting-user-interaction"
	StateExchangingCode AttemptState = "exchanging-code"
	StateComplete       AttemptState = "complete"
	StateFailed         AttemptState = "failed"
)

const (
	defaultWindowTimeout  = 2 * time.Minute
	defaultBrowserTimeout = 5 * time.Minute
)

// Config carries everything the controller needs to build authorization
// URLs and exchange codes.
type Config struct {
	ClientID    string
	Scopes      []string
	RedirectURI string
	Endpoint    oauth2.Endpoint
	LoginHint   string
	DomainHint  string

	// WindowTimeout bounds popup and native-window attempts.
	// BrowserTimeout bounds transports that switch the user to another
	// application. Zero values take the defaults.
	WindowTimeout  time.Duration
	BrowserTimeout time.Duration
}

// LoginResult is the outcome of a completed interactive login. The
// caller writes AccessToken and Identity to the session store and seeds
// the silent acquirer with RefreshToken.
type LoginResult struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	Identity     *session.Identity
	ExpiresIn    int
}

// loginAttempt holds the per-attempt secrets. They live only for the
// duration of the attempt and are discarded on every exit path.
type loginAttempt struct {
	id          uuid.UUID
	state       string
	nonce       string
	redirectURI string
}

// Controller runs the interactive login, walking an ordered list of
// transports and falling through on recoverable failures. Exactly one
// attempt is active at a time.
type Controller struct {
	config     Config
	transports []Transport
	exchanger  *Exchanger

	mu      sync.Mutex
	pending *loginAttempt
	status  AttemptState
}

// NewController initializes the controller with its required dependencies.
func NewController(config Config, transports []Transport, exchanger *Exchanger) (*Controller, error) {
	if config.ClientID == "" {
		return nil, errors.New("[NewController] client id is required")
	}
	if config.Endpoint.AuthURL == "" {
		return nil, errors.New("[NewController] authorization endpoint is required")
	}
	if len(transports) == 0 {
		return nil, errors.New("[NewController] at least one transport is required")
	}
	if exchanger == nil {
		return nil, errors.New("[NewController] exchanger is required")
	}

	if config.WindowTimeout == 0 {
		config.WindowTimeout = defaultWindowTimeout
	}
	if config.BrowserTimeout == 0 {
		config.BrowserTimeout = defaultBrowserTimeout
	}

	return &Controller{
		config:     config,
		transports: transports,
		exchanger:  exchanger,
		status:     StateIdle,
	}, nil
}

// Status reports the current attempt state.
func (c *Controller) Status() AttemptState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Login runs the interactive flow. Each transport in order gets one
// bounded attempt; blocked, closed and timed-out attempts fall through
// to the next transport, other failures abort. A redirect transport
// returns ErrRedirectPending and the attempt is finished later by
// CompleteRedirect.
func (c *Controller) Login(ctx context.Context) (*LoginResult, error) {
	attempt, err := c.beginAttempt()
	if err != nil {
		return nil, err
	}

	request := &AuthorizationRequest{
		RedirectURI: c.config.RedirectURI,
		BuildURL: func(redirectURI string) string {
			attempt.redirectURI = redirectURI
			return c.authCodeURL(attempt, redirectURI)
		},
	}

	for _, transport := range c.transports {
		response, err := c.runTransport(ctx, transport, request)
		if errors.Is(err, ErrRedirectPending) {
			log.Info().Str("transport", transport.Name()).Msg("Redirect navigation started, attempt pending")
			c.setPending(attempt)
			return nil, ErrRedirectPending
		}
		if err != nil {
			var transportErr *TransportError
			if errors.As(err, &transportErr) && transportErr.Recoverable() {
				log.Warn().
					Str("transport", transportErr.Transport).
					Str("class", string(transportErr.Class)).
					Err(transportErr.Err).
					Msg("Transport failed, trying next")
				continue
			}
			c.failAttempt()
			return nil, errors.Wrap(err, "[Controller.Login]")
		}
		return c.complete(ctx, attempt, response)
	}

	c.failAttempt()
	return nil, errors.Wrap(autherrors.ErrAllTransportsFailed, "[Controller.Login]")
}

// CompleteRedirect finishes a redirect-transport attempt with the URL
// the app was reloaded on. The pending attempt is consumed whether or
// not completion succeeds.
func (c *Controller) CompleteRedirect(ctx context.Context, redirectURL string) (*LoginResult, error) {
	c.mu.Lock()
	attempt := c.pending
	c.pending = nil
	c.mu.Unlock()

	if attempt == nil {
		return nil, errors.Wrap(autherrors.ErrNoPendingAttempt, "[Controller.CompleteRedirect]")
	}

	response, err := ParseAuthorizationResponse(redirectURL)
	if err != nil {
		c.failAttempt()
		return nil, errors.Wrap(err, "[Controller.CompleteRedirect]")
	}
	response.RedirectURI = attempt.redirectURI
	return c.complete(ctx, attempt, response)
}

func (c *Controller) runTransport(ctx context.Context, transport Transport, request *AuthorizationRequest) (*AuthorizationResponse, error) {
	timeout := c.config.WindowTimeout
	if switcher, ok := transport.(interface{ InvolvesAppSwitch() bool }); ok && switcher.InvolvesAppSwitch() {
		timeout = c.config.BrowserTimeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info().Str("transport", transport.Name()).Msg("Attempting interactive login")
	return transport.Attempt(attemptCtx, request)
}

func (c *Controller) complete(ctx context.Context, attempt *loginAttempt, response *AuthorizationResponse) (*LoginResult, error) {
	if response.Error != "" {
		c.failAttempt()
		return nil, errors.Errorf("[Controller.complete] provider returned %q: %s", response.Error, response.ErrorDescription)
	}

	if response.State != attempt.state {
		c.failAttempt()
		return nil, errors.Wrap(autherrors.ErrStateMismatch, "[Controller.complete]")
	}

	// Inline token flows deliver the access token directly in the
	// redirect fragment, nothing left to exchange.
	if response.AccessToken != "" {
		return c.finish(attempt, &TokenResponse{
			AccessToken: response.AccessToken,
			IDToken:     response.IDToken,
			ExpiresIn:   response.ExpiresIn,
		})
	}

	if response.Code == "" {
		c.failAttempt()
		return nil, errors.New("[Controller.complete] authorization response carries neither code nor token")
	}

	c.setStatus(StateExchangingCode)
	redirectURI := response.RedirectURI
	if redirectURI == "" {
		redirectURI = attempt.redirectURI
	}
	tokenResp, err := c.exchanger.ExchangeCode(ctx, response.Code, redirectURI)
	if err != nil {
		c.failAttempt()
		return nil, errors.Wrap(err, "[Controller.complete]")
	}
	return c.finish(attempt, tokenResp)
}

func (c *Controller) finish(attempt *loginAttempt, tokenResp *TokenResponse) (*LoginResult, error) {
	if tokenResp.IDToken != "" {
		if nonce, err := decodeNonce(tokenResp.IDToken); err == nil && nonce != "" && nonce != attempt.nonce {
			c.failAttempt()
			return nil, errors.Wrap(autherrors.ErrStateMismatch, "[Controller.finish] id_token nonce mismatch")
		}
	}

	c.setStatus(StateComplete)
	log.Info().Str("attempt_id", attempt.id.String()).Msg("Interactive login complete")
	return &LoginResult{
		AccessToken:  tokenResp.AccessToken,
		IDToken:      tokenResp.IDToken,
		RefreshToken: tokenResp.RefreshToken,
		Identity:     identityFromTokens(tokenResp.IDToken, tokenResp.AccessToken),
		ExpiresIn:    tokenResp.ExpiresIn,
	}, nil
}

// authCodeURL builds the authorization URL for the given redirect URI
// with the attempt's state and nonce baked in.
func (c *Controller) authCodeURL(attempt *loginAttempt, redirectURI string) string {
	oauthConfig := &oauth2.Config{
		ClientID:    c.config.ClientID,
		Endpoint:    c.config.Endpoint,
		RedirectURL: redirectURI,
		Scopes:      c.config.Scopes,
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("nonce", attempt.nonce),
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	}
	if c.config.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", c.config.LoginHint))
	}
	if c.config.DomainHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("domain_hint", c.config.DomainHint))
	}
	return oauthConfig.AuthCodeURL(attempt.state, opts...)
}

func (c *Controller) beginAttempt() (*loginAttempt, error) {
	state, err := randomToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Controller.beginAttempt] state")
	}
	nonce, err := randomToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Controller.beginAttempt] nonce")
	}

	attempt := &loginAttempt{
		id:          uuid.New(),
		state:       state,
		nonce:       nonce,
		redirectURI: c.config.RedirectURI,
	}
	c.setStatus(StateAwaitingUser)
	return attempt, nil
}

func (c *Controller) setPending(attempt *loginAttempt) {
	c.mu.Lock()
	c.pending = attempt
	c.mu.Unlock()
}

func (c *Controller) setStatus(status AttemptState) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

func (c *Controller) failAttempt() {
	c.setStatus(StateFailed)
}

// randomToken returns 32 bytes of CSPRNG output, base64url encoded.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
