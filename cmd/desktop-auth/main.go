package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-auth-client/apiclient"
	"github.com/jrsteele09/go-auth-client/flow"
	"github.com/jrsteele09/go-auth-client/internal/config"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/jrsteele09/go-auth-client/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running auth client")
	}
	log.Info().Msg("Auth client stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpClient, err := flow.NewRetryHTTPClient()
	if err != nil {
		return fmt.Errorf("flow.NewRetryHTTPClient: %w", err)
	}

	endpoint, err := resolveEndpoint(ctx, c)
	if err != nil {
		return fmt.Errorf("resolveEndpoint: %w", err)
	}

	exchanger, err := flow.NewExchanger(httpClient, endpoint.TokenURL, c.GetClientID(), c.GetScopes())
	if err != nil {
		return fmt.Errorf("flow.NewExchanger: %w", err)
	}

	vault, err := flow.NewKeyringVault(c.GetAppName())
	if err != nil {
		return fmt.Errorf("flow.NewKeyringVault: %w", err)
	}
	acquirer, err := flow.NewSilentAcquirer(exchanger, vault)
	if err != nil {
		return fmt.Errorf("flow.NewSilentAcquirer: %w", err)
	}

	store := session.NewStore()
	persistence := session.NewFilePersistence(filepath.Join(c.GetDataFolder(), "session.json"))
	restoreSession(store, persistence)
	unsubscribe := session.PersistOnChange(store, persistence)
	defer unsubscribe()

	loginRequired := make(chan struct{}, 1)
	expiry := session.NewExpiryHandler(store, func() {
		select {
		case loginRequired <- struct{}{}:
		default:
		}
	})

	engine, err := refresh.NewEngine(store, acquirer, expiry, refresh.WithExpiryBuffer(c.GetExpiryBuffer()))
	if err != nil {
		return fmt.Errorf("refresh.NewEngine: %w", err)
	}

	controller, err := flow.NewController(flow.Config{
		ClientID:       c.GetClientID(),
		Scopes:         c.GetScopes(),
		RedirectURI:    c.GetRedirectURI(),
		Endpoint:       endpoint,
		LoginHint:      c.GetLoginHint(),
		DomainHint:     c.GetDomainHint(),
		WindowTimeout:  c.GetInteractiveTimeout(),
		BrowserTimeout: c.GetBrowserTimeout(),
	}, []flow.Transport{
		flow.NewLoopbackTransport(flow.ExecBrowser{}, c.GetLoopbackAddr()),
	}, exchanger)
	if err != nil {
		return fmt.Errorf("flow.NewController: %w", err)
	}

	if err := ensureAuthenticated(ctx, engine, controller, store, acquirer); err != nil {
		return fmt.Errorf("ensureAuthenticated: %w", err)
	}

	go engine.RunPeriodic(ctx, c.GetRefreshInterval())
	go handleLoginRequired(ctx, loginRequired, controller, store, acquirer)

	apiClient, err := apiclient.NewClient(httpClient, engine, c.GetAPIBaseURL())
	if err != nil {
		return fmt.Errorf("apiclient.NewClient: %w", err)
	}
	checkBackend(ctx, apiClient)

	waitForStopSignal()
	return nil
}

// resolveEndpoint discovers the provider endpoints from the configured
// authority, falling back to the tenant's Entra ID endpoints.
func resolveEndpoint(ctx context.Context, c config.Config) (oauth2.Endpoint, error) {
	if authority := c.GetAuthority(); authority != "" {
		return flow.DiscoverEndpoints(ctx, authority)
	}
	return flow.AzureEndpoints(c.GetTenantID()), nil
}

// restoreSession seeds the store from the previous run, if any. Silent
// refresh on the first API call picks it up from there.
func restoreSession(store *session.Store, persistence session.Persistence) {
	sess, err := persistence.Load()
	if err != nil {
		if !autherrors.Is(err, autherrors.ErrNoStoredSession) {
			log.Warn().Err(err).Msg("Could not restore persisted session")
		}
		return
	}
	store.Set(sess)
	log.Info().Msg("Restored persisted session")
}

// ensureAuthenticated makes sure a valid token is available, running the
// interactive login when silent acquisition cannot produce one.
func ensureAuthenticated(ctx context.Context, engine *refresh.Engine, controller *flow.Controller, store *session.Store, acquirer *flow.SilentAcquirer) error {
	if _, err := engine.GetValidToken(ctx); err == nil {
		return nil
	} else if !autherrors.Is(err, autherrors.ErrLoginRequired) {
		return err
	}

	return interactiveLogin(ctx, controller, store, acquirer)
}

func interactiveLogin(ctx context.Context, controller *flow.Controller, store *session.Store, acquirer *flow.SilentAcquirer) error {
	log.Info().Msg("Interactive login required")
	result, err := controller.Login(ctx)
	if err != nil {
		return err
	}
	store.SetToken(result.AccessToken, result.Identity)
	if result.RefreshToken != "" {
		acquirer.SetRefreshToken(result.RefreshToken)
	}
	return nil
}

// handleLoginRequired reruns the interactive login whenever the session
// expires beyond silent recovery.
func handleLoginRequired(ctx context.Context, signals <-chan struct{}, controller *flow.Controller, store *session.Store, acquirer *flow.SilentAcquirer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			if err := interactiveLogin(ctx, controller, store, acquirer); err != nil {
				log.Error().Err(err).Msg("Interactive login failed")
			}
		}
	}
}

// checkBackend verifies the backend accepts the bearer token. A failure
// is logged, not fatal; the app keeps running on the session it has.
func checkBackend(ctx context.Context, client *apiclient.Client) {
	var status map[string]any
	if err := client.DoJSON(ctx, http.MethodGet, "/v1/status", nil, &status); err != nil {
		log.Warn().Err(err).Msg("Backend status check failed")
		return
	}
	log.Info().Interface("status", status).Msg("Backend reachable")
}

func setupLogging(c config.Config) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.GetEnv() == "DEV" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
