package flow

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// DiscoverEndpoints resolves the provider's authorization and token
// endpoints from its OIDC discovery document.
func DiscoverEndpoints(ctx context.Context, issuer string) (oauth2.Endpoint, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return oauth2.Endpoint{}, errors.Wrap(err, "[DiscoverEndpoints] OIDC discovery")
	}
	return provider.Endpoint(), nil
}

// AzureEndpoints returns the Entra ID endpoints for a tenant without a
// discovery round trip. tenantID may be "common".
func AzureEndpoints(tenantID string) oauth2.Endpoint {
	return microsoft.AzureADEndpoint(tenantID)
}
