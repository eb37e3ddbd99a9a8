package flow

import (
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// ParseAuthorizationResponse extracts the authorization response from a
// redirect URL. Parameters arrive in the query for code flows and in the
// fragment for inline token flows; the fragment is consulted when the
// query carries no authorization parameters.
func ParseAuthorizationResponse(redirectURL string) (*AuthorizationResponse, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, errors.Wrap(err, "[ParseAuthorizationResponse] invalid redirect URL")
	}

	values := u.Query()
	if !hasAuthParams(values) && u.Fragment != "" {
		fragmentValues, err := url.ParseQuery(u.Fragment)
		if err != nil {
			return nil, errors.Wrap(err, "[ParseAuthorizationResponse] invalid fragment")
		}
		values = fragmentValues
	}

	if !hasAuthParams(values) {
		return nil, errors.New("[ParseAuthorizationResponse] redirect URL carries no authorization response")
	}

	resp := &AuthorizationResponse{
		Code:             values.Get("code"),
		State:            values.Get("state"),
		AccessToken:      values.Get("access_token"),
		IDToken:          values.Get("id_token"),
		Error:            values.Get("error"),
		ErrorDescription: values.Get("error_description"),
	}
	if raw := values.Get("expires_in"); raw != "" {
		if expiresIn, err := strconv.Atoi(raw); err == nil {
			resp.ExpiresIn = expiresIn
		}
	}
	return resp, nil
}

func hasAuthParams(values url.Values) bool {
	return values.Get("code") != "" || values.Get("access_token") != "" || values.Get("error") != ""
}
