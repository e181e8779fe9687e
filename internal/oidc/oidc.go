package oidc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/goccy/go-json"
)

// maxDiscoveryBytes bounds the discovery document read from the issuer.
const maxDiscoveryBytes = 1 << 20

// WellKnownEndpoints holds the well known OIDC endpoints
type WellKnownEndpoints struct {
	Issuer                string `json:"issuer"`
	JWKSURI               string `json:"jwks_uri"`
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"`
}

// GetWellKnownEndpointsFromIssuerURL gets the well known endpoints for the
// passed in issuer url.
//
// The issuer named in the discovery document must equal expectedIssuer
// exactly; when expectedIssuer is empty the issuer URL itself is expected.
// A mismatch means the document cannot be trusted to point at the right
// JWKS endpoint.
func GetWellKnownEndpointsFromIssuerURL(
	ctx context.Context,
	client *http.Client,
	issuerURL url.URL,
	expectedIssuer string,
) (*WellKnownEndpoints, error) {
	if expectedIssuer == "" {
		expectedIssuer = issuerURL.String()
	}
	issuerURL.Path = path.Join(issuerURL.Path, ".well-known/openid-configuration")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuerURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not build request to get well-known endpoints: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch well-known endpoints from url %s: %w", issuerURL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching well-known endpoints from url %s", resp.StatusCode, issuerURL.String())
	}

	var wkEndpoints WellKnownEndpoints
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDiscoveryBytes)).Decode(&wkEndpoints); err != nil {
		return nil, fmt.Errorf("failed to decode JSON from well-known endpoints: %w", err)
	}

	if wkEndpoints.Issuer == "" {
		return nil, fmt.Errorf("discovery document is missing required 'issuer' field")
	}
	if wkEndpoints.Issuer != expectedIssuer {
		return nil, fmt.Errorf("issuer mismatch: discovery document names %q, expected %q", wkEndpoints.Issuer, expectedIssuer)
	}
	if wkEndpoints.JWKSURI == "" {
		return nil, fmt.Errorf("discovery document is missing required 'jwks_uri' field")
	}

	return &wkEndpoints, nil
}
