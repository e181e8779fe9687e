/*
Package oidc discovers the JWKS endpoint of an OpenID Connect issuer.

OIDC providers expose a discovery document at a well-known URL:

	https://issuer.example.com/.well-known/openid-configuration

Its jwks_uri member names the key set endpoint that the fetcher polls.

# Usage

	issuerURL, _ := url.Parse("https://auth.example.com/")
	client := &http.Client{Timeout: 10 * time.Second}

	endpoints, err := oidc.GetWellKnownEndpointsFromIssuerURL(ctx, client, *issuerURL, "https://auth.example.com/")
	if err != nil {
	    // network failure, non-200 status, invalid JSON,
	    // missing fields or an issuer mismatch
	}
	jwksURL := endpoints.JWKSURI

The issuer in the document must match the expected issuer exactly, as
required by OpenID Connect Discovery 1.0, section 4.3.
*/
package oidc
