/*
Package jwks retrieves a JSON Web Key Set for token validation and keeps
authentication working through transient failures of the JWKS endpoint.

# Overview

The Fetcher adds three things on top of a plain HTTP GET:

  - Retried GETs with tight per-attempt timeouts (TimeoutBudget) and a
    bounded retry policy (RetryPolicy), so that a flaky network path is
    healed quickly while the inbound request waits.
  - A last-known-good cache (KeySetCache). When a refresh fails the
    previously retrieved key set is served, however old. Signing keys
    rotate rarely enough that this key set is almost certainly correct.
  - Prepopulation at process start (Prepopulator). The first real caller
    takes the warmup's key set from a one-shot handoff slot
    (PrepopulateBuffer) instead of issuing a second GET.

# Basic Usage

	fetcher, err := jwks.NewFetcher(
	    jwks.WithLogger(logger),
	)
	if err != nil {
	    log.Fatal(err)
	}

	// At startup; do not wait for it.
	jwks.NewPrepopulator(fetcher).Start(jwksURL)

	// Per request:
	result, err := fetcher.Fetch(r.Context(), jwksURL)
	if err != nil {
	    // No key set is available at all: tokens cannot be verified.
	    http.Error(w, "", http.StatusServiceUnavailable)
	    return
	}
	if result.Stale() {
	    // Degraded but usable.
	}

# Results and Errors

Fetch returns a Result whose Source is SourceFresh, SourcePrepopulated or
SourceStale. A stale result carries the refresh failure in Result.Cause.

Fetch fails only when nothing is cached, with a *FetchError:

	switch {
	case errors.Is(err, jwks.ErrFetchExhaustedNoFallback):
	    // retries exhausted, non-200 status, or deadline expired
	case errors.Is(err, jwks.ErrDecodeFailedNoFallback):
	    // a 200 response whose body was not JSON
	}

ClassifyError maps any cause onto the ErrorKind taxonomy.

# Timeouts and Retries

DefaultTimeoutBudget allows 3.4 s to connect, 2 s for the TLS handshake,
1 s per request write, 2.5 s until response headers and 8.5 s for a whole
attempt.

DefaultRetryPolicy makes at most 3 attempts. It retries connection-level
failures (timeouts, reset, refused, DNS not found, unreachable network,
address in use, broken pipe) and the statuses 408, 413, 429, 500, 502,
503, 504, 521, 522 and 524. A server Retry-After hint is honored as long
as the total wait stays within 45 s; otherwise the sequence ends. Without
a hint, attempts are spaced by jittered exponential backoff.

The ctx passed to Fetch bounds the whole sequence. When it expires the
fetch takes the same path as exhausted retries.

# Key Lookup

KeyProvider binds a Fetcher to one URL and exposes the result as a
jwk.Set, either through KeyFunc or by key ID:

	provider := jwks.NewKeyProvider(fetcher, jwksURL)
	key, err := provider.LookupKeyID(ctx, kid)
*/
package jwks
