package jwks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Sentinel errors. A *FetchError matches the sentinel of its kind with
// errors.Is.
var (
	// ErrNotInitialized is returned by KeySetCache.ReadStale before the
	// first successful fetch.
	ErrNotInitialized = errors.New("jwks: key set cache not initialized")

	// ErrFetchExhaustedNoFallback is returned when the retried GET produced
	// no usable response and there is no cached key set to fall back to.
	ErrFetchExhaustedNoFallback = errors.New("jwks: HTTP GET failed and no cached key set to fall back to")

	// ErrDecodeFailedNoFallback is returned when the response body was not
	// valid JSON and there is no cached key set to fall back to.
	ErrDecodeFailedNoFallback = errors.New("jwks: JSON decoding failed and no cached key set to fall back to")

	// ErrDecodeFailed marks a response body that is not valid JSON.
	ErrDecodeFailed = errors.New("jwks: JSON decoding failed")

	// ErrRetryAfterBudget is returned when honoring a server retry-after
	// hint would exceed the cumulative retry-after cap.
	ErrRetryAfterBudget = errors.New("jwks: retry-after exceeds remaining retry budget")
)

// ErrorKind classifies fetch failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindTransportTransient covers connection, TLS and timeout failures.
	KindTransportTransient
	// KindRetryableHTTPStatus is a response whose status is in the retry list.
	KindRetryableHTTPStatus
	// KindUnexpectedStatus is a non-200 response outside the retry list.
	KindUnexpectedStatus
	// KindDecodeFailed is a response body that is not valid JSON.
	KindDecodeFailed
	KindFetchExhaustedNoFallback
	KindDecodeFailedNoFallback
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransportTransient:
		return "transport_transient"
	case KindRetryableHTTPStatus:
		return "retryable_http_status"
	case KindUnexpectedStatus:
		return "unexpected_status"
	case KindDecodeFailed:
		return "decode_failed"
	case KindFetchExhaustedNoFallback:
		return "fetch_exhausted_no_fallback"
	case KindDecodeFailedNoFallback:
		return "decode_failed_no_fallback"
	default:
		return "unknown"
	}
}

// FetchError is the hard failure returned by Fetcher.Fetch when no
// fallback key set exists.
type FetchError struct {
	// Kind is KindFetchExhaustedNoFallback or KindDecodeFailedNoFallback.
	Kind ErrorKind

	// URL is the JWKS endpoint that was requested.
	URL string

	// Err is the failure that made the fetch unusable.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	msg := e.sentinel().Error()
	if e.URL != "" {
		msg += " (url: " + e.URL + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of this error's kind.
func (e *FetchError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *FetchError) sentinel() error {
	if e.Kind == KindDecodeFailedNoFallback {
		return ErrDecodeFailedNoFallback
	}
	return ErrFetchExhaustedNoFallback
}

// StatusError records that the last response of a GET sequence had a
// status other than 200.
type StatusError struct {
	StatusCode int
	Attempts   int
	Err        error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("jwks: unexpected response status %d (%s) after %d attempt(s)",
		e.StatusCode, http.StatusText(e.StatusCode), e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// ClassifyError maps a failure onto the ErrorKind taxonomy. The policy is
// consulted to tell retryable statuses from unexpected ones.
func ClassifyError(err error, policy RetryPolicy) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	if errors.Is(err, ErrDecodeFailed) {
		return KindDecodeFailed
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if policy.RetryableStatus(statusErr.StatusCode) {
			return KindRetryableHTTPStatus
		}
		return KindUnexpectedStatus
	}

	if errors.Is(err, ErrRetryAfterBudget) {
		return KindRetryableHTTPStatus
	}
	if isTransientError(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransportTransient
	}
	return KindUnknown
}

// transientErrnos are the connection-level failures worth retrying:
// reset, refused, address in use, broken pipe and unreachable network.
var transientErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.EADDRINUSE,
	syscall.EPIPE,
	syscall.ENETUNREACH,
}

// isTransientError reports whether err is a connection-level failure that
// another attempt may not hit: timeouts (connect, TLS handshake, response
// headers, whole attempt), the errnos above, DNS not-found or temporary
// resolver failures, and connections closed mid-response.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound || dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
