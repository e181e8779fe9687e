package jwks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy governs which failures of the JWKS GET are retried and for
// how long. Retrying may happen while an inbound request waits for its
// authentication result, so the whole sequence has to stay well within a
// request-serving budget.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// StatusCodes lists the response statuses that are retried.
	StatusCodes []int

	// MaxRetryAfter caps the total time spent waiting between attempts.
	// A server retry-after hint that would push the total past this cap
	// ends the sequence instead of being honored.
	MaxRetryAfter time.Duration

	// WaitMin and WaitMax bound the exponential backoff used when the
	// server gives no retry-after hint.
	WaitMin time.Duration
	WaitMax time.Duration
}

// DefaultRetryStatusCodes returns the transient statuses that are retried:
// the usual gateway and throttling codes plus the Cloudflare 52x codes.
func DefaultRetryStatusCodes() []int {
	return []int{
		http.StatusRequestTimeout,
		http.StatusRequestEntityTooLarge,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		521, 522, 524,
	}
}

// DefaultRetryPolicy returns the production retry policy: 3 attempts, a
// 45 s cap on honored retry-after hints, and jittered exponential backoff
// between 250 ms and 2 s otherwise.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		StatusCodes:   DefaultRetryStatusCodes(),
		MaxRetryAfter: 45 * time.Second,
		WaitMin:       250 * time.Millisecond,
		WaitMax:       2 * time.Second,
	}
}

// RetryableStatus reports whether a response with the given status is retried.
func (p RetryPolicy) RetryableStatus(code int) bool {
	return slices.Contains(p.StatusCodes, code)
}

// Validate reports whether the policy is usable.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("retry policy needs at least one attempt")
	}
	if p.MaxRetryAfter < 0 || p.WaitMin < 0 || p.WaitMax < 0 {
		return errors.New("retry policy durations cannot be negative")
	}
	if p.WaitMax < p.WaitMin {
		return fmt.Errorf("retry policy WaitMax (%s) is lower than WaitMin (%s)", p.WaitMax, p.WaitMin)
	}
	return nil
}

// worstCase is an upper bound for a complete GET sequence under this
// policy and the given timeouts.
func (p RetryPolicy) worstCase(b TimeoutBudget) time.Duration {
	attempt := b.Attempt
	if attempt <= 0 {
		attempt = b.Connect + b.TLSHandshake + b.RequestWrite + b.ResponseHeader
	}
	return time.Duration(p.MaxAttempts)*attempt + p.MaxRetryAfter
}

// retryBudget carries the state of one GET sequence. go-retryablehttp
// calls checkRetry and backoff from the goroutine that runs the request,
// so no locking is needed.
type retryBudget struct {
	policy RetryPolicy
	expo   *backoff.ExponentialBackOff
	now    func() time.Time

	attempts   int
	lastStatus int
	waited     time.Duration
	retryAfter time.Duration
}

func (p RetryPolicy) newBudget(now func() time.Time) *retryBudget {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.WaitMin
	expo.MaxInterval = p.WaitMax
	expo.Multiplier = 2
	expo.RandomizationFactor = 0.5
	expo.MaxElapsedTime = 0
	expo.Reset()

	return &retryBudget{
		policy: p,
		expo:   expo,
		now:    now,
	}
}

// checkRetry implements retryablehttp.CheckRetry.
func (b *retryBudget) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	b.attempts++
	b.retryAfter = 0

	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	if err != nil {
		b.lastStatus = 0
		return isTransientError(err), nil
	}

	b.lastStatus = resp.StatusCode
	if !b.policy.RetryableStatus(resp.StatusCode) {
		return false, nil
	}

	if hint, ok := parseRetryAfter(resp.Header.Get("Retry-After"), b.now()); ok {
		if hint > b.policy.MaxRetryAfter-b.waited {
			return false, fmt.Errorf("%w: server asked for %s after %s of waiting (cap %s)",
				ErrRetryAfterBudget, hint, b.waited, b.policy.MaxRetryAfter)
		}
		b.retryAfter = hint
	}
	return true, nil
}

// backoff implements retryablehttp.Backoff. A pending retry-after hint
// wins over the exponential curve; the cumulative wait never exceeds
// MaxRetryAfter.
func (b *retryBudget) backoff(_, maxWait time.Duration, _ int, _ *http.Response) time.Duration {
	wait := b.retryAfter
	if wait <= 0 {
		wait = b.expo.NextBackOff()
		if wait == backoff.Stop || wait > maxWait {
			wait = maxWait
		}
	}

	if remaining := b.policy.MaxRetryAfter - b.waited; wait > remaining {
		wait = max(remaining, 0)
	}
	b.waited += wait
	return wait
}

// parseRetryAfter reads a Retry-After header in either delay-seconds or
// HTTP-date form.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		if secs > math.MaxInt64/int64(time.Second) {
			return time.Duration(math.MaxInt64), true
		}
		return time.Duration(secs) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		return max(at.Sub(now), 0), true
	}
	return 0, false
}
