package jwks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jonboulle/clockwork"

	jwksfetcher "github.com/opstrace/go-jwks-fetcher"
)

const defaultMaxResponseBytes = 1 << 20

// Metric names.
const (
	MetricFetchTotal         = "jwks_fetch_total"
	MetricFetchFailuresTotal = "jwks_fetch_failures_total"
	MetricFallbackTotal      = "jwks_fetch_fallback_total"
	MetricGetDuration        = "jwks_http_get_duration_seconds"
	MetricGetAttempts        = "jwks_http_get_attempts"
	MetricCacheAge           = "jwks_cache_age_seconds"
	MetricPrepopulateTotal   = "jwks_prepopulate_total"
)

// Source tells where the key set of a Result came from.
type Source int

const (
	// SourceFresh is a key set retrieved and decoded by this call.
	SourceFresh Source = iota + 1
	// SourcePrepopulated is the key set handed off by the startup warmup.
	SourcePrepopulated
	// SourceStale is the last known good key set, served because this
	// call's refresh failed.
	SourceStale
)

func (s Source) String() string {
	switch s {
	case SourceFresh:
		return "fresh"
	case SourcePrepopulated:
		return "prepopulated"
	case SourceStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Result is the outcome of a successful Fetch. A degraded fetch is still
// a success: its Source is SourceStale and Cause says what went wrong.
type Result struct {
	KeySet KeySet
	Source Source

	// RetrievedAt is when the key set was fetched. It is zero for
	// prepopulated results.
	RetrievedAt time.Time

	// Age of a stale key set at the time it was served.
	Age time.Duration

	// Attempts is the number of GET attempts this call made.
	Attempts int

	// Cause is the refresh failure behind a stale result.
	Cause error
}

// Stale reports whether the result is a fallback to the last known good key set.
func (r Result) Stale() bool {
	return r.Source == SourceStale
}

// Fetcher retrieves a JWKS document with retries and serves the last
// known good key set when retrieval fails. A Fetcher is safe for
// concurrent use; create one per process and share it.
type Fetcher struct {
	httpClient       *http.Client
	timeouts         TimeoutBudget
	retry            RetryPolicy
	cache            *KeySetCache
	buffer           *PrepopulateBuffer
	logger           jwksfetcher.Logger
	metrics          jwksfetcher.Metrics
	tracer           jwksfetcher.Tracer
	clock            clockwork.Clock
	maxResponseBytes int64
}

// NewFetcher builds and returns a new *Fetcher.
//
// Example:
//
//	fetcher, err := jwks.NewFetcher(
//	    jwks.WithLogger(logger),
//	    jwks.WithRetryPolicy(jwks.DefaultRetryPolicy()),
//	)
func NewFetcher(opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		timeouts:         DefaultTimeoutBudget(),
		retry:            DefaultRetryPolicy(),
		logger:           &jwksfetcher.DefaultLogger{},
		metrics:          &jwksfetcher.NoopMetrics{},
		tracer:           &jwksfetcher.NoopTracer{},
		clock:            clockwork.NewRealClock(),
		maxResponseBytes: defaultMaxResponseBytes,
	}

	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if f.httpClient == nil {
		f.httpClient = f.timeouts.NewHTTPClient()
	}
	if f.cache == nil {
		f.cache = NewKeySetCache(f.clock, f.logger)
	}
	if f.buffer == nil {
		f.buffer = &PrepopulateBuffer{}
	}

	return f, nil
}

// Cache returns the fetcher's last-known-good store.
func (f *Fetcher) Cache() *KeySetCache {
	return f.cache
}

// Fetch returns the current key set for jwksURL.
//
// The first call after a successful prepopulation returns the warmup's
// key set without touching the network. Otherwise the key set is
// retrieved with retries; a decoded response replaces the cached key set.
// If no usable response is obtained (exhausted retries, a final non-200
// status, invalid JSON or an expired ctx) the cached key set is returned
// as a stale Result. Only when nothing is cached does Fetch fail, with a
// *FetchError matching ErrFetchExhaustedNoFallback or
// ErrDecodeFailedNoFallback.
func (f *Fetcher) Fetch(ctx context.Context, jwksURL string) (Result, error) {
	ctx, span := f.tracer.StartSpan(ctx, "jwks.fetch")
	defer span.Finish()
	span.SetTag("jwks.url", jwksURL)

	result, err := f.fetch(ctx, jwksURL)
	if err != nil {
		span.SetError(err)
		f.metrics.IncCounter(MetricFetchFailuresTotal, map[string]string{"kind": ClassifyError(err, f.retry).String()})
		return Result{}, err
	}

	span.SetTag("jwks.source", result.Source.String())
	span.SetTag("jwks.attempts", result.Attempts)
	f.metrics.IncCounter(MetricFetchTotal, map[string]string{"source": result.Source.String()})
	return result, nil
}

func (f *Fetcher) fetch(ctx context.Context, jwksURL string) (Result, error) {
	if keySet, ok := f.buffer.TakeIfPresent(); ok {
		f.logger.Info("JWKS fetcher: first call after prepopulate, serving prepopulated key set", "url", jwksURL)
		return Result{KeySet: keySet, Source: SourcePrepopulated}, nil
	}

	body, attempts, err := f.get(ctx, jwksURL)
	if err != nil {
		return f.fallback(jwksURL, KindFetchExhaustedNoFallback, attempts, err)
	}

	keySet, err := decodeKeySet(body)
	if err != nil {
		f.logger.Warn("JWKS fetcher: JSON deserialization failed", "url", jwksURL, "error", err)
		return f.fallback(jwksURL, KindDecodeFailedNoFallback, attempts, err)
	}

	entry := f.cache.Remember(keySet)
	return Result{
		KeySet:      entry.KeySet,
		Source:      SourceFresh,
		RetrievedAt: entry.RetrievedAt,
		Attempts:    attempts,
	}, nil
}

// fallback serves the cached key set after a failed refresh, or turns the
// failure into a *FetchError of the given kind when nothing is cached.
func (f *Fetcher) fallback(jwksURL string, kind ErrorKind, attempts int, cause error) (Result, error) {
	f.metrics.IncCounter(MetricFallbackTotal, map[string]string{"kind": ClassifyError(cause, f.retry).String()})

	entry, age, err := f.cache.ReadStale()
	if err != nil {
		f.logger.Error("JWKS fetcher: refresh failed and no key set cached", "url", jwksURL, "error", cause)
		return Result{}, &FetchError{Kind: kind, URL: jwksURL, Err: cause}
	}

	f.logger.Warn("JWKS fetcher: refresh failed, serving potentially stale key set",
		"url", jwksURL,
		"age_seconds", age.Seconds(),
		"error", cause,
	)
	f.metrics.SetGauge(MetricCacheAge, age.Seconds(), nil)

	return Result{
		KeySet:      entry.KeySet,
		Source:      SourceStale,
		RetrievedAt: entry.RetrievedAt,
		Age:         age,
		Attempts:    attempts,
		Cause:       cause,
	}, nil
}

// get performs the retried GET and returns the body of a 200 response.
// Any other outcome is an error: the sequence gave up, or its final
// response had another status.
func (f *Fetcher) get(ctx context.Context, jwksURL string) ([]byte, int, error) {
	budget := f.retry.newBudget(f.clock.Now)

	client := &retryablehttp.Client{
		HTTPClient:   f.httpClient,
		Logger:       f.logger,
		RetryWaitMin: f.retry.WaitMin,
		RetryWaitMax: f.retry.WaitMax,
		RetryMax:     f.retry.MaxAttempts - 1,
		CheckRetry:   budget.checkRetry,
		Backoff:      budget.backoff,
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("could not build JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	f.logger.Info("JWKS fetcher: start GET machinery with retrying", "url", jwksURL)
	start := f.clock.Now()
	resp, err := client.Do(req)
	duration := f.clock.Since(start)
	attempts := budget.attempts

	result := "ok"
	if err != nil || resp.StatusCode != http.StatusOK {
		result = "error"
	}
	f.metrics.ObserveHistogram(MetricGetDuration, duration.Seconds(), map[string]string{"result": result})
	f.metrics.ObserveHistogram(MetricGetAttempts, float64(attempts), nil)
	f.logger.Info("JWKS fetcher: GET machinery done",
		"url", jwksURL,
		"duration_seconds", duration.Seconds(),
		"attempts", attempts,
	)

	if err != nil {
		if budget.lastStatus != 0 {
			err = &StatusError{StatusCode: budget.lastStatus, Attempts: attempts, Err: err}
		}
		f.logger.Warn("JWKS fetcher: giving up HTTP GET after retrying", "url", jwksURL, "error", err)
		return nil, attempts, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := &StatusError{StatusCode: resp.StatusCode, Attempts: attempts}
		f.logger.Warn("JWKS fetcher: unusable response", "url", jwksURL, "error", err)
		return nil, attempts, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxResponseBytes))
	if err != nil {
		f.logger.Warn("JWKS fetcher: reading response body failed", "url", jwksURL, "error", err)
		return nil, attempts, fmt.Errorf("could not read JWKS response body: %w", err)
	}
	return body, attempts, nil
}
