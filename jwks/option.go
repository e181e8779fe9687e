package jwks

import (
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"

	jwksfetcher "github.com/opstrace/go-jwks-fetcher"
)

// Option is how options for the Fetcher are set up.
type Option func(*Fetcher) error

// WithHTTPClient sets the HTTP client used for the GET attempts. The
// client's own transport timeouts then replace the TimeoutBudget.
// If not specified, a client built by TimeoutBudget.NewHTTPClient is used.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) error {
		if c == nil {
			return fmt.Errorf("HTTP client cannot be nil")
		}
		f.httpClient = c
		return nil
	}
}

// WithTimeoutBudget sets the per-attempt timeouts.
// Default: DefaultTimeoutBudget().
func WithTimeoutBudget(b TimeoutBudget) Option {
	return func(f *Fetcher) error {
		if b.Connect < 0 || b.TLSHandshake < 0 || b.RequestWrite < 0 || b.ResponseHeader < 0 || b.Attempt < 0 {
			return fmt.Errorf("timeouts cannot be negative")
		}
		f.timeouts = b
		return nil
	}
}

// WithRetryPolicy sets the retry policy.
// Default: DefaultRetryPolicy().
func WithRetryPolicy(p RetryPolicy) Option {
	return func(f *Fetcher) error {
		if err := p.Validate(); err != nil {
			return err
		}
		f.retry = p
		return nil
	}
}

// WithLogger sets the logger. Default: jwksfetcher.DefaultLogger.
func WithLogger(logger jwksfetcher.Logger) Option {
	return func(f *Fetcher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		f.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics sink. Default: jwksfetcher.NoopMetrics.
func WithMetrics(metrics jwksfetcher.Metrics) Option {
	return func(f *Fetcher) error {
		if metrics == nil {
			return fmt.Errorf("metrics cannot be nil")
		}
		f.metrics = metrics
		return nil
	}
}

// WithTracer sets the tracer. Default: jwksfetcher.NoopTracer.
func WithTracer(tracer jwksfetcher.Tracer) Option {
	return func(f *Fetcher) error {
		if tracer == nil {
			return fmt.Errorf("tracer cannot be nil")
		}
		f.tracer = tracer
		return nil
	}
}

// WithClock sets the clock used for cache timestamps and GET durations.
func WithClock(clock clockwork.Clock) Option {
	return func(f *Fetcher) error {
		if clock == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		f.clock = clock
		return nil
	}
}

// WithCache makes the Fetcher use an existing KeySetCache, for example to
// share the last known good key set between fetchers.
func WithCache(cache *KeySetCache) Option {
	return func(f *Fetcher) error {
		if cache == nil {
			return fmt.Errorf("cache cannot be nil")
		}
		f.cache = cache
		return nil
	}
}

// WithPrepopulateBuffer makes the Fetcher use an existing handoff slot.
func WithPrepopulateBuffer(buffer *PrepopulateBuffer) Option {
	return func(f *Fetcher) error {
		if buffer == nil {
			return fmt.Errorf("prepopulate buffer cannot be nil")
		}
		f.buffer = buffer
		return nil
	}
}

// WithMaxResponseBytes limits how much of a response body is read.
// Larger bodies are truncated and therefore fail JSON decoding.
// Default: 1 MiB.
func WithMaxResponseBytes(n int64) Option {
	return func(f *Fetcher) error {
		if n <= 0 {
			return fmt.Errorf("max response bytes must be positive")
		}
		f.maxResponseBytes = n
		return nil
	}
}
