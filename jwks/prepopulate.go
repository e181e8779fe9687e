package jwks

import (
	"context"
	"fmt"
	"time"
)

// Prepopulator warms a Fetcher at process start so that the first
// authentication request does not pay for the JWKS round trip.
//
// If warming finishes before the first request, that request receives
// the warmup's key set through the handoff slot. If warming fails, the
// first request simply fetches on its own.
type Prepopulator struct {
	fetcher *Fetcher
	timeout time.Duration
}

// NewPrepopulator returns a Prepopulator for fetcher. A warmup is bounded
// by the worst case of the fetcher's retry policy and timeouts.
func NewPrepopulator(fetcher *Fetcher) *Prepopulator {
	return &Prepopulator{
		fetcher: fetcher,
		timeout: fetcher.retry.worstCase(fetcher.timeouts),
	}
}

// Warm runs one fetch and offers a non-stale result to the handoff slot.
// It never fails and never panics: every problem ends as a log line.
func (p *Prepopulator) Warm(ctx context.Context, jwksURL string) {
	f := p.fetcher

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("non-fatal: JWKS prepopulation panicked", "url", jwksURL, "panic", fmt.Sprint(r))
			f.metrics.IncCounter(MetricPrepopulateTotal, map[string]string{"result": "error"})
		}
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := f.Fetch(ctx, jwksURL)
	if err != nil {
		f.logger.Warn("non-fatal: JWKS prepopulation failed", "url", jwksURL, "error", err)
		f.metrics.IncCounter(MetricPrepopulateTotal, map[string]string{"result": "error"})
		return
	}

	if result.Stale() {
		f.logger.Warn("non-fatal: JWKS prepopulation only found a stale key set, nothing handed off",
			"url", jwksURL, "error", result.Cause)
		f.metrics.IncCounter(MetricPrepopulateTotal, map[string]string{"result": "stale"})
		return
	}

	f.buffer.Offer(result.KeySet)
	f.logger.Info("JWKS prepopulation: done", "url", jwksURL)
	f.metrics.IncCounter(MetricPrepopulateTotal, map[string]string{"result": "ok"})
}

// Start runs Warm on its own goroutine and returns immediately. The
// returned channel is closed when the warmup has finished; callers that
// do not care may drop it.
func (p *Prepopulator) Start(jwksURL string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Warm(context.Background(), jwksURL)
	}()
	return done
}
