/*
Package jwksfetcher holds the observability interfaces shared by the
packages of this module: a leveled structured Logger, a Metrics sink
and a Tracer, together with adapters for the common implementations.

The JWKS retrieval subsystem itself lives in the jwks package:

	import (
	    jwksfetcher "github.com/opstrace/go-jwks-fetcher"
	    "github.com/opstrace/go-jwks-fetcher/jwks"
	)

	fetcher, err := jwks.NewFetcher(
	    jwks.WithLogger(jwksfetcher.NewZapLogger(zapLogger.Sugar())),
	    jwks.WithMetrics(jwksfetcher.NewPrometheusMetrics(prometheus.DefaultRegisterer)),
	)
	if err != nil {
	    log.Fatal(err)
	}

	// Warm the cache without blocking startup.
	jwks.NewPrepopulator(fetcher).Start(jwksURL)

	// Per request:
	result, err := fetcher.Fetch(r.Context(), jwksURL)

# Logging

Any type with Debug, Info, Warn and Error methods taking a message and
alternating key/value pairs is a Logger. *slog.Logger and hclog.Logger
qualify directly. Adapters exist for zap, zerolog and logrus:

	jwksfetcher.NewZapLogger(zap.NewExample().Sugar())
	jwksfetcher.NewZerologLogger(zerolog.New(os.Stderr))
	jwksfetcher.NewLogrusLogger(logrus.StandardLogger())

DefaultLogger prints through the standard log package and NopLogger
discards everything.

# Metrics

NewPrometheusMetrics registers vectors lazily with the given
prometheus.Registerer. NoopMetrics is the default.

# Tracing

NewOpenTelemetryTracer wraps an OpenTelemetry tracer. NoopTracer is the
default.
*/
package jwksfetcher
