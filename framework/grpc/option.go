package jwksgrpc

import (
	"context"

	jwksfetcher "github.com/opstrace/go-jwks-fetcher"
)

// Option defines a functional option for configuring the interceptors.
type Option func(*Interceptor)

// WithErrorHandler sets a custom gRPC error handler. It maps the fetch
// failure to the error returned to the client.
func WithErrorHandler(handler func(ctx context.Context, err error) error) Option {
	return func(i *Interceptor) {
		i.errorHandler = handler
	}
}

// WithExcludedMethods configures a list of full gRPC method names that
// are served without resolving the key set.
func WithExcludedMethods(methods []string) Option {
	methodSet := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		methodSet[m] = struct{}{}
	}
	return func(i *Interceptor) {
		i.exclusionChecker = func(method string) bool {
			_, ok := methodSet[method]
			return ok
		}
	}
}

// WithExclusionChecker configures a custom exclusion checker for gRPC methods.
func WithExclusionChecker(checker func(string) bool) Option {
	return func(i *Interceptor) {
		i.exclusionChecker = checker
	}
}

// WithLogger sets the logger.
func WithLogger(logger jwksfetcher.Logger) Option {
	return func(i *Interceptor) {
		i.logger = logger
	}
}
