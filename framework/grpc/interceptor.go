package jwksgrpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	jwksfetcher "github.com/opstrace/go-jwks-fetcher"
	"github.com/opstrace/go-jwks-fetcher/jwks"
)

var ErrMissingResult = errors.New("no JWKS result found in context")

// Fetcher is implemented by *jwks.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, jwksURL string) (jwks.Result, error)
}

// Interceptor resolves the key set of one JWKS URL for every gRPC call
// and hands it to the handler through the call context.
type Interceptor struct {
	fetcher          Fetcher
	jwksURL          string
	errorHandler     func(ctx context.Context, err error) error
	exclusionChecker func(method string) bool
	logger           jwksfetcher.Logger
}

// New creates a new Interceptor with the given options.
func New(fetcher Fetcher, jwksURL string, opts ...Option) *Interceptor {
	i := &Interceptor{
		fetcher:      fetcher,
		jwksURL:      jwksURL,
		errorHandler: defaultGRPCErrorHandler,
		logger:       jwksfetcher.NopLogger{},
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// resolve fetches the key set and returns the context carrying it.
func (i *Interceptor) resolve(ctx context.Context, method string) (context.Context, error) {
	if i.exclusionChecker != nil && i.exclusionChecker(method) {
		i.logger.Debug("Method excluded from key set resolution", "method", method)
		return ctx, nil
	}

	start := time.Now()
	result, err := i.fetcher.Fetch(ctx, i.jwksURL)
	if err != nil {
		i.logger.Error("No key set available", "method", method, "error", err)
		return nil, i.errorHandler(ctx, err)
	}

	i.logger.Debug("Key set resolved",
		"method", method,
		"source", result.Source.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return jwks.NewContext(ctx, result), nil
}

// UnaryServerInterceptor returns a gRPC unary server interceptor.
func (i *Interceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		newCtx, err := i.resolve(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor.
func (i *Interceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		newCtx, err := i.resolve(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: newCtx})
	}
}

// wrappedServerStream wraps a grpc.ServerStream to override the context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

func defaultGRPCErrorHandler(_ context.Context, err error) error {
	var fetchErr *jwks.FetchError
	if errors.As(err, &fetchErr) {
		return status.Errorf(codes.Unavailable, "signing keys unavailable (%s)", fetchErr.Kind)
	}
	return status.Error(codes.Unavailable, "signing keys unavailable")
}

// RequireResultFromContext retrieves the jwks.Result stored by the
// interceptors, or ErrMissingResult.
func RequireResultFromContext(ctx context.Context) (jwks.Result, error) {
	result, ok := jwks.FromContext(ctx)
	if !ok {
		return jwks.Result{}, ErrMissingResult
	}
	return result, nil
}
