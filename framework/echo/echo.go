package jwksecho

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opstrace/go-jwks-fetcher/jwks"
)

const DefaultResultKey = "jwks"

var (
	ErrMissingResult = errors.New("no JWKS result found in context")
	ErrInvalidResult = errors.New("invalid JWKS result type")
)

// Fetcher is implemented by *jwks.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, jwksURL string) (jwks.Result, error)
}

// echoMiddlewareConfig holds all configuration for the middleware
type echoMiddlewareConfig struct {
	errorHandler func(echo.Context, error) error
	contextKey   string
}

// NewEchoMiddleware returns an Echo middleware that resolves the key set
// of jwksURL for every request and stores the jwks.Result in the Echo
// context and the request context. When no key set is available the
// error handler's result is returned and next is not called.
func NewEchoMiddleware(fetcher Fetcher, jwksURL string, opts ...Option) echo.MiddlewareFunc {
	config := &echoMiddlewareConfig{
		errorHandler: defaultEchoErrorHandler,
		contextKey:   DefaultResultKey,
	}

	for _, opt := range opts {
		opt(config)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			result, err := fetcher.Fetch(req.Context(), jwksURL)
			if err != nil {
				return config.errorHandler(c, err)
			}

			c.Set(config.contextKey, result)
			c.SetRequest(req.WithContext(jwks.NewContext(req.Context(), result)))
			return next(c)
		}
	}
}

func defaultEchoErrorHandler(c echo.Context, err error) error {
	body := map[string]string{"message": "signing keys unavailable"}

	var fetchErr *jwks.FetchError
	if errors.As(err, &fetchErr) {
		body["kind"] = fetchErr.Kind.String()
	}
	return c.JSON(http.StatusServiceUnavailable, body)
}

// GetResult extracts the jwks.Result from the Echo context. An empty
// contextKey means DefaultResultKey.
func GetResult(c echo.Context, contextKey string) (jwks.Result, error) {
	if contextKey == "" {
		contextKey = DefaultResultKey
	}
	value := c.Get(contextKey)
	if value == nil {
		return jwks.Result{}, ErrMissingResult
	}

	result, ok := value.(jwks.Result)
	if !ok {
		return jwks.Result{}, ErrInvalidResult
	}
	return result, nil
}
