package jwksgin

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

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

type ginMiddlewareConfig struct {
	errorHandler func(*gin.Context, error)
	contextKey   string
}

// NewGinMiddleware creates a Gin middleware that resolves the key set of
// jwksURL for every request. On success the jwks.Result is stored both in
// the gin context (under the context key) and in the request context
// (see jwks.FromContext). When no key set is available at all the error
// handler runs and the chain is aborted.
func NewGinMiddleware(fetcher Fetcher, jwksURL string, opts ...Option) gin.HandlerFunc {
	config := &ginMiddlewareConfig{
		errorHandler: defaultGinErrorHandler,
		contextKey:   DefaultResultKey,
	}

	for _, opt := range opts {
		opt(config)
	}

	return func(c *gin.Context) {
		result, err := fetcher.Fetch(c.Request.Context(), jwksURL)
		if err != nil {
			config.errorHandler(c, err)
			c.Abort()
			return
		}

		c.Set(config.contextKey, result)
		c.Request = c.Request.WithContext(jwks.NewContext(c.Request.Context(), result))
		c.Next()
	}
}

func defaultGinErrorHandler(c *gin.Context, err error) {
	body := gin.H{"error": "signing keys unavailable"}

	var fetchErr *jwks.FetchError
	if errors.As(err, &fetchErr) {
		body["kind"] = fetchErr.Kind.String()
	}
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, body)
}

// GetResult returns the jwks.Result stored by the middleware.
func GetResult(c *gin.Context, contextKey string) (jwks.Result, error) {
	if contextKey == "" {
		contextKey = DefaultResultKey
	}
	value, exists := c.Get(contextKey)
	if !exists {
		return jwks.Result{}, ErrMissingResult
	}

	result, ok := value.(jwks.Result)
	if !ok {
		return jwks.Result{}, ErrInvalidResult
	}
	return result, nil
}
