package jwks

import "context"

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	resultKey contextKey = iota
)

// NewContext returns a copy of ctx carrying result. Routing adapters use
// it to hand the resolved key set to request handlers.
func NewContext(ctx context.Context, result Result) context.Context {
	return context.WithValue(ctx, resultKey, result)
}

// FromContext returns the Result stored by NewContext.
func FromContext(ctx context.Context) (Result, bool) {
	result, ok := ctx.Value(resultKey).(Result)
	return result, ok
}
