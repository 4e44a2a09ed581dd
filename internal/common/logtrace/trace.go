package logtrace

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// WithRequestID returns a context carrying id as the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIdFromContext extracts the request ID from the context.
// Returns an empty string if the context is nil or if no request ID is found.
func RequestIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	r, ok := ctx.Value(requestIDKey{}).(string)
	if !ok {
		return ""
	}
	return r
}

// EnsureRequestID returns the request ID already present in ctx, or a new one.
func EnsureRequestID(ctx context.Context) string {
	if id := RequestIdFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
