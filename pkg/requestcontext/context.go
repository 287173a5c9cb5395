// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services read them without
// importing net/http.
package requestcontext

import (
	"context"
	"time"
)

type (
	toolIDKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithToolID stores the calling tool's identifier on the context.
func WithToolID(ctx context.Context, toolID string) context.Context {
	return context.WithValue(ctx, toolIDKey{}, toolID)
}

// ToolID returns the calling tool's identifier, or "" when unset.
func ToolID(ctx context.Context) string {
	v, _ := ctx.Value(toolIDKey{}).(string)
	return v
}

// WithRequestID stores the correlation ID for the current request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the correlation ID, or "" when unset.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithTime pins the request time. Tests use this to make stamping
// deterministic.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time, falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
