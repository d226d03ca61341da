package principal

import "context"

type principalContextKey struct{}
type traceContextKey struct{}

// WithPrincipal attaches the resolved principal to the request context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// FromContext retrieves the principal from the context.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok || p.IsZero() {
		return Principal{}, false
	}
	return p, true
}

// WithTraceID attaches the request trace id to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceContextKey{}, traceID)
}

// TraceIDFromContext retrieves the trace id from the context.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceContextKey{}).(string)
	return id, ok && id != ""
}
