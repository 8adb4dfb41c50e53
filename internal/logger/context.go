package logger

import "context"

// ctxKey is unexported so no other package can collide with or forge the
// request-id entry.
type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID stores the request correlation id in the context. An empty
// id is not stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request correlation id, or "" when none was set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
