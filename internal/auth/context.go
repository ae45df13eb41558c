package auth

import "context"

type contextKey string

const callerKey contextKey = "caller"

// Caller is the already-authenticated identity attached to a request by the
// auth middleware. The core never parses session formats; it only consumes
// this resolved value.
type Caller struct {
	ID   string
	Role Role
}

func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey).(Caller)
	return caller, ok
}
