package tools

import "context"

type contextKey string

const callIDKey contextKey = "tool_call_id"

// WithCallID adds the tool call id being dispatched to the context so
// executors can correlate their own logging with the turn.
func WithCallID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, callIDKey, id)
}

// CallIDFromContext extracts the tool call id. Returns "" if not set.
func CallIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey).(string)
	return id
}
