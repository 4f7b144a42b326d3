package id

import "context"

type ctxKey uint8

const (
	conversationKey ctxKey = iota + 1
	runKey
)

func with(ctx context.Context, key ctxKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func lookup(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}

// WithConversationID scopes ctx to a conversation. An empty id is ignored.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return with(ctx, conversationKey, conversationID)
}

// ConversationIDFromContext returns the conversation id, or "".
func ConversationIDFromContext(ctx context.Context) string {
	return lookup(ctx, conversationKey)
}

// WithRunID tags ctx with the id of one agent run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return with(ctx, runKey, runID)
}

// RunIDFromContext returns the run id, or "".
func RunIDFromContext(ctx context.Context) string {
	return lookup(ctx, runKey)
}
