package keyring

import "context"

type ctxKey struct{}

var dataKeyKey = ctxKey{}

// WithDataKey scopes an unwrapped data key to a request context. The key
// lives exactly as long as the context; nothing may copy it elsewhere.
func WithDataKey(ctx context.Context, dk DataKey) context.Context {
	if dk == nil {
		return ctx
	}
	return context.WithValue(ctx, dataKeyKey, dk)
}

// DataKeyFrom extracts the request's data key if one was unwrapped.
func DataKeyFrom(ctx context.Context) (DataKey, bool) {
	dk, ok := ctx.Value(dataKeyKey).(DataKey)
	return dk, ok
}
