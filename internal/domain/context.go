package domain

import "context"

// WithRequester stores the identity of the caller on the context.
func WithRequester(ctx context.Context, requester string) context.Context {
	return context.WithValue(ctx, RequesterIdCtxKey, requester)
}

// RequesterFrom returns the caller identity stored by WithRequester.
func RequesterFrom(ctx context.Context) (string, bool) {
	requester, ok := ctx.Value(RequesterIdCtxKey).(string)
	return requester, ok && requester != ""
}
