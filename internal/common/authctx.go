package common

import "context"

type authCtxKey struct{}

// WithUserID attaches the authenticated user id to ctx.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, authCtxKey{}, id)
}

// UserID reads the authenticated user id from ctx.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(authCtxKey{}).(string)
	return id, ok
}
