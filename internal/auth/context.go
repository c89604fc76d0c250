package auth

import "context"

type contextKey struct{}

// AuthContext identifies the authenticated user for the duration of a request.
type AuthContext struct {
	UserID int64
	Role   Role
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func RoleOf(ctx context.Context) Role {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.Role
}

// Can reports whether the request's role grants the capability.
func Can(ctx context.Context, c Capability) bool {
	return RoleOf(ctx).Can(c)
}
