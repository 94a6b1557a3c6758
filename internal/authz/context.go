package authz

import (
	"context"

	"github.com/google/uuid"
)

type userKey struct{}

func WithUser(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

// UserFrom returns the authenticated user set by an authz middleware.
func UserFrom(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(userKey{}).(uuid.UUID)
	return v, ok && v != uuid.Nil
}
