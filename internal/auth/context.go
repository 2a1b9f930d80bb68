package auth

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the verified caller of a request.
type Identity struct {
	UserID   uuid.UUID
	DeviceID string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by Middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
