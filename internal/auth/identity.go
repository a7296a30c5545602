package auth

import (
	"context"
	"time"

	"github.com/roomkartz/roomkartz-api/internal/apperr"
	"github.com/roomkartz/roomkartz-api/internal/user"
)

var (
	ErrInvalidToken = apperr.New(apperr.ErrUnauthorized, "invalid token")
	ErrExpiredToken = apperr.New(apperr.ErrUnauthorized, "token has expired")
)

// Identity is what a verified bearer token says about its holder
type Identity struct {
	Subject user.Subject
	// Role is carried by locally issued tokens only
	Role      user.Role
	Email     string
	Phone     string
	ExpiresAt time.Time
}

// Verifier resolves a bearer token to an Identity.
// Exactly one implementation is active per deployment.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Issuer signs tokens for users who log in with a password
type Issuer interface {
	Issue(userID string, role user.Role) (string, error)
}

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const IdentityContextKey ContextKey = "identity"

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, id)
}

// IdentityFromContext returns the identity stored by RequireAuth
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(IdentityContextKey).(*Identity)
	return id, ok && id != nil
}
