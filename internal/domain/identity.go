package domain

import (
	"context"
)

// Identity is an authenticated principal as known to the auth provider.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	Disabled      bool
}

// IdentityEvent is pushed by an AuthProvider whenever its current identity
// changes. A nil Identity means nobody is signed in.
type IdentityEvent struct {
	Identity *Identity
}

// AuthProvider is the remote authentication service.
//
// Subscribe must deliver the provider's current state as the first event,
// and must have queued the event for a state change before the method that
// caused it returns.
type AuthProvider interface {
	CreateAccount(ctx context.Context, email string, password string) (Identity, error)
	Authenticate(ctx context.Context, email string, password string) (Identity, error)
	SendVerificationEmail(ctx context.Context, identity Identity) error
	InvalidateSession(ctx context.Context) error
	RefreshIdentity(ctx context.Context, identity Identity) (Identity, error)
	Subscribe(ctx context.Context) <-chan IdentityEvent
}
