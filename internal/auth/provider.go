// Package auth defines the identity collaborator: who is signed in, a
// current-session signal, and the credential operations the account flows
// need (re-authentication, identity deletion).
package auth

import "context"

// Identity describes an authenticated user.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Provider validates credentials and tracks the current session.
//
// OnAuthChange callbacks fire with the new identity on sign-in and with nil
// on sign-out; the returned func cancels the registration.
type Provider interface {
	Current() *Identity
	OnAuthChange(fn func(*Identity)) func()

	SignUp(ctx context.Context, email, password string) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignOut()

	// Reauthenticate checks credential freshness for the signed-in user.
	// Destructive flows call it immediately before acting.
	Reauthenticate(ctx context.Context, password string) error

	// DeleteIdentity removes the signed-in user's credential record and
	// signs out.
	DeleteIdentity(ctx context.Context) error

	// SessionToken returns a signed token for the current session.
	SessionToken() (string, error)
}
