package auth

import "errors"

var (
	// ErrInvalidCredentials is deliberately vague; sign-in failures are
	// surfaced to users as a friendly message and never retried.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrNotSignedIn        = errors.New("no user is signed in")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)
