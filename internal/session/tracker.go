// Package session tracks which user the client is operating as. It bridges
// the auth provider's change stream to the rest of the app: controllers ask
// the tracker for the current user id instead of holding identity state of
// their own.
package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/pozgpt/chat/internal/auth"
	"github.com/pozgpt/chat/internal/model"
)

// Tracker mirrors the auth provider's current identity and fans sign-in and
// sign-out transitions out to registered hooks.
type Tracker struct {
	mu     sync.Mutex
	userID string
	email  string

	onSignIn  []func(userID string)
	onSignOut []func()

	unsub func()
	log   zerolog.Logger
}

// NewTracker subscribes to provider changes and seeds state from the current
// identity, if any. Call Close to detach.
func NewTracker(provider auth.Provider, log zerolog.Logger) *Tracker {
	t := &Tracker{log: log}
	if ident := provider.Current(); ident != nil {
		t.userID = ident.UserID
		t.email = ident.Email
	}
	t.unsub = provider.OnAuthChange(t.handleChange)
	return t
}

// NewStatic returns a tracker pinned to userID, for tools and tests that
// operate outside an auth provider.
func NewStatic(userID string) *Tracker {
	return &Tracker{userID: userID}
}

// UserID returns the signed-in user's id, or ErrNotAuthenticated.
func (t *Tracker) UserID() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.userID == "" {
		return "", model.ErrNotAuthenticated
	}
	return t.userID, nil
}

// Email returns the signed-in user's email, empty when signed out.
func (t *Tracker) Email() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.email
}

// SignedIn reports whether a user session is active.
func (t *Tracker) SignedIn() bool {
	_, err := t.UserID()
	return err == nil
}

// OnSignIn registers fn to run with the new user id on every sign-in.
func (t *Tracker) OnSignIn(fn func(userID string)) {
	t.mu.Lock()
	t.onSignIn = append(t.onSignIn, fn)
	t.mu.Unlock()
}

// OnSignOut registers fn to run on every sign-out. Controllers use this to
// reset per-user state.
func (t *Tracker) OnSignOut(fn func()) {
	t.mu.Lock()
	t.onSignOut = append(t.onSignOut, fn)
	t.mu.Unlock()
}

// Close detaches the tracker from the auth provider.
func (t *Tracker) Close() {
	if t.unsub != nil {
		t.unsub()
	}
}

func (t *Tracker) handleChange(ident *auth.Identity) {
	t.mu.Lock()
	if ident == nil {
		wasSignedIn := t.userID != ""
		t.userID = ""
		t.email = ""
		hooks := append([]func(){}, t.onSignOut...)
		t.mu.Unlock()
		if wasSignedIn {
			t.log.Info().Msg("session ended")
			for _, fn := range hooks {
				fn()
			}
		}
		return
	}
	t.userID = ident.UserID
	t.email = ident.Email
	hooks := append([]func(string){}, t.onSignIn...)
	t.mu.Unlock()
	t.log.Info().Str("user_id", ident.UserID).Msg("session started")
	for _, fn := range hooks {
		fn(ident.UserID)
	}
}
