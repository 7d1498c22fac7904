package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

type credential struct {
	userID string
	email  string
	hash   []byte
}

// LocalProvider is a self-contained email/password provider: bcrypt-hashed
// credentials held in process memory and HS256 session tokens. It stands in
// for a hosted identity service in local and test targets.
type LocalProvider struct {
	mu       sync.Mutex
	byEmail  map[string]*credential
	current  *Identity
	nextSub  int
	subs     map[int]func(*Identity)
	secret   []byte
	tokenTTL time.Duration
}

// NewLocalProvider creates a provider signing session tokens with secret.
func NewLocalProvider(secret string, tokenTTL time.Duration) *LocalProvider {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &LocalProvider{
		byEmail:  make(map[string]*credential),
		subs:     make(map[int]func(*Identity)),
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

func (p *LocalProvider) Current() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	cp := *p.current
	return &cp
}

func (p *LocalProvider) OnAuthChange(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrInvalidCredentials
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if _, ok := p.byEmail[email]; ok {
		p.mu.Unlock()
		return nil, ErrEmailTaken
	}
	cred := &credential{userID: uuid.New().String(), email: email, hash: hash}
	p.byEmail[email] = cred
	ident := &Identity{UserID: cred.userID, Email: cred.email}
	p.current = ident
	p.mu.Unlock()

	p.notify(ident)
	cp := *ident
	return &cp, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	p.mu.Lock()
	cred, ok := p.byEmail[email]
	p.mu.Unlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(cred.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	ident := &Identity{UserID: cred.userID, Email: cred.email}
	p.mu.Lock()
	p.current = ident
	p.mu.Unlock()

	p.notify(ident)
	cp := *ident
	return &cp, nil
}

func (p *LocalProvider) SignOut() {
	p.mu.Lock()
	wasSignedIn := p.current != nil
	p.current = nil
	p.mu.Unlock()
	if wasSignedIn {
		p.notify(nil)
	}
}

func (p *LocalProvider) Reauthenticate(ctx context.Context, password string) error {
	p.mu.Lock()
	cur := p.current
	var cred *credential
	if cur != nil {
		cred = p.byEmail[cur.Email]
	}
	p.mu.Unlock()

	if cur == nil || cred == nil {
		return ErrNotSignedIn
	}
	if err := bcrypt.CompareHashAndPassword(cred.hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (p *LocalProvider) DeleteIdentity(ctx context.Context) error {
	p.mu.Lock()
	cur := p.current
	if cur == nil {
		p.mu.Unlock()
		return ErrNotSignedIn
	}
	delete(p.byEmail, cur.Email)
	p.current = nil
	p.mu.Unlock()

	p.notify(nil)
	return nil
}

func (p *LocalProvider) SessionToken() (string, error) {
	p.mu.Lock()
	cur := p.current
	p.mu.Unlock()
	if cur == nil {
		return "", ErrNotSignedIn
	}
	return signToken(p.secret, cur, p.tokenTTL)
}

// UpdatePassword replaces the signed-in user's password after a successful
// re-authentication with the current one.
func (p *LocalProvider) UpdatePassword(ctx context.Context, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return ErrWeakPassword
	}
	if err := p.Reauthenticate(ctx, currentPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ErrNotSignedIn
	}
	if cred, ok := p.byEmail[p.current.Email]; ok {
		cred.hash = hash
	}
	return nil
}

// notify runs callbacks outside p.mu so a callback may call back into the
// provider.
func (p *LocalProvider) notify(ident *Identity) {
	p.mu.Lock()
	fns := make([]func(*Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		var cp *Identity
		if ident != nil {
			c := *ident
			cp = &c
		}
		fn(cp)
	}
}
