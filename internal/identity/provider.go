// Package identity supplies stable subject identifiers for to-do list sessions.
//
// A user is obtained either by presenting a signed bearer token or by asking
// for an anonymous session. Listeners registered with OnAuthChange observe
// every sign-in and sign-out.
package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a bearer token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrSigningKeyMissing is returned when token operations run without a key.
	ErrSigningKeyMissing = errors.New("token signing key is not configured")
)

// User is a signed-in principal.
type User struct {
	UID        string    `json:"uid"`
	Anonymous  bool      `json:"anonymous"`
	SignedInAt time.Time `json:"signed_in_at"`
}

// Provider is the identity surface consumed by the session resolver.
type Provider interface {
	SignInAnonymously(ctx context.Context) (User, error)
	SignInWithToken(ctx context.Context, token string) (User, error)
	// OnAuthChange registers fn and calls it once with the current user
	// (nil when signed out), then again on every change.
	OnAuthChange(fn func(*User)) (unsubscribe func())
	CurrentUser() *User
	SignOut()
}

// Claims is the bearer token payload. Subject carries the durable uid.
type Claims struct {
	jwt.RegisteredClaims
}

// LocalProvider verifies HS256 bearer tokens in-process and mints uuid
// identities for anonymous sessions. Each instance tracks one signed-in user,
// matching a single app lifetime.
type LocalProvider struct {
	signingKey []byte
	issuer     string

	// notifyMu is held across listener calls so every listener sees changes
	// in the order they were made.
	notifyMu sync.Mutex

	mu        sync.Mutex
	current   *User
	listeners map[int]func(*User)
	nextID    int
}

func NewLocalProvider(signingKey, issuer string) *LocalProvider {
	if issuer == "" {
		issuer = "tasklist"
	}
	return &LocalProvider{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		listeners:  make(map[int]func(*User)),
	}
}

func (p *LocalProvider) SignInAnonymously(ctx context.Context) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	u := User{
		UID:        uuid.NewString(),
		Anonymous:  true,
		SignedInAt: time.Now().UTC(),
	}
	p.setCurrent(&u)
	return u, nil
}

func (p *LocalProvider) SignInWithToken(ctx context.Context, token string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	claims, err := p.VerifyToken(token)
	if err != nil {
		return User{}, err
	}
	u := User{
		UID:        claims.Subject,
		SignedInAt: time.Now().UTC(),
	}
	p.setCurrent(&u)
	return u, nil
}

// IssueToken mints a bearer token for uid valid for ttl.
func (p *LocalProvider) IssueToken(uid string, ttl time.Duration) (string, error) {
	if len(p.signingKey) == 0 {
		return "", ErrSigningKeyMissing
	}
	if uid == "" {
		return "", errors.New("uid is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.signingKey)
}

// VerifyToken validates signature, expiry and issuer and returns the claims.
func (p *LocalProvider) VerifyToken(tokenString string) (*Claims, error) {
	if len(p.signingKey) == 0 {
		return nil, ErrSigningKeyMissing
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.signingKey, nil
	}, jwt.WithIssuer(p.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (p *LocalProvider) OnAuthChange(fn func(*User)) func() {
	if fn == nil {
		return func() {}
	}
	p.notifyMu.Lock()
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	current := cloneUser(p.current)
	p.mu.Unlock()

	fn(current)
	p.notifyMu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *LocalProvider) CurrentUser() *User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneUser(p.current)
}

func (p *LocalProvider) SignOut() {
	p.setCurrent(nil)
}

// setCurrent must not be called from a listener.
func (p *LocalProvider) setCurrent(u *User) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	p.current = cloneUser(u)
	listeners := make([]func(*User), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(cloneUser(u))
	}
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
