// Package auth registers users, issues session tokens and reports the
// signed-in state to subscribers.
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
)

// MinPasswordLength is the shortest password accepted at sign up.
const MinPasswordLength = 6

var (
	ErrInvalidEmail       = errors.New("email inválido")
	ErrPasswordTooShort   = errors.New("A senha precisa ter pelo menos 6 caracteres.")
	ErrPasswordMismatch   = errors.New("As senhas não coincidem.")
	ErrEmailInUse         = errors.New("email já cadastrado")
	ErrInvalidCredentials = errors.New("Email ou senha inválidos.")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUnsupported        = errors.New("operation not supported by this provider")
)

// User identifies an authenticated account.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Session is returned on sign up and sign in.
type Session struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// State is one auth-state notification. A nil User means signed out.
type State struct {
	User *User
	At   time.Time
}

func (s State) SignedIn() bool { return s.User != nil }

// Verifier turns a bearer token into a user.
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// Provider is the full account lifecycle.
type Provider interface {
	Verifier
	CreateUser(ctx context.Context, email, password, confirm string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	// SignOut revokes token and notifies subscribers.
	SignOut(ctx context.Context, token string) error
	// OnAuthStateChanged delivers the current state of uid immediately, then
	// every change of that user until cancel is called or ctx ends. The
	// channel is closed after.
	OnAuthStateChanged(ctx context.Context, uid string) (<-chan State, func())
}

// ValidateSignUp checks the sign-up form fields in the order the user sees them.
func ValidateSignUp(email, password, confirm string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(normalized); err != nil || !strings.Contains(normalized, "@") {
		return "", ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	if password != confirm {
		return "", ErrPasswordMismatch
	}
	return normalized, nil
}
