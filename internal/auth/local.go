package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/storage"
)

const tokenIssuer = "zoefinan"

// LocalProvider keeps bcrypt password hashes in a CredentialStore and issues
// HS256 session tokens.
type LocalProvider struct {
	creds  storage.CredentialStore
	docs   storage.DocumentStore
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
	logger *log.Logger
	hub    *stateHub

	mu      sync.Mutex
	revoked map[string]time.Time // token id -> expiry
}

// LocalOption customizes a LocalProvider.
type LocalOption func(*LocalProvider)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LocalOption {
	return func(p *LocalProvider) { p.now = now }
}

// WithBcryptCost lowers the hashing cost, mostly for tests.
func WithBcryptCost(cost int) LocalOption {
	return func(p *LocalProvider) { p.cost = cost }
}

func NewLocalProvider(creds storage.CredentialStore, docs storage.DocumentStore, secret string, ttl time.Duration, logger *log.Logger, opts ...LocalOption) *LocalProvider {
	if logger == nil {
		logger = log.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	p := &LocalProvider{
		creds:   creds,
		docs:    docs,
		secret:  []byte(secret),
		ttl:     ttl,
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
		logger:  logger.WithComponent(log.ComponentAuth),
		revoked: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.hub = newStateHub(p.now)
	return p
}

// CreateUser registers the login and creates the user's document.
func (p *LocalProvider) CreateUser(ctx context.Context, email, password, confirm string) (Session, error) {
	normalized, err := ValidateSignUp(email, password, confirm)
	if err != nil {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	now := p.now()
	user := User{UID: uuid.NewString(), Email: normalized}
	err = p.creds.CreateCredential(ctx, storage.Credential{
		UID:          user.UID,
		Email:        normalized,
		PasswordHash: hash,
		CreatedAt:    now,
	})
	if errors.Is(err, storage.ErrCredentialExists) {
		return Session{}, ErrEmailInUse
	}
	if err != nil {
		return Session{}, fmt.Errorf("store credential: %w", err)
	}

	if err := p.docs.Set(ctx, user.UID, &core.UserDocument{Email: normalized, CreatedAt: now}); err != nil {
		// Without its document the login is unusable, so free the email again.
		if derr := p.creds.DeleteCredential(ctx, normalized, user.UID); derr != nil {
			p.logger.ErrorContext(ctx, "Failed to roll back credential",
				log.FieldUserID, user.UID,
				log.FieldError, derr)
		}
		return Session{}, fmt.Errorf("create user document: %w", err)
	}

	p.logger.InfoContext(ctx, "User registered", log.FieldUserID, user.UID)
	return p.startSession(user)
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	cred, err := p.creds.CredentialByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("load credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(cred.PasswordHash, []byte(password)); err != nil {
		p.logger.WarnContext(ctx, "Failed sign in", log.FieldUserID, cred.UID)
		return Session{}, ErrInvalidCredentials
	}

	p.logger.InfoContext(ctx, "User logged in", log.FieldUserID, cred.UID)
	return p.startSession(User{UID: cred.UID, Email: cred.Email})
}

func (p *LocalProvider) startSession(user User) (Session, error) {
	now := p.now()
	expires := now.Add(p.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   user.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return Session{}, fmt.Errorf("failed to generate token: %w", err)
	}

	p.hub.publish(user.UID, &user)
	return Session{User: user, Token: signed, ExpiresAt: expires}, nil
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (p *LocalProvider) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func (p *LocalProvider) Verify(ctx context.Context, token string) (User, error) {
	claims, err := p.parse(token)
	if err != nil {
		return User{}, err
	}
	p.mu.Lock()
	_, revoked := p.revoked[claims.ID]
	p.mu.Unlock()
	if revoked {
		return User{}, ErrInvalidToken
	}
	user := User{UID: claims.Subject, Email: claims.Email}
	p.hub.observe(user)
	return user, nil
}

func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	claims, err := p.parse(token)
	if err != nil {
		return err
	}

	now := p.now()
	p.mu.Lock()
	for id, exp := range p.revoked {
		if now.After(exp) {
			delete(p.revoked, id)
		}
	}
	p.revoked[claims.ID] = claims.ExpiresAt.Time
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "User signed out", log.FieldUserID, claims.Subject)
	p.hub.publish(claims.Subject, nil)
	return nil
}

func (p *LocalProvider) OnAuthStateChanged(ctx context.Context, uid string) (<-chan State, func()) {
	return p.hub.subscribe(ctx, uid)
}

// CurrentState is the most recent auth state of uid.
func (p *LocalProvider) CurrentState(uid string) State {
	return p.hub.snapshot(uid)
}
