package auth

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/storage"
)

// firebaseClient is the part of the admin SDK auth client in use.
type firebaseClient interface {
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*fbauth.Token, error)
	CreateUser(ctx context.Context, user *fbauth.UserToCreate) (*fbauth.UserRecord, error)
	DeleteUser(ctx context.Context, uid string) error
	CustomToken(ctx context.Context, uid string) (string, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// FirebaseProvider keeps accounts in Firebase Authentication. Password sign
// in happens on the client; the server verifies the resulting ID tokens.
type FirebaseProvider struct {
	client firebaseClient
	docs   storage.DocumentStore
	logger *log.Logger
	hub    *stateHub
	now    func() time.Time
}

func NewFirebaseProvider(ctx context.Context, projectID, credentialsFile string, docs storage.DocumentStore, logger *log.Logger) (*FirebaseProvider, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase auth client: %w", err)
	}
	return newFirebaseProvider(client, docs, logger), nil
}

func newFirebaseProvider(client firebaseClient, docs storage.DocumentStore, logger *log.Logger) *FirebaseProvider {
	if logger == nil {
		logger = log.Default()
	}
	return &FirebaseProvider{
		client: client,
		docs:   docs,
		logger: logger.WithComponent(log.ComponentAuth),
		hub:    newStateHub(time.Now),
		now:    time.Now,
	}
}

// CreateUser returns a Firebase custom token as the session token. The client
// exchanges it for an ID token (signInWithCustomToken) before calling the API,
// since Verify accepts ID tokens only.
func (p *FirebaseProvider) CreateUser(ctx context.Context, email, password, confirm string) (Session, error) {
	normalized, err := ValidateSignUp(email, password, confirm)
	if err != nil {
		return Session{}, err
	}

	rec, err := p.client.CreateUser(ctx, (&fbauth.UserToCreate{}).Email(normalized).Password(password))
	if err != nil {
		if fbauth.IsEmailAlreadyExists(err) {
			return Session{}, ErrEmailInUse
		}
		return Session{}, fmt.Errorf("create firebase user: %w", err)
	}

	if err := p.docs.Set(ctx, rec.UID, &core.UserDocument{Email: normalized, CreatedAt: p.now()}); err != nil {
		if derr := p.client.DeleteUser(ctx, rec.UID); derr != nil {
			p.logger.ErrorContext(ctx, "Failed to roll back firebase user",
				log.FieldUserID, rec.UID,
				log.FieldError, derr)
		}
		return Session{}, fmt.Errorf("create user document: %w", err)
	}

	token, err := p.client.CustomToken(ctx, rec.UID)
	if err != nil {
		return Session{}, fmt.Errorf("mint custom token: %w", err)
	}

	user := User{UID: rec.UID, Email: normalized}
	p.logger.InfoContext(ctx, "User registered", log.FieldUserID, user.UID)
	p.hub.publish(user.UID, &user)
	return Session{User: user, Token: token}, nil
}

// SignIn is done by the Firebase client SDK.
func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	return Session{}, ErrUnsupported
}

// Verify accepts Firebase ID tokens only, and rejects tokens issued before
// the owner's last sign out.
func (p *FirebaseProvider) Verify(ctx context.Context, token string) (User, error) {
	user, err := p.verify(ctx, token)
	if err != nil {
		return User{}, err
	}
	p.hub.observe(user)
	return user, nil
}

func (p *FirebaseProvider) verify(ctx context.Context, token string) (User, error) {
	t, err := p.client.VerifyIDTokenAndCheckRevoked(ctx, token)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	email, _ := t.Claims["email"].(string)
	return User{UID: t.UID, Email: email}, nil
}

// SignOut revokes every refresh token of the token's owner.
func (p *FirebaseProvider) SignOut(ctx context.Context, token string) error {
	user, err := p.verify(ctx, token)
	if err != nil {
		return err
	}
	if err := p.client.RevokeRefreshTokens(ctx, user.UID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	p.logger.InfoContext(ctx, "User signed out", log.FieldUserID, user.UID)
	p.hub.publish(user.UID, nil)
	return nil
}

func (p *FirebaseProvider) OnAuthStateChanged(ctx context.Context, uid string) (<-chan State, func()) {
	return p.hub.subscribe(ctx, uid)
}
