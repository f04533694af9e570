// Package storage persists one UserDocument per user id.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/zoeplatform/zoefinan/internal/core"
)

var (
	// ErrNotFound is returned when no document exists for a user id.
	ErrNotFound = errors.New("document not found")
	// ErrEmptyUserID is returned for blank user ids.
	ErrEmptyUserID = errors.New("empty user id")
	// ErrCredentialExists is returned when an email is already registered.
	ErrCredentialExists = errors.New("email already registered")
)

// Mutator edits a document in place inside Update. Returning an error aborts
// the write.
type Mutator func(doc *core.UserDocument) error

// DocumentStore is the per-user document persistence port.
type DocumentStore interface {
	// Get returns ErrNotFound when the user has no document.
	Get(ctx context.Context, uid string) (*core.UserDocument, error)
	// Set replaces the whole document.
	Set(ctx context.Context, uid string, doc *core.UserDocument) error
	// Update loads, mutates and writes back atomically. The document must exist.
	Update(ctx context.Context, uid string, fn Mutator) (*core.UserDocument, error)
	// ListUserIDs returns every stored user id in ascending order.
	ListUserIDs(ctx context.Context) ([]string, error)
	Close() error
}

// Credential is a locally registered login.
type Credential struct {
	UID          string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// CredentialStore persists local logins keyed by normalized email.
type CredentialStore interface {
	CreateCredential(ctx context.Context, c Credential) error
	// CredentialByEmail returns ErrNotFound for unknown emails.
	CredentialByEmail(ctx context.Context, email string) (Credential, error)
	// DeleteCredential removes the login of email if it still belongs to uid.
	// Deleting a missing login is not an error.
	DeleteCredential(ctx context.Context, email, uid string) error
}

func checkUID(uid string) error {
	if uid == "" {
		return ErrEmptyUserID
	}
	return nil
}

func touch(doc *core.UserDocument, now time.Time) {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
}
