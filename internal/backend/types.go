// Package backend assembles the document store, cache, auth provider and
// event publisher selected by configuration.
package backend

import (
	"context"
	"errors"

	"github.com/zoeplatform/zoefinan/internal/amqp"
	"github.com/zoeplatform/zoefinan/internal/auth"
	"github.com/zoeplatform/zoefinan/internal/cache"
	api "github.com/zoeplatform/zoefinan/internal/http"
	"github.com/zoeplatform/zoefinan/internal/services"
	"github.com/zoeplatform/zoefinan/internal/storage"
)

// StorageType names a document store implementation.
type StorageType string

const (
	MemoryStorage    StorageType = "memory"
	SQLiteStorage    StorageType = "sqlite"
	PostgresStorage  StorageType = "postgres"
	FirestoreStorage StorageType = "firestore"
)

func (t StorageType) String() string {
	return string(t)
}

// IsValid returns true if the storage type is known.
func (t StorageType) IsValid() bool {
	switch t {
	case MemoryStorage, SQLiteStorage, PostgresStorage, FirestoreStorage:
		return true
	default:
		return false
	}
}

// StorageTypes returns every valid storage type.
func StorageTypes() []StorageType {
	return []StorageType{MemoryStorage, SQLiteStorage, PostgresStorage, FirestoreStorage}
}

// CleanupFunc releases one resource.
type CleanupFunc func() error

// Result holds what Open built. Close releases everything in reverse order.
type Result struct {
	// Store is the document store the services use, cached when enabled.
	Store storage.DocumentStore
	// Credentials is nil when the store cannot hold local logins.
	Credentials storage.CredentialStore
	// Events is nil when no broker is configured.
	Events *amqp.Client
	// Caches sweeps expired in-process entries.
	Caches *cache.Manager
	// Checks back the /readyz endpoint.
	Checks map[string]api.ReadinessCheck

	cleanup []CleanupFunc
}

// Publisher returns Events as a services.EventPublisher, or a nil interface
// when AMQP is off.
func (r *Result) Publisher() services.EventPublisher {
	if r.Events == nil {
		return nil
	}
	return r.Events
}

func (r *Result) onClose(fn CleanupFunc) {
	r.cleanup = append(r.cleanup, fn)
}

func (r *Result) addCheck(name string, check func(ctx context.Context) error) {
	if r.Checks == nil {
		r.Checks = make(map[string]api.ReadinessCheck)
	}
	r.Checks[name] = check
}

// Close runs the cleanup functions last-in first-out and joins their errors.
func (r *Result) Close() error {
	var errs []error
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		if err := r.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.cleanup = nil
	return errors.Join(errs...)
}

// AuthResult pairs the provider with its cleanup.
type AuthResult struct {
	Provider auth.Provider
	Cleanup  CleanupFunc
}
