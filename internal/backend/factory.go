package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/zoeplatform/zoefinan/internal/amqp"
	"github.com/zoeplatform/zoefinan/internal/auth"
	"github.com/zoeplatform/zoefinan/internal/cache"
	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/storage"
)

// readinessProbeUID is looked up by the generic store check; it never exists.
const readinessProbeUID = "__readyz__"

// Factory builds backends from configuration.
type Factory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Open builds the document store, wraps it in the configured cache and
// connects to the broker when one is configured. On error everything built
// so far is released.
func (f *Factory) Open(ctx context.Context, cfg Config) (res *Result, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	caches := cache.NewManager(f.logger)
	res = &Result{Caches: caches}
	res.onClose(func() error {
		caches.Stop()
		return nil
	})
	defer func() {
		if err != nil {
			_ = res.Close()
			res = nil
		}
	}()

	store, err := f.createStore(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	res.onClose(store.Close)
	if creds, ok := store.(storage.CredentialStore); ok {
		res.Credentials = creds
	}

	res.Store, err = f.wrapCache(store, cfg, res)
	if err != nil {
		return nil, err
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, f.logger)
		if err != nil {
			// Ledger writes still succeed without the broker; only alerts stop.
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			res.Events = client
			res.onClose(client.Close)
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	f.logger.InfoContext(ctx, "Initialized backend",
		log.FieldBackend, cfg.Type.String(),
		"cache", cfg.CacheBackend,
		"amqp_enabled", res.Events != nil)
	return res, nil
}

func (f *Factory) createStore(ctx context.Context, cfg Config, res *Result) (storage.DocumentStore, error) {
	switch cfg.Type {
	case MemoryStorage:
		store := storage.NewMemoryStore()
		res.addCheck("store", storeCheck(store))
		return store, nil

	case SQLiteStorage:
		store, err := storage.NewSQLiteStore(cfg.SQLitePath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		res.addCheck("store", store.DB().PingContext)
		f.logger.InfoContext(ctx, "Initialized SQLite store", "db_path", cfg.SQLitePath)
		return store, nil

	case PostgresStorage:
		store, err := storage.NewPostgresStore(ctx, cfg.PostgresDSN, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
		}
		res.addCheck("store", store.DB().PingContext)
		return store, nil

	case FirestoreStorage:
		store, err := storage.NewFirestoreStore(ctx, cfg.FirebaseProject, cfg.FirebaseCreds, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firestore store: %w", err)
		}
		res.addCheck("store", storeCheck(store))
		return store, nil
	}
	return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Type)
}

// storeCheck reads a document that never exists; anything but ErrNotFound
// means the store is unreachable.
func storeCheck(store storage.DocumentStore) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := store.Get(ctx, readinessProbeUID)
		if err == nil || errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
}

func (f *Factory) wrapCache(store storage.DocumentStore, cfg Config, res *Result) (storage.DocumentStore, error) {
	switch cfg.CacheBackend {
	case "", "none":
		return store, nil
	case "lru":
		c := cache.NewLRUCache[core.UserDocument](cfg.CacheMaxEntries, cfg.CacheTTL)
		res.Caches.Register(c)
		return storage.NewCachedStore(store, c), nil
	case "redis":
		c := cache.NewRedisCache[core.UserDocument](cfg.Redis, f.logger)
		res.onClose(c.Close)
		res.addCheck("cache", c.Ping)
		return storage.NewCachedStore(store, c), nil
	}
	return nil, fmt.Errorf("unsupported cache backend: %s", cfg.CacheBackend)
}

// OpenAuth builds the auth provider over the documents (and, for local auth,
// the credentials) of res.
func (f *Factory) OpenAuth(ctx context.Context, cfg Config, res *Result) (auth.Provider, error) {
	switch cfg.AuthProvider {
	case "", "local":
		if res.Credentials == nil {
			return nil, fmt.Errorf("storage backend %s cannot hold local credentials", cfg.Type)
		}
		return auth.NewLocalProvider(res.Credentials, res.Store, cfg.JWTSecret, cfg.TokenTTL, f.logger), nil
	case "firebase":
		p, err := auth.NewFirebaseProvider(ctx, cfg.FirebaseProject, cfg.FirebaseCreds, res.Store, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firebase auth: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unsupported auth provider: %s", cfg.AuthProvider)
}
