package backend

import (
	"fmt"
	"time"

	"github.com/zoeplatform/zoefinan/internal/cache"
	"github.com/zoeplatform/zoefinan/internal/config"
)

// Config holds everything the factory needs, flattened from the app config.
type Config struct {
	Type StorageType

	SQLitePath      string
	PostgresDSN     string
	FirebaseProject string
	FirebaseCreds   string

	CacheBackend    string
	CacheTTL        time.Duration
	CacheMaxEntries int
	Redis           cache.RedisOptions

	AuthProvider string
	JWTSecret    string
	TokenTTL     time.Duration

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	storageType := StorageType(appConfig.Storage.Backend)
	if !storageType.IsValid() {
		return Config{}, fmt.Errorf("invalid storage backend in config: %s", appConfig.Storage.Backend)
	}

	return Config{
		Type: storageType,

		SQLitePath:      appConfig.Storage.SQLitePath,
		PostgresDSN:     appConfig.Storage.PostgresDSN,
		FirebaseProject: appConfig.Storage.FirebaseProj,
		FirebaseCreds:   appConfig.Storage.FirebaseCred,

		CacheBackend:    appConfig.Cache.Backend,
		CacheTTL:        appConfig.Cache.TTL,
		CacheMaxEntries: appConfig.Cache.MaxEntries,
		Redis: cache.RedisOptions{
			Addr:     appConfig.Cache.RedisAddr,
			Password: appConfig.Cache.RedisPassword,
			DB:       appConfig.Cache.RedisDB,
			Prefix:   "zoefinan:doc:",
			TTL:      appConfig.Cache.TTL,
		},

		AuthProvider: appConfig.Auth.Provider,
		JWTSecret:    appConfig.Auth.JWTSecret,
		TokenTTL:     appConfig.Auth.TokenTTL,

		AMQPURL:      appConfig.AMQP.URL,
		AMQPExchange: appConfig.AMQP.Exchange,
		AMQPQueue:    appConfig.AMQP.Queue,
	}, nil
}

// Validate checks the combinations the factory cannot build.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid storage backend: %s", c.Type)
	}

	switch c.Type {
	case SQLiteStorage:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite storage")
		}
	case PostgresStorage:
		if c.PostgresDSN == "" {
			return fmt.Errorf("Postgres DSN is required for postgres storage")
		}
	case FirestoreStorage:
		if c.FirebaseProject == "" {
			return fmt.Errorf("Firebase project ID is required for firestore storage")
		}
		// Firestore cannot hold password hashes.
		if c.AuthProvider == "local" {
			return fmt.Errorf("local auth is not available with firestore storage, use firebase auth")
		}
	}

	switch c.CacheBackend {
	case "", "none", "lru":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("Redis address is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s", c.CacheBackend)
	}
	return nil
}
