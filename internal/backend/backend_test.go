package backend

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoeplatform/zoefinan/internal/config"
	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/storage"
)

func quietLogger() *log.Logger {
	return log.New(log.Config{Level: "error", Format: "text", Component: "test", Output: io.Discard})
}

func TestStorageType(t *testing.T) {
	for _, st := range StorageTypes() {
		assert.True(t, st.IsValid(), st.String())
	}
	assert.False(t, StorageType("sheets").IsValid())
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	app := &config.Config{}
	app.Storage.Backend = "sqlite"
	app.Storage.SQLitePath = "/tmp/z.db"
	app.Cache.Backend = "redis"
	app.Cache.RedisAddr = "localhost:6379"
	app.Cache.TTL = time.Minute
	app.Auth.Provider = "local"

	cfg, err := FromAppConfig(app)
	require.NoError(t, err)
	assert.Equal(t, SQLiteStorage, cfg.Type)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Redis.TTL)
	assert.Equal(t, "zoefinan:doc:", cfg.Redis.Prefix)

	app.Storage.Backend = "sheets"
	_, err = FromAppConfig(app)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryStorage, CacheBackend: "lru"}, false},
		{"unknown type", Config{Type: "sheets"}, true},
		{"sqlite without path", Config{Type: SQLiteStorage}, true},
		{"postgres without dsn", Config{Type: PostgresStorage}, true},
		{"firestore with local auth", Config{Type: FirestoreStorage, FirebaseProject: "p", AuthProvider: "local"}, true},
		{"firestore with firebase auth", Config{Type: FirestoreStorage, FirebaseProject: "p", AuthProvider: "firebase"}, false},
		{"redis without address", Config{Type: MemoryStorage, CacheBackend: "redis"}, true},
		{"unknown cache", Config{Type: MemoryStorage, CacheBackend: "memcached"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpen_MemoryWithLRU(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(quietLogger())
	res, err := f.Open(ctx, Config{Type: MemoryStorage, CacheBackend: "lru", CacheMaxEntries: 10, CacheTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, res.Close()) })

	assert.IsType(t, &storage.CachedStore{}, res.Store)
	assert.NotNil(t, res.Credentials)
	assert.Nil(t, res.Events)
	assert.Nil(t, res.Publisher())
	require.Contains(t, res.Checks, "store")
	assert.NoError(t, res.Checks["store"](ctx))

	provider, err := f.OpenAuth(ctx, Config{AuthProvider: "local", JWTSecret: "0123456789abcdef0123456789abcdef", TokenTTL: time.Hour}, res)
	require.NoError(t, err)
	session, err := provider.CreateUser(ctx, "ana@example.com", "segredo123", "segredo123")
	require.NoError(t, err)

	doc, err := res.Store.Get(ctx, session.User.UID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", doc.Email)
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "zoefinan.db")
	res, err := NewFactory(quietLogger()).Open(ctx, Config{Type: SQLiteStorage, SQLitePath: path, CacheBackend: "none"})
	require.NoError(t, err)
	defer res.Close()

	assert.IsType(t, &storage.SQLStore{}, res.Store)
	assert.NoError(t, res.Checks["store"](ctx))

	require.NoError(t, res.Store.Set(ctx, "u1", &core.UserDocument{Email: "u1@example.com"}))
	ids, err := res.Store.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
}

func TestOpenAuth_Errors(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(quietLogger())

	_, err := f.OpenAuth(ctx, Config{Type: FirestoreStorage, AuthProvider: "local"}, &Result{Store: storage.NewMemoryStore()})
	assert.ErrorContains(t, err, "cannot hold local credentials")

	_, err = f.OpenAuth(ctx, Config{AuthProvider: "saml"}, &Result{})
	assert.ErrorContains(t, err, "unsupported auth provider")
}

func TestResultClose_Order(t *testing.T) {
	var order []int
	res := &Result{}
	res.onClose(func() error { order = append(order, 1); return nil })
	res.onClose(func() error { order = append(order, 2); return assert.AnError })

	assert.ErrorIs(t, res.Close(), assert.AnError)
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, res.Close())
}
