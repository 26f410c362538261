package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, path, namespace string) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), SQLiteConfig{Path: path, BusyTimeout: 1000}, namespace)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		value, found, err := store.Get(ctx, []byte("missing"))
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, []byte("1"), []byte(`{"id":"1"}`)))
		value, found, err := store.Get(ctx, []byte("1"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `{"id":"1"}`, string(value))
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, []byte("2"), []byte("first")))
		require.NoError(t, store.Put(ctx, []byte("2"), []byte("second")))
		value, _, err := store.Get(ctx, []byte("2"))
		require.NoError(t, err)
		assert.Equal(t, "second", string(value))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, []byte("3"), []byte("x")))
		require.NoError(t, store.Delete(ctx, []byte("3")))
		_, found, err := store.Get(ctx, []byte("3"))
		require.NoError(t, err)
		assert.False(t, found)
		require.NoError(t, store.Delete(ctx, []byte("3")))
	})

	t.Run("empty key rejected", func(t *testing.T) {
		err := store.Put(ctx, nil, []byte("x"))
		assert.True(t, core.HasCode(err, core.ErrInvalidArgument))
		_, _, err = store.Get(ctx, []byte{})
		assert.True(t, core.HasCode(err, core.ErrInvalidArgument))
	})
}

func TestInMemoryStore(t *testing.T) {
	testStoreContract(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	store := openSQLite(t, filepath.Join(t.TempDir(), "db", "books.db"), "snapshots")
	testStoreContract(t, store)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(ctx, SQLiteConfig{Path: path, BusyTimeout: 1000}, "snapshots")
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, []byte("1"), []byte("state")))
	require.NoError(t, first.Close())

	second := openSQLite(t, path, "snapshots")
	value, found, err := second.Get(ctx, []byte("1"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "state", string(value))
}

func TestSQLiteStore_NamespacesAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.db")
	ctx := context.Background()

	snapshots := openSQLite(t, path, "snapshots")
	require.NoError(t, snapshots.Put(ctx, []byte("1"), []byte("snapshot")))
	require.NoError(t, snapshots.Close())

	projections := openSQLite(t, path, "projections")
	_, found, err := projections.Get(ctx, []byte("1"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInMemoryStore_CopiesValues(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, store.Put(ctx, []byte("k"), value))
	value[0] = 'z'

	got, _, err := store.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	got[0] = 'y'

	again, _, _ := store.Get(ctx, []byte("k"))
	assert.Equal(t, "abc", string(again))
	assert.Equal(t, 1, store.Len())
}

func TestInMemoryStore_FailureInjection(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	boom := errors.New("disk full")

	store.FailPuts(boom)
	err := store.Put(ctx, []byte("k"), []byte("v"))
	assert.True(t, core.HasCode(err, core.ErrTransport))
	assert.ErrorIs(t, err, boom)

	store.FailPuts(nil)
	require.NoError(t, store.Put(ctx, []byte("k"), []byte("v")))

	store.FailGets(boom)
	_, _, err = store.Get(ctx, []byte("k"))
	assert.True(t, core.HasCode(err, core.ErrTransport))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Backend = BackendInMemory
	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, store)

	cfg = DefaultConfig()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "books.db")
	store, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	cfg = DefaultConfig()
	cfg.Backend = "etcd"
	_, err = Open(ctx, cfg)
	assert.True(t, core.HasCode(err, core.ErrInvalidConfig))

	cfg = DefaultConfig()
	cfg.Namespace = ""
	_, err = Open(ctx, cfg)
	assert.True(t, core.HasCode(err, core.ErrInvalidConfig))
}

func TestMigrationsDir(t *testing.T) {
	dir, err := migrationsDir(goose.DialectSQLite3)
	require.NoError(t, err)
	assert.Equal(t, "migrations/sqlite", dir)

	dir, err = migrationsDir(goose.DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t, "migrations/postgres", dir)

	_, err = migrationsDir(goose.DialectMySQL)
	assert.True(t, core.HasCode(err, core.ErrInvalidArgument))
}

func TestBackendConfigs_Validate(t *testing.T) {
	assert.NoError(t, DefaultSQLiteConfig().Validate())
	assert.NoError(t, DefaultPostgresConfig().Validate())
	assert.NoError(t, DefaultRedisConfig().Validate())
	assert.NoError(t, DefaultMongoDBConfig().Validate())

	assert.Error(t, SQLiteConfig{}.Validate())
	assert.Error(t, PostgresConfig{}.Validate())
	assert.Error(t, RedisConfig{}.Validate())
	assert.Error(t, MongoDBConfig{URI: "mongodb://localhost"}.Validate())
}
