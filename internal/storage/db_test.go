package storage_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/storage"
)

func exerciseDB(t *testing.T, db storage.DB) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, storage.ErrKeyNotFound)

	require.NoError(t, db.Put([]byte("req/b"), []byte("2")))
	require.NoError(t, db.Put([]byte("req/a"), []byte("1")))
	require.NoError(t, db.Put([]byte("tx/a"), []byte("3")))

	val, err := db.Get([]byte("req/a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), val)

	ok, err := db.Has([]byte("tx/a"))
	require.NoError(t, err)
	assert.True(t, ok)

	var keys []string
	err = db.ForEach([]byte("req/"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"req/a", "req/b"}, keys)

	require.NoError(t, db.Delete([]byte("req/a")))
	ok, err = db.Has([]byte("req/a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDB(t *testing.T) {
	exerciseDB(t, storage.NewMemory())
}

func TestBadgerDB(t *testing.T) {
	db, err := storage.NewBadger(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	exerciseDB(t, db)
}

func TestPostgresDB(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	db, err := storage.NewPostgres(dsn)
	require.NoError(t, err)
	defer db.Close()

	for _, k := range []string{"req/a", "req/b", "tx/a"} {
		require.NoError(t, db.Delete([]byte(k)))
	}
	exerciseDB(t, db)
}

func TestPrefixDB(t *testing.T) {
	inner := storage.NewMemory()
	requests := storage.NewPrefixDB(inner, "req/")
	records := storage.NewPrefixDB(inner, "tx/")

	require.NoError(t, requests.Put([]byte("1"), []byte("r")))
	require.NoError(t, records.Put([]byte("1"), []byte("t")))

	raw, err := inner.Get([]byte("req/1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("r"), raw)

	var seen []string
	require.NoError(t, records.ForEach(nil, func(key, value []byte) error {
		seen = append(seen, string(key)+"="+string(value))
		return nil
	}))
	assert.Equal(t, []string{"1=t"}, seen)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := storage.Open(storage.Options{Driver: "leveldb"})
	require.Error(t, err)

	db, err := storage.Open(storage.Options{Driver: storage.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryDB{}, db)
}
