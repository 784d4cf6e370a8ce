package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Put([]byte("lending/pool/b"), []byte("2")))
	require.NoError(t, db.Put([]byte("lending/pool/a"), []byte("1")))
	require.NoError(t, db.Put([]byte("lending/position/a"), []byte("3")))

	ok, err := db.Has([]byte("lending/pool/a"))
	require.NoError(t, err)
	require.True(t, ok)

	var keys []string
	require.NoError(t, db.Iterate([]byte("lending/pool/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	require.Equal(t, []string{"lending/pool/a", "lending/pool/b"}, keys)

	batch := db.NewBatch()
	batch.Put([]byte("lending/pool/c"), []byte("4"))
	batch.Delete([]byte("lending/pool/a"))
	require.Equal(t, 2, batch.Len())

	// Nothing is visible before Write.
	ok, err = db.Has([]byte("lending/pool/c"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, batch.Write())
	value, err := db.Get([]byte("lending/pool/c"))
	require.NoError(t, err)
	require.Equal(t, []byte("4"), value)
	_, err = db.Get([]byte("lending/pool/a"))
	require.ErrorIs(t, err, ErrNotFound)

	var first string
	require.NoError(t, db.Iterate([]byte("lending/"), func(key, value []byte) bool {
		first = string(key)
		return false
	}))
	require.Equal(t, "lending/pool/b", first)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBReturnsCopies(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'x'

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)

	got[1] = 'y'
	again, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}
