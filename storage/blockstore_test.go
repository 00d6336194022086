package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockstorePutGet(t *testing.T) {
	bs := NewBlockstore(NewMemDB())

	data := []byte("some block content")
	c, err := bs.Put(data)
	require.NoError(t, err)
	require.True(t, c.Defined())

	got, err := bs.Get(c)
	require.NoError(t, err)
	require.Equal(t, data, got)

	has, err := bs.Has(c)
	require.NoError(t, err)
	require.True(t, has)
}

func TestBlockstorePutIsDeterministic(t *testing.T) {
	bs1 := NewBlockstore(NewMemDB())
	bs2 := NewBlockstore(NewMemDB())

	c1, err := bs1.Put([]byte("same bytes"))
	require.NoError(t, err)
	c2, err := bs2.Put([]byte("same bytes"))
	require.NoError(t, err)
	require.Equal(t, c1, c2)

	c3, err := bs1.Put([]byte("different bytes"))
	require.NoError(t, err)
	require.NotEqual(t, c1, c3)
}

func TestBlockstoreGetMissing(t *testing.T) {
	bs := NewBlockstore(NewMemDB())

	c, err := bs.Put([]byte("content"))
	require.NoError(t, err)

	empty := NewBlockstore(NewMemDB())
	_, err = empty.Get(c)
	require.ErrorIs(t, err, ErrBlockNotFound)

	has, err := empty.Has(c)
	require.NoError(t, err)
	require.False(t, has)
}

func TestBlockstoreDetectsCorruption(t *testing.T) {
	db := NewMemDB()
	bs := NewBlockstore(db)

	c, err := bs.Put([]byte("original content"))
	require.NoError(t, err)

	// Tamper with the stored bytes behind the blockstore's back.
	require.NoError(t, db.Put(c.Bytes(), []byte("tampered content")))

	_, err = bs.Get(c)
	require.Error(t, err)
	require.Contains(t, err.Error(), "content verification")
}

func TestLevelDBRoundTrip(t *testing.T) {
	dir := t.TempDir()

	db, err := NewLevelDB(dir)
	require.NoError(t, err)

	require.NoError(t, db.Put([]byte("key"), []byte("value")))
	db.Close()

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)

	_, err = reopened.Get([]byte("absent"))
	require.ErrorIs(t, err, ErrNotFound)

	has, err := reopened.Has([]byte("key"))
	require.NoError(t, err)
	require.True(t, has)
}
