package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestStorage opens a pebble store in a temp dir, closed on cleanup.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestSetAndGet(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.Set([]byte("k"), []byte("v")))

	got, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	missing, err := s.Get([]byte("missing"))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestGetMany(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.SetBatch([]KeyValue{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("c"), Value: []byte("3")},
	}))

	got, err := s.GetMany([][]byte{[]byte("a"), []byte("b"), []byte("c")})
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("1"), nil, []byte("3")}, got)
}

func TestDeleteBatchIgnoresAbsentKeys(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.Set([]byte("present"), []byte("x")))

	keys := [][]byte{[]byte("present"), []byte("absent")}
	require.NoError(t, s.DeleteBatch(keys))
	require.NoError(t, s.DeleteBatch(keys))

	ok, err := s.Has([]byte("present"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteBatchSync(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.Set([]byte("cert"), []byte("x")))
	require.NoError(t, s.DeleteBatchSync([][]byte{[]byte("cert")}))
	require.NoError(t, s.DeleteBatchSync(nil))

	got, err := s.Get([]byte("cert"))
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestIteratePrefix(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Set([]byte(fmt.Sprintf("h:%d", i)), []byte{byte(i)}))
	}
	require.NoError(t, s.Set([]byte("i:0"), []byte("other")))

	var seen []string
	err := s.IteratePrefix([]byte("h:"), func(key, _ []byte) error {
		seen = append(seen, string(key))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"h:0", "h:1", "h:2"}, seen)
}

func TestPrefixUpperBound(t *testing.T) {
	require.Equal(t, []byte{0x01, 0x03}, prefixUpperBound([]byte{0x01, 0x02}))
	require.Equal(t, []byte{0x02}, prefixUpperBound([]byte{0x01, 0xFF}))
	require.Nil(t, prefixUpperBound([]byte{0xFF, 0xFF}))
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Set([]byte("k"), []byte("v")))
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}
