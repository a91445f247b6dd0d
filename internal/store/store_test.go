package store

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "state"), false)
	if err != nil {
		t.Fatalf("failed to open temp store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestTxCommitIsVisibleAfterwards(t *testing.T) {
	require := require.New(t)
	s := openTempStore(t)

	tx := s.Begin()
	tx.Put("a", []byte("1"))
	tx.PutUint64("n", 42)
	tx.PutBig("b", big.NewInt(1000))
	tx.PutBool("flag", true)

	_, err := s.Get("a")
	require.ErrorIs(err, ErrNotFound)

	require.NoError(tx.Commit())

	v, err := s.Get("a")
	require.NoError(err)
	require.Equal([]byte("1"), v)

	read := s.Begin()
	n, err := read.GetUint64("n")
	require.NoError(err)
	require.Equal(uint64(42), n)

	b, err := read.GetBig("b")
	require.NoError(err)
	require.Equal(int64(1000), b.Int64())

	flag, err := read.GetBool("flag")
	require.NoError(err)
	require.True(flag)
}

func TestTxDiscardLeavesStateUntouched(t *testing.T) {
	require := require.New(t)
	s := openTempStore(t)

	seed := s.Begin()
	seed.Put("k", []byte("old"))
	require.NoError(seed.Commit())

	tx := s.Begin()
	tx.Put("k", []byte("new"))
	tx.Put("other", []byte("x"))

	v, ok, err := tx.Get("k")
	require.NoError(err)
	require.True(ok)
	require.Equal([]byte("new"), v)

	tx.Discard()

	v, err = s.Get("k")
	require.NoError(err)
	require.Equal([]byte("old"), v)

	_, err = s.Get("other")
	require.ErrorIs(err, ErrNotFound)
}

func TestTxDeleteShadowsCommittedValue(t *testing.T) {
	require := require.New(t)
	s, err := OpenMemory()
	require.NoError(err)
	defer s.Close()

	seed := s.Begin()
	seed.Put("k", []byte("v"))
	require.NoError(seed.Commit())

	tx := s.Begin()
	tx.Delete("k")
	ok, err := tx.Has("k")
	require.NoError(err)
	require.False(ok)
	require.NoError(tx.Commit())

	_, err = s.Get("k")
	require.ErrorIs(err, ErrNotFound)
}

func TestTxCommitTwiceFails(t *testing.T) {
	require := require.New(t)
	s, err := OpenMemory()
	require.NoError(err)
	defer s.Close()

	tx := s.Begin()
	tx.Put("k", []byte("v"))
	require.NoError(tx.Commit())
	require.Error(tx.Commit())
}

func TestJSONRoundTrip(t *testing.T) {
	require := require.New(t)
	s, err := OpenMemory()
	require.NoError(err)
	defer s.Close()

	type pair struct {
		A string `json:"a"`
		B int    `json:"b"`
	}

	tx := s.Begin()
	require.NoError(tx.PutJSON("p", pair{A: "x", B: 2}))

	var got pair
	ok, err := tx.GetJSON("p", &got)
	require.NoError(err)
	require.True(ok)
	require.Equal(pair{A: "x", B: 2}, got)

	ok, err = tx.GetJSON("missing", &got)
	require.NoError(err)
	require.False(ok)
}
