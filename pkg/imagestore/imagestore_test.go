package imagestore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/fortiblox/intcode/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "images.db"))
	cfg.NoSync = true
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := openTestStore(t)
	image := []int64{1, 9, 10, 3, 2, 3, 11, 0, 99, 30, 40, 50}

	hash, err := s.Put("day2", image)
	require.NoError(t, err)
	assert.Equal(t, types.HashImage(image), hash)

	rec, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, image, rec.Image)
	assert.Equal(t, []string{"day2"}, rec.Names)
	assert.NotZero(t, rec.AddedAt)

	// The stored image is a copy.
	image[0] = 2
	rec, err = s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Image[0])

	byName, err := s.GetByName("day2")
	require.NoError(t, err)
	assert.Equal(t, hash, byName.Hash)
	assert.True(t, s.Has(hash))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestPutValidation(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Put("", []int64{99})
	assert.True(t, errors.Is(err, ErrEmptyName))

	_, err = s.Put("empty", nil)
	assert.True(t, errors.Is(err, ErrEmptyImage))
}

func TestNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(types.HashImage([]int64{99}))
	assert.True(t, errors.Is(err, ErrImageNotFound))

	_, err = s.GetByName("nope")
	assert.True(t, errors.Is(err, ErrImageNotFound))

	assert.False(t, s.Has(types.HashImage([]int64{99})))
	assert.True(t, errors.Is(s.Delete(types.HashImage([]int64{99})), ErrImageNotFound))
}

func TestAliasesAndRename(t *testing.T) {
	s := openTestStore(t)
	echo := []int64{3, 0, 4, 0, 99}
	halt := []int64{99}

	h1, err := s.Put("echo", echo)
	require.NoError(t, err)
	h2, err := s.Put("cat", echo)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	rec, err := s.Get(h1)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "echo"}, rec.Names)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n, "aliases do not add images")

	// Point "cat" at another image.
	h3, err := s.Put("cat", halt)
	require.NoError(t, err)

	rec, err = s.Get(h1)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, rec.Names)

	resolved, err := s.Resolve("cat")
	require.NoError(t, err)
	assert.Equal(t, h3, resolved)

	n, err = s.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestListAndDelete(t *testing.T) {
	s := openTestStore(t)

	hb, err := s.Put("beta", []int64{104, 2, 99})
	require.NoError(t, err)
	_, err = s.Put("alpha", []int64{104, 1, 99})
	require.NoError(t, err)

	infos, err := s.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, []string{"alpha"}, infos[0].Names)
	assert.Equal(t, []string{"beta"}, infos[1].Names)
	assert.Equal(t, 3, infos[1].Size)

	require.NoError(t, s.Delete(hb))
	_, err = s.GetByName("beta")
	assert.True(t, errors.Is(err, ErrImageNotFound))

	infos, err = s.List()
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.db")

	s, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	hash, err := s.Put("quine", []int64{109, 1, 204, -1, 99})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(hash)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.NoError(t, s.Close(), "double close is harmless")

	s, err = Open(DefaultConfig(path))
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.GetByName("quine")
	require.NoError(t, err)
	assert.Equal(t, hash, rec.Hash)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}
