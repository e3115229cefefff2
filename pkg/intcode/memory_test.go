package intcode

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryImageRegion(t *testing.T) {
	image := []int64{1, 2, 3}
	mem := NewMemory(image)

	// The image is copied at construction.
	image[0] = 100
	v, err := mem.Get(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	require.NoError(t, mem.Set(2, -7))
	v, err = mem.Get(2)
	require.NoError(t, err)
	assert.Equal(t, int64(-7), v)

	assert.Equal(t, 3, mem.Len())
	assert.Equal(t, 0, mem.HeapLen())
	assert.Equal(t, []int64{1, 2, -7}, mem.Image())
}

func TestMemoryHeapRegion(t *testing.T) {
	mem := NewMemory([]int64{9})

	v, err := mem.Get(1 << 40)
	require.NoError(t, err)
	assert.Zero(t, v, "unset heap cells read as zero")

	require.NoError(t, mem.Set(1, 11))
	require.NoError(t, mem.Set(1<<40, 42))
	v, err = mem.Get(1 << 40)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
	v, err = mem.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int64(11), v)

	assert.Equal(t, 1, mem.Len(), "heap writes never grow the image")
	assert.Equal(t, 2, mem.HeapLen())
}

func TestMemoryNegativeAddress(t *testing.T) {
	mem := NewMemory([]int64{1})

	_, err := mem.Get(-1)
	assert.True(t, errors.Is(err, ErrOutOfRange), "Get(-1) = %v", err)

	err = mem.Set(-5, 1)
	assert.True(t, errors.Is(err, ErrOutOfRange), "Set(-5) = %v", err)
}

func TestMemoryCloneCopyOnWrite(t *testing.T) {
	mem := NewMemory([]int64{1, 2, 3})
	require.NoError(t, mem.Set(10, 10))

	clone := mem.Clone()

	require.NoError(t, clone.Set(0, 100))
	require.NoError(t, clone.Set(10, 1000))
	require.NoError(t, mem.Set(1, 200))
	require.NoError(t, mem.Set(11, 11))

	get := func(m *Memory, addr int64) int64 {
		v, err := m.Get(addr)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, int64(1), get(mem, 0))
	assert.Equal(t, int64(200), get(mem, 1))
	assert.Equal(t, int64(10), get(mem, 10))
	assert.Equal(t, int64(11), get(mem, 11))

	assert.Equal(t, int64(100), get(clone, 0))
	assert.Equal(t, int64(2), get(clone, 1))
	assert.Equal(t, int64(1000), get(clone, 10))
	assert.Equal(t, int64(0), get(clone, 11))

	// A clone of a clone is independent of both.
	grand := clone.Clone()
	require.NoError(t, grand.Set(0, -1))
	assert.Equal(t, int64(100), get(clone, 0))
	assert.Equal(t, int64(-1), get(grand, 0))
}

func TestMemoryRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("set then get returns the value", prop.ForAll(
		func(addr int64, value int64) bool {
			mem := NewMemory([]int64{0, 0, 0, 0, 0, 0, 0, 0})
			if err := mem.Set(addr, value); err != nil {
				return false
			}
			got, err := mem.Get(addr)
			return err == nil && got == value
		},
		gen.Int64Range(0, 1<<50),
		gen.Int64(),
	))

	properties.Property("negative addresses always fail", prop.ForAll(
		func(addr int64) bool {
			mem := NewMemory(nil)
			_, getErr := mem.Get(addr)
			setErr := mem.Set(addr, 1)
			return errors.Is(getErr, ErrOutOfRange) && errors.Is(setErr, ErrOutOfRange)
		},
		gen.Int64Range(-1<<50, -1),
	))

	properties.TestingRun(t)
}
