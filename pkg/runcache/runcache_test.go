package runcache

import (
	"errors"
	"testing"

	"github.com/fortiblox/intcode/pkg/intcode"
	"github.com/fortiblox/intcode/pkg/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openTestCache(t *testing.T, stepLimit uint64) *Cache {
	t.Helper()
	cfg := DefaultConfig("")
	cfg.InMemory = true
	cfg.StepLimit = stepLimit
	cfg.Logger = zaptest.NewLogger(t)
	c, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestExecuteCachesRuns(t *testing.T) {
	c := openTestCache(t, 0)
	prog := loader.NewProgram("echo", []int64{3, 0, 4, 0, 99})

	res, cached, err := c.Execute(prog, []int64{42})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []int64{42}, res.Outputs)
	assert.Equal(t, intcode.StatusTerminated, res.Status)
	assert.Equal(t, uint64(3), res.Steps)
	assert.Equal(t, int64(42), res.Cell0)

	res, cached, err = c.Execute(prog, []int64{42})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []int64{42}, res.Outputs)

	// Different inputs are a different run.
	res, cached, err = c.Execute(prog, []int64{7})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []int64{7}, res.Outputs)

	assert.Equal(t, Stats{Hits: 1, Misses: 2}, c.Stats())
}

func TestExecuteSuspendedRun(t *testing.T) {
	c := openTestCache(t, 0)
	prog := loader.NewProgram("add", []int64{3, 11, 3, 12, 1, 11, 12, 13, 4, 13, 99, 0, 0, 0})

	res, _, err := c.Execute(prog, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, intcode.StatusSuspended, res.Status)
	assert.Empty(t, res.Outputs)

	res, _, err = c.Execute(prog, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, intcode.StatusTerminated, res.Status)
	assert.Equal(t, []int64{3}, res.Outputs)
}

func TestExecuteFaultsAreNotCached(t *testing.T) {
	c := openTestCache(t, 50)
	loop := loader.NewProgram("loop", []int64{1105, 1, 0})

	_, _, err := c.Execute(loop, nil)
	assert.True(t, errors.Is(err, intcode.ErrStepLimitExceeded), "Execute() = %v", err)

	_, err = c.Get(loop.Hash, nil)
	assert.True(t, errors.Is(err, ErrNotFound))

	bad := loader.NewProgram("bad", []int64{42})
	_, _, err = c.Execute(bad, nil)
	assert.True(t, errors.Is(err, intcode.ErrInvalidOpcode))
}

func TestKeyDependsOnStepLimit(t *testing.T) {
	a := openTestCache(t, 10)
	b := openTestCache(t, 20)
	prog := loader.NewProgram("halt", []int64{99})

	assert.Equal(t, a.Key(prog.Hash, []int64{1, 2}), a.Key(prog.Hash, []int64{1, 2}))
	assert.NotEqual(t, a.Key(prog.Hash, []int64{1, 2}), a.Key(prog.Hash, []int64{2, 1}))
	assert.NotEqual(t, a.Key(prog.Hash, nil), b.Key(prog.Hash, nil))
	assert.Len(t, a.Key(prog.Hash, nil), 33)
}

func TestClosedCache(t *testing.T) {
	c := openTestCache(t, 0)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	prog := loader.NewProgram("halt", []int64{99})
	_, _, err := c.Execute(prog, nil)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(c.Put(prog.Hash, nil, &Result{}), ErrClosed))
}
