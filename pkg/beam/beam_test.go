package beam

import (
	"errors"
	"testing"

	"github.com/fortiblox/intcode/pkg/grid"
	"github.com/fortiblox/intcode/pkg/intcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// wedge is a controller whose beam covers y <= x <= 2y.
var wedge = []int64{
	3, 30, // x
	3, 31, // y
	7, 30, 31, 32, 1005, 32, 26, // x < y
	1, 31, 31, 33, // 2y
	7, 33, 30, 32, 1005, 32, 26, // 2y < x
	104, 1, 99, 0,
	104, 0, 99, 0,
	0, 0, 0, 0,
}

func TestPulled(t *testing.T) {
	s := NewScanner(wedge, Opts{})

	tests := []struct {
		x, y int
		want bool
	}{
		{0, 0, true},
		{1, 0, false},
		{1, 1, true},
		{2, 1, true},
		{3, 1, false},
		{4, 4, true},
		{3, 4, false},
	}
	for _, tt := range tests {
		got, err := s.Pulled(tt.x, tt.y)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "(%d, %d)", tt.x, tt.y)
	}
	assert.Equal(t, len(tests), s.Probes())
}

func TestCountAndRender(t *testing.T) {
	s := NewScanner(wedge, Opts{})

	n, err := s.Count(5, 5)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, 25, s.Probes())

	out, err := s.Render(5, 4)
	require.NoError(t, err)
	assert.Equal(t, "#....\n.##..\n..###\n...##\n", out)
}

func TestFitSquare(t *testing.T) {
	s := NewScanner(wedge, Opts{Logger: zaptest.NewLogger(t)})

	tests := []struct {
		side int
		want grid.Point
	}{
		{1, grid.Point{X: 0, Y: 0}},
		{2, grid.Point{X: 3, Y: 2}},
		{3, grid.Point{X: 6, Y: 4}},
		{5, grid.Point{X: 12, Y: 8}},
	}
	for _, tt := range tests {
		got, err := s.FitSquare(tt.side)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "side %d", tt.side)

		for _, corner := range []grid.Point{
			got,
			{X: got.X + tt.side - 1, Y: got.Y},
			{X: got.X, Y: got.Y + tt.side - 1},
			{X: got.X + tt.side - 1, Y: got.Y + tt.side - 1},
		} {
			ok, err := s.Pulled(corner.X, corner.Y)
			require.NoError(t, err)
			assert.True(t, ok, "corner %v of side %d", corner, tt.side)
		}
	}
}

func TestFitSquareErrors(t *testing.T) {
	dark := NewScanner([]int64{104, 0, 99}, Opts{MaxRows: 5})
	_, err := dark.FitSquare(1)
	assert.True(t, errors.Is(err, ErrNoFit))

	_, err = NewScanner(wedge, Opts{}).FitSquare(0)
	assert.True(t, errors.Is(err, ErrNoFit))
}

func TestProbeErrors(t *testing.T) {
	_, err := NewScanner(wedge, Opts{}).Pulled(-1, 0)
	assert.True(t, errors.Is(err, ErrNegative))

	_, err = NewScanner([]int64{3, 10, 3, 10, 99}, Opts{}).Pulled(0, 0)
	assert.True(t, errors.Is(err, ErrNoReply))

	_, err = NewScanner([]int64{3, 10, 3, 10, 104, 7, 99}, Opts{}).Pulled(0, 0)
	assert.True(t, errors.Is(err, ErrBadReply))

	spin := []int64{3, 10, 3, 10, 1105, 1, 4}
	_, err = NewScanner(spin, Opts{StepLimit: 50}).Count(1, 1)
	assert.True(t, errors.Is(err, intcode.ErrStepLimitExceeded))
}
