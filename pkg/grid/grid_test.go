package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTurns(t *testing.T) {
	assert.Equal(t, East, North.Right())
	assert.Equal(t, South, East.Right())
	assert.Equal(t, West, South.Right())
	assert.Equal(t, North, West.Right())

	assert.Equal(t, West, North.Left())
	assert.Equal(t, North, East.Left())

	for _, d := range Directions {
		assert.Equal(t, d, d.Left().Right())
	}
}

func TestArithmetic(t *testing.T) {
	p := Point{2, -3}
	assert.Equal(t, Point{2, -2}, p.Add(North))
	assert.Equal(t, Point{1, -3}, p.Sub(East))
	assert.Equal(t, "(2, -3)", p.String())
}

func TestBounds(t *testing.T) {
	b := NewBounds()
	assert.True(t, b.Empty())

	b.Extend(Point{1, 1})
	b.Extend(Point{-2, 4})
	b.Extend(Point{0, -1})
	assert.False(t, b.Empty())
	assert.Equal(t, Point{-2, -1}, b.Min)
	assert.Equal(t, Point{1, 4}, b.Max)
}
