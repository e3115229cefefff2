// Package arcade renders and plays the Intcode breakout cabinet.
//
// The cabinet's controller emits (x, y, tile) triples. The triple with
// x = -1 and y = 0 carries the current score instead of a tile. Input is
// the joystick: -1 tilts left, 0 is neutral, 1 tilts right.
package arcade

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fortiblox/intcode/pkg/grid"
	"github.com/fortiblox/intcode/pkg/intcode"
)

// Tile ids.
const (
	Empty  int64 = 0
	Wall   int64 = 1
	Block  int64 = 2
	Paddle int64 = 3
	Ball   int64 = 4
)

// Joystick positions.
const (
	Left    int64 = -1
	Neutral int64 = 0
	Right   int64 = 1
)

var scorePos = grid.Point{X: -1, Y: 0}

// ErrPartialTile is returned when output does not split into triples.
var ErrPartialTile = errors.New("partial tile triple")

// Screen is the cabinet display.
type Screen struct {
	tiles  map[grid.Point]int64
	score  int64
	ball   grid.Point
	paddle grid.Point
}

// NewScreen returns a blank screen.
func NewScreen() *Screen {
	return &Screen{tiles: make(map[grid.Point]int64)}
}

// Update draws a batch of controller output.
func (s *Screen) Update(out []int64) error {
	if len(out)%3 != 0 {
		return fmt.Errorf("%w: %d values", ErrPartialTile, len(out))
	}
	for i := 0; i < len(out); i += 3 {
		p := grid.Point{X: int(out[i]), Y: int(out[i+1])}
		v := out[i+2]
		if p == scorePos {
			s.score = v
			continue
		}
		s.tiles[p] = v
		switch v {
		case Ball:
			s.ball = p
		case Paddle:
			s.paddle = p
		}
	}
	return nil
}

// Score returns the last score shown.
func (s *Screen) Score() int64 {
	return s.score
}

// Tile returns the tile at p.
func (s *Screen) Tile(p grid.Point) int64 {
	return s.tiles[p]
}

// Count returns the number of cells showing tile.
func (s *Screen) Count(tile int64) int {
	n := 0
	for _, t := range s.tiles {
		if t == tile {
			n++
		}
	}
	return n
}

// Joystick returns the input that moves the paddle towards the ball.
func (s *Screen) Joystick() int64 {
	switch {
	case s.ball.X < s.paddle.X:
		return Left
	case s.ball.X > s.paddle.X:
		return Right
	default:
		return Neutral
	}
}

// Render draws the screen with y growing downwards, as the cabinet does.
func (s *Screen) Render() string {
	b := grid.NewBounds()
	for p := range s.tiles {
		b.Extend(p)
	}
	if b.Empty() {
		return ""
	}
	glyphs := map[int64]byte{Empty: ' ', Wall: '#', Block: '=', Paddle: '_', Ball: 'o'}
	var sb strings.Builder
	for y := b.Min.Y; y <= b.Max.Y; y++ {
		for x := b.Min.X; x <= b.Max.X; x++ {
			g, ok := glyphs[s.tiles[grid.Point{X: x, Y: y}]]
			if !ok {
				g = '?'
			}
			sb.WriteByte(g)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// InsertQuarters switches the cabinet to free play by setting address 0
// to 2. It must be called before the first run.
func InsertQuarters(m *intcode.Machine) error {
	return m.Memory().Set(0, 2)
}

// Draw runs m until it first waits for input or halts and draws what it
// printed.
func Draw(m *intcode.Machine, s *Screen) (intcode.Status, error) {
	status, err := m.Run()
	if err != nil {
		return status, err
	}
	return status, s.Update(m.DrainOutput())
}

// Play runs the game to completion, keeping the paddle under the ball,
// and returns the final score.
func Play(m *intcode.Machine, s *Screen) (int64, error) {
	for {
		status, err := Draw(m, s)
		if err != nil {
			return 0, err
		}
		if status == intcode.StatusTerminated {
			return s.Score(), nil
		}
		m.PushInput(s.Joystick())
	}
}
