// Package robot drives a hull painting robot from an Intcode controller.
//
// Each cycle the robot reports the colour under it (0 black, 1 white) and
// the controller answers with two outputs: the colour to paint and the
// direction to turn (0 left, 1 right). The robot then moves one panel
// forward.
package robot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fortiblox/intcode/pkg/grid"
	"github.com/fortiblox/intcode/pkg/intcode"
)

// Panel colours.
const (
	Black int64 = 0
	White int64 = 1
)

// Turn directions.
const (
	TurnLeft  int64 = 0
	TurnRight int64 = 1
)

var (
	// ErrShortOutput is returned when a cycle yields fewer than two outputs.
	ErrShortOutput = errors.New("controller produced incomplete instruction")

	// ErrBadInstruction is returned for colour or turn values outside {0, 1}.
	ErrBadInstruction = errors.New("invalid robot instruction")
)

// World is the hull surface and the robot's pose on it.
type World struct {
	panels map[grid.Point]int64
	pos    grid.Point
	dir    grid.Point
}

// NewWorld returns a world with the robot at the origin facing North on a
// panel of the given colour.
func NewWorld(start int64) *World {
	w := &World{
		panels: make(map[grid.Point]int64),
		dir:    grid.North,
	}
	if start != Black {
		w.panels[w.pos] = start
	}
	return w
}

// Color returns the colour of the panel at p.
func (w *World) Color(p grid.Point) int64 {
	return w.panels[p]
}

// Position returns the robot's position.
func (w *World) Position() grid.Point { return w.pos }

// Heading returns the direction the robot faces.
func (w *World) Heading() grid.Point { return w.dir }

// Painted returns the number of panels painted at least once. A starting
// panel colour set by NewWorld counts as painted.
func (w *World) Painted() int {
	return len(w.panels)
}

// Render draws the hull with '#' for white and '.' for black panels, the
// row with the greatest Y first.
func (w *World) Render() string {
	b := grid.NewBounds()
	for p, c := range w.panels {
		if c == White {
			b.Extend(p)
		}
	}
	if b.Empty() {
		return ""
	}
	var sb strings.Builder
	for y := b.Max.Y; y >= b.Min.Y; y-- {
		for x := b.Min.X; x <= b.Max.X; x++ {
			if w.panels[grid.Point{X: x, Y: y}] == White {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// apply paints the current panel, turns and steps forward.
func (w *World) apply(color, turn int64) error {
	if color != Black && color != White {
		return fmt.Errorf("%w: colour %d", ErrBadInstruction, color)
	}
	switch turn {
	case TurnLeft:
		w.dir = w.dir.Left()
	case TurnRight:
		w.dir = w.dir.Right()
	default:
		return fmt.Errorf("%w: turn %d", ErrBadInstruction, turn)
	}
	w.panels[w.pos] = color
	w.pos = w.pos.Add(w.dir)
	return nil
}

// Paint runs the controller m against w until it terminates.
func Paint(m *intcode.Machine, w *World) error {
	for {
		m.PushInput(w.Color(w.pos))
		status, err := m.Run()
		if err != nil {
			return err
		}
		out := m.DrainOutput()
		if len(out)%2 != 0 {
			return fmt.Errorf("%w: %d values", ErrShortOutput, len(out))
		}
		for i := 0; i < len(out); i += 2 {
			if err := w.apply(out[i], out[i+1]); err != nil {
				return err
			}
		}
		if status == intcode.StatusTerminated {
			return nil
		}
		if len(out) == 0 {
			return fmt.Errorf("%w: 0 values", ErrShortOutput)
		}
	}
}
