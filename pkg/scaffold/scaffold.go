// Package scaffold reads the ASCII camera of a vacuum robot's Intcode
// controller and plans the robot's route over the scaffolding.
//
// The camera prints one character per cell: '#' is scaffold, '.' is open
// space and one of "^v<>" marks the robot standing on scaffold and the way
// it faces. 'X' marks a robot that has tumbled into space. Rows end with a
// newline.
//
// Coordinates follow the grid package: the top-left cell is the origin,
// columns grow east and rows grow south, so row r has Y = -r.
package scaffold

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fortiblox/intcode/pkg/grid"
	"github.com/fortiblox/intcode/pkg/intcode"
)

var (
	// ErrBadCell is returned for a camera character outside the known set.
	ErrBadCell = errors.New("invalid camera cell")

	// ErrNoRobot is returned when the camera shows no robot.
	ErrNoRobot = errors.New("robot not in view")

	// ErrRobotLost is returned when the robot fell off the scaffold.
	ErrRobotLost = errors.New("robot fell off the scaffold")

	// ErrNoOutput is returned when the camera printed nothing.
	ErrNoOutput = errors.New("camera produced no output")

	// ErrCircuit is returned when the route closes on itself.
	ErrCircuit = errors.New("scaffold route never ends")
)

var facings = map[byte]grid.Point{
	'^': grid.North,
	'v': grid.South,
	'<': grid.West,
	'>': grid.East,
}

// View is one camera frame.
type View struct {
	scaffold map[grid.Point]bool
	robot    grid.Point
	facing   grid.Point
	hasRobot bool
	lost     bool
	text     string
}

// Parse decodes a camera frame. Trailing blank lines are ignored.
func Parse(text string) (*View, error) {
	text = strings.TrimRight(text, "\n")
	v := &View{scaffold: make(map[grid.Point]bool), text: text + "\n"}

	for row, line := range strings.Split(text, "\n") {
		for col := 0; col < len(line); col++ {
			p := grid.Point{X: col, Y: -row}
			switch c := line[col]; c {
			case '.':
			case '#':
				v.scaffold[p] = true
			case 'X':
				v.robot, v.hasRobot, v.lost = p, true, true
			default:
				dir, ok := facings[c]
				if !ok {
					return nil, fmt.Errorf("%w: %q at %v", ErrBadCell, c, p)
				}
				v.scaffold[p] = true
				v.robot, v.facing, v.hasRobot = p, dir, true
			}
		}
	}
	return v, nil
}

// Scan runs m until it halts or waits for input and parses what the
// camera printed.
func Scan(m *intcode.Machine) (*View, error) {
	if _, err := m.Run(); err != nil {
		return nil, err
	}
	out := m.DrainOutput()
	if len(out) == 0 {
		return nil, ErrNoOutput
	}
	return Parse(Decode(out))
}

// IsScaffold reports whether p is scaffold.
func (v *View) IsScaffold(p grid.Point) bool {
	return v.scaffold[p]
}

// Robot returns the robot position and facing.
func (v *View) Robot() (pos, facing grid.Point, ok bool) {
	return v.robot, v.facing, v.hasRobot && !v.lost
}

// Intersections returns every scaffold cell with scaffold on all four
// sides, ordered by row and then column.
func (v *View) Intersections() []grid.Point {
	var out []grid.Point
	for p := range v.scaffold {
		crossing := true
		for _, d := range grid.Directions {
			if !v.scaffold[p.Add(d)] {
				crossing = false
				break
			}
		}
		if crossing {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y > out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// AlignmentSum returns the sum over all intersections of column times row.
func (v *View) AlignmentSum() int {
	sum := 0
	for _, p := range v.Intersections() {
		sum += p.X * -p.Y
	}
	return sum
}

// Route follows the scaffold from the robot to the far end. At every stop
// the robot turns towards the only way on, then walks until the scaffold
// ends. Intersections are crossed straight.
func (v *View) Route() (Route, error) {
	if v.lost {
		return nil, ErrRobotLost
	}
	if !v.hasRobot {
		return nil, ErrNoRobot
	}

	var route Route
	pos, dir := v.robot, v.facing
	for {
		var turn byte
		switch {
		case v.scaffold[pos.Add(dir.Left())]:
			turn, dir = 'L', dir.Left()
		case v.scaffold[pos.Add(dir.Right())]:
			turn, dir = 'R', dir.Right()
		default:
			return route, nil
		}
		steps := 0
		for v.scaffold[pos.Add(dir)] {
			pos = pos.Add(dir)
			steps++
		}
		route = append(route, Move{Turn: turn, Steps: steps})
		if len(route) > len(v.scaffold) {
			return nil, ErrCircuit
		}
	}
}

// String returns the frame as printed by the camera.
func (v *View) String() string {
	return v.text
}

// Decode turns controller output into text. Values outside the ASCII
// range are dropped.
func Decode(out []int64) string {
	var sb strings.Builder
	for _, c := range out {
		if c >= 0 && c < 128 {
			sb.WriteByte(byte(c))
		}
	}
	return sb.String()
}

// Encode turns a line of text into controller input, newline included.
func Encode(line string) []int64 {
	in := make([]int64, 0, len(line)+1)
	for i := 0; i < len(line); i++ {
		in = append(in, int64(line[i]))
	}
	return append(in, '\n')
}
