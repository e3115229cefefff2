// Package explorer maps a maze by probing a repair droid's Intcode
// controller.
//
// The droid accepts a movement command (1 north, 2 south, 3 west, 4 east)
// and answers 0 when it hit a wall, 1 when it moved, and 2 when it moved
// onto the oxygen system. The explorer never backtracks the droid: it
// clones the controller at every open cell and probes each neighbour from
// its own copy.
package explorer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fortiblox/intcode/pkg/grid"
	"github.com/fortiblox/intcode/pkg/intcode"
)

// Tile is the content of a surveyed cell.
type Tile int

const (
	Unknown Tile = iota
	Wall
	Open
	Oxygen
)

// Droid status replies.
const (
	replyWall  int64 = 0
	replyMoved int64 = 1
	replyFound int64 = 2
)

var moves = []struct {
	cmd int64
	dir grid.Point
}{
	{1, grid.North},
	{2, grid.South},
	{3, grid.West},
	{4, grid.East},
}

var (
	// ErrNoReply is returned when the droid does not answer a command.
	ErrNoReply = errors.New("droid gave no reply")

	// ErrBadReply is returned for a reply outside {0, 1, 2}.
	ErrBadReply = errors.New("invalid droid reply")

	// ErrNoOxygen is returned when the oxygen system was never found.
	ErrNoOxygen = errors.New("oxygen system not found")

	// ErrUnreachable is returned when no open path joins two cells.
	ErrUnreachable = errors.New("cell unreachable")
)

// Section is a surveyed area of the maze.
type Section struct {
	tiles  map[grid.Point]Tile
	target grid.Point
	found  bool
}

// Tile returns the content of cell p.
func (s *Section) Tile(p grid.Point) Tile {
	return s.tiles[p]
}

// Target returns the oxygen system location.
func (s *Section) Target() (grid.Point, bool) {
	return s.target, s.found
}

// Len returns the number of surveyed cells, walls included.
func (s *Section) Len() int {
	return len(s.tiles)
}

// Explore surveys every cell reachable from the droid's starting point.
// The start is the origin. m is left untouched.
func Explore(m *intcode.Machine) (*Section, error) {
	s := &Section{tiles: map[grid.Point]Tile{{}: Open}}

	type probe struct {
		pos grid.Point
		m   *intcode.Machine
	}
	queue := []probe{{grid.Point{}, m.Clone()}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, mv := range moves {
			next := cur.pos.Add(mv.dir)
			if s.tiles[next] != Unknown {
				continue
			}
			droid := cur.m.Clone()
			droid.PushInput(mv.cmd)
			if _, err := droid.Run(); err != nil {
				return nil, err
			}
			reply, err := droid.PopOutput()
			if err != nil {
				return nil, fmt.Errorf("%w at %v", ErrNoReply, next)
			}
			switch reply {
			case replyWall:
				s.tiles[next] = Wall
			case replyMoved, replyFound:
				s.tiles[next] = Open
				if reply == replyFound {
					s.tiles[next] = Oxygen
					s.target, s.found = next, true
				}
				queue = append(queue, probe{next, droid})
			default:
				return nil, fmt.Errorf("%w: %d at %v", ErrBadReply, reply, next)
			}
		}
	}
	return s, nil
}

// distances runs a breadth-first search over open cells from start.
func (s *Section) distances(start grid.Point) map[grid.Point]int {
	dist := map[grid.Point]int{start: 0}
	queue := []grid.Point{start}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, d := range grid.Directions {
			n := p.Add(d)
			if _, seen := dist[n]; seen {
				continue
			}
			if t := s.tiles[n]; t != Open && t != Oxygen {
				continue
			}
			dist[n] = dist[p] + 1
			queue = append(queue, n)
		}
	}
	return dist
}

// Distance returns the length of the shortest open path between two cells.
func (s *Section) Distance(from, to grid.Point) (int, error) {
	d, ok := s.distances(from)[to]
	if !ok {
		return 0, fmt.Errorf("%w: %v from %v", ErrUnreachable, to, from)
	}
	return d, nil
}

// FillTime returns the minutes oxygen needs to spread from the oxygen
// system to every open cell, one step per minute.
func (s *Section) FillTime() (int, error) {
	if !s.found {
		return 0, ErrNoOxygen
	}
	longest := 0
	for _, d := range s.distances(s.target) {
		longest = max(longest, d)
	}
	return longest, nil
}

// Render draws the section: '#' wall, '.' open, 'O' oxygen, 'D' the start.
func (s *Section) Render() string {
	b := grid.NewBounds()
	for p := range s.tiles {
		b.Extend(p)
	}
	var origin grid.Point
	var sb strings.Builder
	for y := b.Max.Y; y >= b.Min.Y; y-- {
		for x := b.Min.X; x <= b.Max.X; x++ {
			p := grid.Point{X: x, Y: y}
			switch {
			case p == origin:
				sb.WriteByte('D')
			case s.tiles[p] == Wall:
				sb.WriteByte('#')
			case s.tiles[p] == Open:
				sb.WriteByte('.')
			case s.tiles[p] == Oxygen:
				sb.WriteByte('O')
			default:
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
