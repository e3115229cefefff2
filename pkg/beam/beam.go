// Package beam surveys a tractor beam through a drone-deployment
// controller.
//
// The controller reads an x and a y coordinate, answers 1 if the drone
// sent there is pulled by the beam and 0 if it is not, and halts. Every
// probe therefore runs on a fresh machine.
//
// Coordinates are screen coordinates: the emitter is at the origin, x
// grows to the right and y grows away from the emitter.
package beam

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fortiblox/intcode/pkg/grid"
	"github.com/fortiblox/intcode/pkg/intcode"
	"go.uber.org/zap"
)

// DefaultMaxRows bounds the rows FitSquare walks before giving up.
const DefaultMaxRows = 100_000

// Row scans for the beam's left edge start at the previous edge and cover
// at most y+edgeSlack cells.
const edgeSlack = 16

var (
	// ErrNoReply is returned when the controller halts without answering.
	ErrNoReply = errors.New("drone gave no reply")

	// ErrBadReply is returned for a reply other than 0 or 1.
	ErrBadReply = errors.New("invalid drone reply")

	// ErrNegative is returned for a probe behind the emitter.
	ErrNegative = errors.New("negative coordinate")

	// ErrNoFit is returned when no square fits within the scanned rows.
	ErrNoFit = errors.New("square does not fit the beam")
)

// Opts configures a Scanner.
type Opts struct {
	Logger    *zap.Logger
	StepLimit uint64

	// MaxRows bounds FitSquare. Zero means DefaultMaxRows.
	MaxRows int
}

// Scanner probes the beam with one controller image.
type Scanner struct {
	image  []int64
	opts   Opts
	log    *zap.Logger
	probes int
}

// NewScanner returns a scanner for the controller image.
func NewScanner(image []int64, opts Opts) *Scanner {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{image: image, opts: opts, log: log}
}

// Probes returns the number of drones deployed so far.
func (s *Scanner) Probes() int {
	return s.probes
}

// Pulled deploys a drone to (x, y) and reports whether the beam holds it.
func (s *Scanner) Pulled(x, y int) (bool, error) {
	if x < 0 || y < 0 {
		return false, fmt.Errorf("%w: (%d, %d)", ErrNegative, x, y)
	}
	m := intcode.New(s.probes, s.image, intcode.Opts{StepLimit: s.opts.StepLimit})
	s.probes++

	m.PushInputs(int64(x), int64(y))
	if _, err := m.Run(); err != nil {
		return false, fmt.Errorf("probe (%d, %d): %w", x, y, err)
	}
	reply, err := m.PopOutput()
	if err != nil {
		return false, fmt.Errorf("%w at (%d, %d)", ErrNoReply, x, y)
	}
	switch reply {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %d at (%d, %d)", ErrBadReply, reply, x, y)
	}
}

// Count returns the number of pulled points in the width by height area
// nearest the emitter.
func (s *Scanner) Count(width, height int) (int, error) {
	n := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			ok, err := s.Pulled(x, y)
			if err != nil {
				return 0, err
			}
			if ok {
				n++
			}
		}
	}
	return n, nil
}

// Render draws the width by height area: '#' pulled, '.' stationary.
func (s *Scanner) Render(width, height int) (string, error) {
	var sb strings.Builder
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			ok, err := s.Pulled(x, y)
			if err != nil {
				return "", err
			}
			if ok {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// FitSquare returns the top-left corner of the side by side square
// closest to the emitter that lies wholly inside the beam.
//
// It walks the beam's left edge row by row. A row whose left edge x has
// (x+side-1, y-side+1) pulled is the bottom row of the square. Rows near
// the emitter where the beam is too thin to show are skipped.
func (s *Scanner) FitSquare(side int) (grid.Point, error) {
	if side <= 0 {
		return grid.Point{}, fmt.Errorf("%w: side %d", ErrNoFit, side)
	}

	edge := 0
	for y := 0; y < s.opts.MaxRows; y++ {
		x, found, err := s.leftEdge(edge, y)
		if err != nil {
			return grid.Point{}, err
		}
		if !found {
			continue
		}
		edge = x

		top := y - side + 1
		if top < 0 {
			continue
		}
		ok, err := s.Pulled(x+side-1, top)
		if err != nil {
			return grid.Point{}, err
		}
		if ok {
			s.log.Debug("square fits",
				zap.Int("side", side), zap.Int("x", x), zap.Int("y", top),
				zap.Int("probes", s.probes))
			return grid.Point{X: x, Y: top}, nil
		}
	}
	return grid.Point{}, fmt.Errorf("%w: side %d within %d rows", ErrNoFit, side, s.opts.MaxRows)
}

// leftEdge finds the first pulled x in row y at or after from.
func (s *Scanner) leftEdge(from, y int) (int, bool, error) {
	for x := from; x <= from+y+edgeSlack; x++ {
		ok, err := s.Pulled(x, y)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return x, true, nil
		}
	}
	return 0, false, nil
}
