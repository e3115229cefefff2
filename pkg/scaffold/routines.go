package scaffold

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fortiblox/intcode/pkg/intcode"
)

// MaxRoutineLen is the longest routine the robot's memory accepts, in
// characters, newline excluded.
const MaxRoutineLen = 20

var (
	// ErrNoProgram is returned when a route does not fit three functions.
	ErrNoProgram = errors.New("route does not compress into three functions")

	// ErrRoutineTooLong is returned for a routine over MaxRoutineLen.
	ErrRoutineTooLong = errors.New("routine too long")

	// ErrStalled is returned when the robot waits for more input.
	ErrStalled = errors.New("robot waiting for input")
)

// Move is one leg of a route: a quarter turn followed by a straight walk.
type Move struct {
	Turn  byte
	Steps int
}

// String formats the move as the robot reads it, for example "L,12".
func (m Move) String() string {
	return string(m.Turn) + "," + strconv.Itoa(m.Steps)
}

// Route is a sequence of moves.
type Route []Move

// String formats the route as a comma-separated routine.
func (r Route) String() string {
	parts := make([]string, len(r))
	for i, m := range r {
		parts[i] = m.String()
	}
	return strings.Join(parts, ",")
}

func (r Route) hasPrefix(p Route) bool {
	if len(p) > len(r) {
		return false
	}
	for i := range p {
		if r[i] != p[i] {
			return false
		}
	}
	return true
}

// Program is the movement program for the robot: a main routine calling
// functions A, B and C.
type Program struct {
	Main      string
	Functions [3]string
}

// Lines returns the routines in the order the robot asks for them.
func (p Program) Lines() []string {
	return []string{p.Main, p.Functions[0], p.Functions[1], p.Functions[2]}
}

// Expand replaces every call of the main routine with its function body.
func (p Program) Expand() (string, error) {
	calls := strings.Split(p.Main, ",")
	parts := make([]string, 0, len(calls))
	for _, c := range calls {
		if len(c) != 1 || c[0] < 'A' || c[0] > 'C' {
			return "", fmt.Errorf("unknown function %q", c)
		}
		if body := p.Functions[c[0]-'A']; body != "" {
			parts = append(parts, body)
		}
	}
	return strings.Join(parts, ","), nil
}

// Compress splits r into at most three functions and a main routine
// calling them, each no longer than MaxRoutineLen characters.
func Compress(r Route) (Program, error) {
	var (
		prog  Program
		funcs []Route
		calls []byte
	)

	var search func(pos int) bool
	search = func(pos int) bool {
		if pos == len(r) {
			names := make([]string, len(calls))
			for i, c := range calls {
				names[i] = string(c)
			}
			prog.Main = strings.Join(names, ",")
			for i, f := range funcs {
				prog.Functions[i] = f.String()
			}
			return true
		}
		// Main calls are one letter each, separated by commas.
		if 2*len(calls)+1 > MaxRoutineLen {
			return false
		}

		rest := r[pos:]
		for i, f := range funcs {
			if !rest.hasPrefix(f) {
				continue
			}
			calls = append(calls, byte('A'+i))
			if search(pos + len(f)) {
				return true
			}
			calls = calls[:len(calls)-1]
		}

		if len(funcs) == len(prog.Functions) {
			return false
		}
		for n := 1; n <= len(rest); n++ {
			f := rest[:n]
			if len(f.String()) > MaxRoutineLen {
				break
			}
			funcs = append(funcs, f)
			calls = append(calls, byte('A'+len(funcs)-1))
			if search(pos + n) {
				return true
			}
			funcs = funcs[:len(funcs)-1]
			calls = calls[:len(calls)-1]
		}
		return false
	}

	if len(r) == 0 || !search(0) {
		return Program{}, ErrNoProgram
	}
	return prog, nil
}

// Wake sets the controller's wake-up flag. It must be called before the
// machine first runs.
func Wake(m *intcode.Machine) error {
	return m.Memory().Set(0, 2)
}

// Drive wakes the robot, feeds it prog with the live video feed off and
// runs it to the end of the route. It returns the dust the robot
// collected, which the controller reports as its last, non-ASCII output.
func Drive(m *intcode.Machine, prog Program) (int64, error) {
	for _, line := range prog.Lines() {
		if len(line) > MaxRoutineLen {
			return 0, fmt.Errorf("%w: %q", ErrRoutineTooLong, line)
		}
	}
	if err := Wake(m); err != nil {
		return 0, err
	}
	for _, line := range append(prog.Lines(), "n") {
		m.PushInputs(Encode(line)...)
	}

	status, err := m.Run()
	if err != nil {
		return 0, err
	}
	if status == intcode.StatusSuspended {
		return 0, ErrStalled
	}
	out := m.DrainOutput()
	if len(out) == 0 {
		return 0, ErrNoOutput
	}
	if dust := out[len(out)-1]; dust > 127 {
		return dust, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrRobotLost, strings.TrimSpace(Decode(out)))
}
