// Package intcode implements the Intcode virtual machine.
//
// Intcode is a word-code machine over a single address space of signed
// 64-bit cells. Each instruction word encodes a two-digit opcode and one
// addressing-mode digit per parameter:
//
//	word = opcode + 100*mode1 + 1000*mode2 + 10000*mode3
//
// A Machine is resumable: when it executes an input instruction with an
// empty input queue it suspends with the instruction pointer unchanged, and
// continues from that instruction on the next call to Run. Callers drive a
// machine by alternating PushInput, Run and PopOutput until it terminates.
//
// A Machine is not safe for concurrent use.
package intcode

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Errors.
var (
	ErrOutOfRange        = errors.New("address out of range")
	ErrInvalidMode       = errors.New("invalid parameter mode")
	ErrInvalidOpcode     = errors.New("invalid opcode")
	ErrEmptyOutput       = errors.New("output queue empty")
	ErrFaulted           = errors.New("machine faulted")
	ErrStepLimitExceeded = errors.New("step limit exceeded")
)

// State is the lifecycle state of a machine.
type State int

const (
	StateReady      State = iota // Constructed, never run
	StateRunning                 // Inside Run
	StateSuspended               // Blocked on empty input
	StateTerminated              // Halted
	StateFaulted                 // Stopped on an unrecoverable error
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateTerminated:
		return "terminated"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is the outcome of a call to Run.
type Status int

const (
	StatusSuspended  Status = iota + 1 // Waiting for input
	StatusTerminated                   // Halt executed
	StatusFaulted                      // Run returned an error
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuspended:
		return "suspended"
	case StatusTerminated:
		return "terminated"
	case StatusFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// FaultError describes the instruction a machine faulted on.
type FaultError struct {
	Machine int
	IP      int64
	Word    int64
	Err     error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("machine #%d at ip %d (word %d): %v", e.Machine, e.IP, e.Word, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// Opts configures a machine.
type Opts struct {
	// Logger receives debug diagnostics. Nil disables logging.
	Logger *zap.Logger

	// StepLimit bounds the number of instructions executed over the
	// machine's lifetime. Zero means unlimited.
	StepLimit uint64
}

// Machine executes an Intcode program.
type Machine struct {
	id  int
	mem *Memory

	// Registers
	ip int64 // Address of the next instruction
	rb int64 // Relative base

	state State
	fault error

	steps     uint64
	stepLimit uint64

	input  queue
	output queue

	last    int64
	hasLast bool

	log *zap.Logger
}

// New creates a machine over a copy of image. The id only appears in
// diagnostics.
func New(id int, image []int64, opts Opts) *Machine {
	return NewFromMemory(id, NewMemory(image), opts)
}

// NewFromMemory creates a machine that executes mem in place.
func NewFromMemory(id int, mem *Memory, opts Opts) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		id:        id,
		mem:       mem,
		state:     StateReady,
		stepLimit: opts.StepLimit,
		log:       logger,
	}
}

// PushInput appends a value to the input queue.
func (m *Machine) PushInput(v int64) {
	m.input.push(v)
}

// PushInputs appends values to the input queue in order.
func (m *Machine) PushInputs(vs ...int64) {
	m.input.push(vs...)
}

// PopOutput removes and returns the oldest pending output.
func (m *Machine) PopOutput() (int64, error) {
	v, ok := m.output.pop()
	if !ok {
		return 0, fmt.Errorf("%w: machine #%d", ErrEmptyOutput, m.id)
	}
	return v, nil
}

// DrainOutput removes and returns all pending outputs.
func (m *Machine) DrainOutput() []int64 {
	return m.output.drain()
}

// OutputSize returns the number of pending outputs.
func (m *Machine) OutputSize() int {
	return m.output.len()
}

// InputSize returns the number of unconsumed inputs.
func (m *Machine) InputSize() int {
	return m.input.len()
}

// LastOutput returns the most recent value the program output, whether or
// not it has been popped.
func (m *Machine) LastOutput() (int64, bool) {
	return m.last, m.hasLast
}

// HasTerminated reports whether the program has halted.
func (m *Machine) HasTerminated() bool {
	return m.state == StateTerminated
}

// ID returns the machine identifier.
func (m *Machine) ID() int { return m.id }

// State returns the lifecycle state.
func (m *Machine) State() State { return m.state }

// IP returns the instruction pointer.
func (m *Machine) IP() int64 { return m.ip }

// RelativeBase returns the relative base register.
func (m *Machine) RelativeBase() int64 { return m.rb }

// Steps returns the number of instructions executed so far.
func (m *Machine) Steps() uint64 { return m.steps }

// Memory returns the machine's memory.
func (m *Machine) Memory() *Memory { return m.mem }

// Err returns the fault that stopped the machine, if any.
func (m *Machine) Err() error { return m.fault }

// Clone returns an independent copy of the machine. Memory is shared
// copy-on-write, so cloning is cheap until either copy writes.
func (m *Machine) Clone() *Machine {
	c := *m
	c.mem = m.mem.Clone()
	c.input = m.input.clone()
	c.output = m.output.clone()
	return &c
}

// Run executes until the machine suspends on input, halts or faults.
//
// Suspension is not an error: Run returns StatusSuspended and the pending
// input instruction executes again on the next call. Any fault is sticky;
// later calls return it again wrapped in ErrFaulted.
func (m *Machine) Run() (Status, error) {
	switch m.state {
	case StateTerminated:
		return StatusTerminated, nil
	case StateFaulted:
		return StatusFaulted, fmt.Errorf("%w: %w", ErrFaulted, m.fault)
	}
	m.state = StateRunning

	for {
		if m.stepLimit > 0 && m.steps >= m.stepLimit {
			return m.fail(0, fmt.Errorf("%w: %d", ErrStepLimitExceeded, m.stepLimit))
		}

		word, err := m.mem.Get(m.ip)
		if err != nil {
			return m.fail(0, err)
		}

		op := Opcode(word)
		info, ok := LookupOp(op)
		if !ok {
			return m.fail(word, fmt.Errorf("%w: %d", ErrInvalidOpcode, op))
		}
		next := m.ip + int64(info.Params) + 1

		switch op {
		case OpAdd, OpMul, OpLessThan, OpEquals:
			a, err := m.read(word, 1)
			if err != nil {
				return m.fail(word, err)
			}
			b, err := m.read(word, 2)
			if err != nil {
				return m.fail(word, err)
			}
			dst, err := m.writeAddr(word, 3)
			if err != nil {
				return m.fail(word, err)
			}
			var v int64
			switch op {
			case OpAdd:
				v = a + b
			case OpMul:
				v = a * b
			case OpLessThan:
				if a < b {
					v = 1
				}
			case OpEquals:
				if a == b {
					v = 1
				}
			}
			if err := m.mem.Set(dst, v); err != nil {
				return m.fail(word, err)
			}
			m.ip = next

		case OpInput:
			if m.input.len() == 0 {
				m.state = StateSuspended
				m.log.Debug("machine suspended on input",
					zap.Int("machine", m.id), zap.Int64("ip", m.ip),
					zap.Int64("rb", m.rb), zap.Uint64("steps", m.steps))
				return StatusSuspended, nil
			}
			dst, err := m.writeAddr(word, 1)
			if err != nil {
				return m.fail(word, err)
			}
			v, _ := m.input.pop()
			if err := m.mem.Set(dst, v); err != nil {
				return m.fail(word, err)
			}
			m.ip = next

		case OpOutput:
			a, err := m.read(word, 1)
			if err != nil {
				return m.fail(word, err)
			}
			m.output.push(a)
			m.last, m.hasLast = a, true
			m.ip = next

		case OpJumpIfTrue, OpJumpIfFalse:
			a, err := m.read(word, 1)
			if err != nil {
				return m.fail(word, err)
			}
			b, err := m.read(word, 2)
			if err != nil {
				return m.fail(word, err)
			}
			if (a != 0) == (op == OpJumpIfTrue) {
				m.ip = b
			} else {
				m.ip = next
			}

		case OpAdjustBase:
			a, err := m.read(word, 1)
			if err != nil {
				return m.fail(word, err)
			}
			m.rb += a
			m.ip = next

		case OpHalt:
			m.steps++
			m.state = StateTerminated
			m.log.Debug("machine terminated",
				zap.Int("machine", m.id), zap.Int64("ip", m.ip),
				zap.Uint64("steps", m.steps), zap.Int("pending_output", m.output.len()))
			return StatusTerminated, nil
		}

		m.steps++
	}
}

// fail moves the machine to the faulted state.
func (m *Machine) fail(word int64, err error) (Status, error) {
	m.state = StateFaulted
	m.fault = &FaultError{Machine: m.id, IP: m.ip, Word: word, Err: err}
	m.log.Debug("machine faulted",
		zap.Int("machine", m.id), zap.Int64("ip", m.ip),
		zap.Int64("rb", m.rb), zap.Error(err))
	return StatusFaulted, m.fault
}

// read resolves parameter n of the current instruction to a value.
func (m *Machine) read(word int64, n int) (int64, error) {
	mode, err := DecodeMode(word, n)
	if err != nil {
		return 0, err
	}
	param, err := m.mem.Get(m.ip + int64(n))
	if err != nil {
		return 0, err
	}
	switch mode {
	case ModeImmediate:
		return param, nil
	case ModeRelative:
		return m.mem.Get(param + m.rb)
	default:
		return m.mem.Get(param)
	}
}

// writeAddr resolves parameter n of the current instruction to a
// destination address.
func (m *Machine) writeAddr(word int64, n int) (int64, error) {
	mode, err := DecodeMode(word, n)
	if err != nil {
		return 0, err
	}
	param, err := m.mem.Get(m.ip + int64(n))
	if err != nil {
		return 0, err
	}
	switch mode {
	case ModeRelative:
		return param + m.rb, nil
	case ModePosition:
		return param, nil
	default:
		return 0, fmt.Errorf("%w: %s write target for parameter %d", ErrInvalidMode, mode, n)
	}
}
