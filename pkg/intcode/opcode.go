// Package intcode defines Intcode opcodes and instruction decoding.
package intcode

import "fmt"

// Opcodes (low two decimal digits of an instruction word).
const (
	OpAdd         = 1
	OpMul         = 2
	OpInput       = 3
	OpOutput      = 4
	OpJumpIfTrue  = 5
	OpJumpIfFalse = 6
	OpLessThan    = 7
	OpEquals      = 8
	OpAdjustBase  = 9
	OpHalt        = 99
)

// Mode is a parameter addressing mode.
type Mode int

// Parameter modes (one decimal digit per parameter above the opcode).
const (
	ModePosition  Mode = 0 // Dereference the parameter
	ModeImmediate Mode = 1 // Use the parameter itself
	ModeRelative  Mode = 2 // Dereference parameter + relative base
)

// MaxParams is the largest parameter count of any opcode.
const MaxParams = 3

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModePosition:
		return "position"
	case ModeImmediate:
		return "immediate"
	case ModeRelative:
		return "relative"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// OpInfo describes one opcode.
type OpInfo struct {
	Name   string
	Params int
}

var opTable = map[int64]OpInfo{
	OpAdd:         {"ADD", 3},
	OpMul:         {"MUL", 3},
	OpInput:       {"IN", 1},
	OpOutput:      {"OUT", 1},
	OpJumpIfTrue:  {"JNZ", 2},
	OpJumpIfFalse: {"JZ", 2},
	OpLessThan:    {"LT", 3},
	OpEquals:      {"EQ", 3},
	OpAdjustBase:  {"ARB", 1},
	OpHalt:        {"HALT", 0},
}

// LookupOp returns the table entry for an opcode.
func LookupOp(op int64) (OpInfo, bool) {
	info, ok := opTable[op]
	return info, ok
}

// Opcode extracts the opcode from an instruction word.
func Opcode(word int64) int64 {
	return word % 100
}

var modeDivisors = [MaxParams + 1]int64{0, 100, 1000, 10000}

// DecodeMode extracts the addressing mode of parameter position (1..3).
func DecodeMode(word int64, position int) (Mode, error) {
	if position < 1 || position > MaxParams {
		return 0, fmt.Errorf("%w: parameter position %d", ErrInvalidMode, position)
	}
	mode := Mode((word / modeDivisors[position]) % 10)
	switch mode {
	case ModePosition, ModeImmediate, ModeRelative:
		return mode, nil
	default:
		return mode, fmt.Errorf("%w: %d for parameter %d of %d", ErrInvalidMode, int(mode), position, word)
	}
}
