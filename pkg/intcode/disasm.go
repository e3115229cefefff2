package intcode

import (
	"fmt"
	"strings"
)

// Instruction is one decoded instruction of a program image.
type Instruction struct {
	Addr   int64
	Word   int64
	Op     OpInfo
	Modes  []Mode
	Params []int64
	Data   bool // Word did not decode; emitted as a single data cell
}

// String renders the instruction in assembler-like form.
func (in Instruction) String() string {
	if in.Data {
		return fmt.Sprintf("%5d: DATA %d", in.Addr, in.Word)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%5d: %s", in.Addr, in.Op.Name)
	for i, p := range in.Params {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}
		switch in.Modes[i] {
		case ModeImmediate:
			fmt.Fprintf(&b, "#%d", p)
		case ModeRelative:
			fmt.Fprintf(&b, "rb[%d]", p)
		default:
			fmt.Fprintf(&b, "[%d]", p)
		}
	}
	return b.String()
}

// Disassemble decodes image with a linear sweep. Since Intcode freely mixes
// code and data, cells that do not decode as an instruction, or whose
// parameters run past the end of the image, are reported as data.
func Disassemble(image []int64) []Instruction {
	var out []Instruction
	for addr := 0; addr < len(image); {
		word := image[addr]
		in, ok := decodeAt(image, addr)
		if !ok {
			out = append(out, Instruction{Addr: int64(addr), Word: word, Data: true})
			addr++
			continue
		}
		out = append(out, in)
		addr += 1 + in.Op.Params
	}
	return out
}

func decodeAt(image []int64, addr int) (Instruction, bool) {
	word := image[addr]
	if word < 0 {
		return Instruction{}, false
	}
	info, ok := LookupOp(Opcode(word))
	if !ok || addr+info.Params >= len(image) {
		return Instruction{}, false
	}
	in := Instruction{
		Addr:   int64(addr),
		Word:   word,
		Op:     info,
		Modes:  make([]Mode, info.Params),
		Params: make([]int64, info.Params),
	}
	for n := 1; n <= info.Params; n++ {
		mode, err := DecodeMode(word, n)
		if err != nil {
			return Instruction{}, false
		}
		in.Modes[n-1] = mode
		in.Params[n-1] = image[addr+n]
	}
	return in, true
}
