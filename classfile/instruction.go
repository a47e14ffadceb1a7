package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Instruction is one decoded instruction of a code array. Fields that do not
// apply to the opcode's format are zero.
type Instruction struct {
	Pos     int     // byte offset of the opcode
	Len     int     // encoded length in bytes, including any wide prefix
	Op      Opcode  // the instruction itself, never OpWide
	Wide    bool    // encoded with a wide prefix
	Index   int     // local variable index or constant pool index
	Const   int32   // bipush/sipush/iinc immediate
	Target  int     // branch target offset; default target for switches
	Targets []int   // switch targets, parallel to Keys
	Keys    []int32 // switch match values
	Count   int     // invokeinterface count or multianewarray dimensions
	AType   byte    // newarray element code
}

// Next returns the offset of the physically following instruction.
func (ins *Instruction) Next() int {
	return ins.Pos + ins.Len
}

// BranchTargets returns every explicit branch target, default first for
// switches.
func (ins *Instruction) BranchTargets() []int {
	switch {
	case ins.Op.IsSwitch():
		out := make([]int, 0, len(ins.Targets)+1)
		out = append(out, ins.Target)
		return append(out, ins.Targets...)
	case ins.Op.IsConditional(), ins.Op.IsGoto(), ins.Op.IsJsr():
		return []int{ins.Target}
	}
	return nil
}

func (ins *Instruction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d: %s", ins.Pos, ins.Op.Name())
	switch ins.Op.Info().Format {
	case FormatByte, FormatShort:
		fmt.Fprintf(&sb, " %d", ins.Const)
	case FormatLocal:
		fmt.Fprintf(&sb, " %d", ins.Index)
	case FormatConst8, FormatConst16, FormatInvokeDynamic:
		fmt.Fprintf(&sb, " #%d", ins.Index)
	case FormatBranch, FormatBranchWide:
		fmt.Fprintf(&sb, " %d", ins.Target)
	case FormatIinc:
		fmt.Fprintf(&sb, " %d %d", ins.Index, ins.Const)
	case FormatTableSwitch, FormatLookupSwitch:
		fmt.Fprintf(&sb, " default:%d", ins.Target)
		for i, k := range ins.Keys {
			fmt.Fprintf(&sb, " %d:%d", k, ins.Targets[i])
		}
	case FormatInvokeInterface:
		fmt.Fprintf(&sb, " #%d %d", ins.Index, ins.Count)
	case FormatMultiANewArray:
		fmt.Fprintf(&sb, " #%d %d", ins.Index, ins.Count)
	case FormatNewArray:
		fmt.Fprintf(&sb, " %s", ArrayElementDescriptor(ins.AType))
	}
	return sb.String()
}

// ArrayElementDescriptor maps a newarray element code to its descriptor, or ""
// for an invalid code.
func ArrayElementDescriptor(code byte) string {
	switch code {
	case ArrayBoolean:
		return "Z"
	case ArrayChar:
		return "C"
	case ArrayFloat:
		return "F"
	case ArrayDouble:
		return "D"
	case ArrayByte:
		return "B"
	case ArrayShort:
		return "S"
	case ArrayInt:
		return "I"
	case ArrayLong:
		return "J"
	}
	return ""
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// ErrMalformedCode is wrapped by every decoding failure.
var ErrMalformedCode = errors.New("malformed code")

// Decode turns a code array into instructions in offset order. It checks the
// encoding only: operand widths, switch layout, that branch targets land on
// instruction boundaries, and that control cannot run off the end.
func Decode(code []byte) ([]Instruction, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: empty code array", ErrMalformedCode)
	}
	r := &codeReader{code: code}
	var out []Instruction
	for r.pos < len(code) {
		ins, err := r.decodeOne()
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
	}

	starts := make(map[int]bool, len(out))
	for i := range out {
		starts[out[i].Pos] = true
	}
	for i := range out {
		for _, t := range out[i].BranchTargets() {
			if !starts[t] {
				return nil, fmt.Errorf("%w: %s: branch target %d is not an instruction", ErrMalformedCode, &out[i], t)
			}
		}
	}
	last := &out[len(out)-1]
	if !last.Op.EndsFlow() {
		return nil, fmt.Errorf("%w: %s: control falls off the end of the code", ErrMalformedCode, last)
	}
	return out, nil
}

type codeReader struct {
	code []byte
	pos  int
}

func (r *codeReader) need(n int, at int) error {
	if r.pos+n > len(r.code) {
		return fmt.Errorf("%w: truncated instruction at %d", ErrMalformedCode, at)
	}
	return nil
}

func (r *codeReader) u1() int {
	v := r.code[r.pos]
	r.pos++
	return int(v)
}

func (r *codeReader) u2() int {
	v := binary.BigEndian.Uint16(r.code[r.pos:])
	r.pos += 2
	return int(v)
}

func (r *codeReader) s4() int32 {
	v := binary.BigEndian.Uint32(r.code[r.pos:])
	r.pos += 4
	return int32(v)
}

func (r *codeReader) decodeOne() (Instruction, error) {
	start := r.pos
	op := Opcode(r.code[r.pos])
	r.pos++
	if !op.Valid() {
		return Instruction{}, fmt.Errorf("%w: undefined opcode 0x%02X at %d", ErrMalformedCode, byte(op), start)
	}
	ins := Instruction{Pos: start, Op: op}
	if idx, ok := op.implicitLocal(); ok {
		ins.Index = idx
	}

	switch op.Info().Format {
	case FormatNone:
	case FormatByte:
		if err := r.need(1, start); err != nil {
			return ins, err
		}
		ins.Const = int32(int8(r.u1()))
	case FormatShort:
		if err := r.need(2, start); err != nil {
			return ins, err
		}
		ins.Const = int32(int16(r.u2()))
	case FormatLocal, FormatConst8:
		if err := r.need(1, start); err != nil {
			return ins, err
		}
		ins.Index = r.u1()
	case FormatConst16:
		if err := r.need(2, start); err != nil {
			return ins, err
		}
		ins.Index = r.u2()
	case FormatBranch:
		if err := r.need(2, start); err != nil {
			return ins, err
		}
		ins.Target = start + int(int16(r.u2()))
	case FormatBranchWide:
		if err := r.need(4, start); err != nil {
			return ins, err
		}
		ins.Target = start + int(r.s4())
	case FormatIinc:
		if err := r.need(2, start); err != nil {
			return ins, err
		}
		ins.Index = r.u1()
		ins.Const = int32(int8(r.u1()))
	case FormatNewArray:
		if err := r.need(1, start); err != nil {
			return ins, err
		}
		ins.AType = byte(r.u1())
	case FormatInvokeInterface:
		if err := r.need(4, start); err != nil {
			return ins, err
		}
		ins.Index = r.u2()
		ins.Count = r.u1()
		if r.u1() != 0 {
			return ins, fmt.Errorf("%w: invokeinterface at %d: fourth operand byte must be zero", ErrMalformedCode, start)
		}
	case FormatInvokeDynamic:
		if err := r.need(4, start); err != nil {
			return ins, err
		}
		ins.Index = r.u2()
		if r.u2() != 0 {
			return ins, fmt.Errorf("%w: invokedynamic at %d: trailing operand bytes must be zero", ErrMalformedCode, start)
		}
	case FormatMultiANewArray:
		if err := r.need(3, start); err != nil {
			return ins, err
		}
		ins.Index = r.u2()
		ins.Count = r.u1()
	case FormatTableSwitch:
		if err := r.switchPadding(start); err != nil {
			return ins, err
		}
		if err := r.need(12, start); err != nil {
			return ins, err
		}
		ins.Target = start + int(r.s4())
		low, high := r.s4(), r.s4()
		if low > high {
			return ins, fmt.Errorf("%w: tableswitch at %d: low %d > high %d", ErrMalformedCode, start, low, high)
		}
		n := int(int64(high) - int64(low) + 1)
		if err := r.need(4*n, start); err != nil {
			return ins, err
		}
		for k := 0; k < n; k++ {
			ins.Keys = append(ins.Keys, low+int32(k))
			ins.Targets = append(ins.Targets, start+int(r.s4()))
		}
	case FormatLookupSwitch:
		if err := r.switchPadding(start); err != nil {
			return ins, err
		}
		if err := r.need(8, start); err != nil {
			return ins, err
		}
		ins.Target = start + int(r.s4())
		n := r.s4()
		if n < 0 {
			return ins, fmt.Errorf("%w: lookupswitch at %d: negative pair count", ErrMalformedCode, start)
		}
		if err := r.need(8*int(n), start); err != nil {
			return ins, err
		}
		for k := 0; k < int(n); k++ {
			key := r.s4()
			if k > 0 && key <= ins.Keys[k-1] {
				return ins, fmt.Errorf("%w: lookupswitch at %d: keys are not sorted", ErrMalformedCode, start)
			}
			ins.Keys = append(ins.Keys, key)
			ins.Targets = append(ins.Targets, start+int(r.s4()))
		}
	case FormatWide:
		return r.decodeWide(start)
	}
	ins.Len = r.pos - start
	return ins, nil
}

func (r *codeReader) switchPadding(start int) error {
	pad := (4 - (r.pos % 4)) % 4
	if err := r.need(pad, start); err != nil {
		return err
	}
	r.pos += pad
	return nil
}

func (r *codeReader) decodeWide(start int) (Instruction, error) {
	if err := r.need(1, start); err != nil {
		return Instruction{}, err
	}
	op := Opcode(r.u1())
	ins := Instruction{Pos: start, Op: op, Wide: true}
	switch {
	case op == OpIinc:
		if err := r.need(4, start); err != nil {
			return ins, err
		}
		ins.Index = r.u2()
		ins.Const = int32(int16(r.u2()))
	case op.Info().Format == FormatLocal:
		if err := r.need(2, start); err != nil {
			return ins, err
		}
		ins.Index = r.u2()
	default:
		return ins, fmt.Errorf("%w: wide at %d cannot modify %s", ErrMalformedCode, start, op.Name())
	}
	ins.Len = r.pos - start
	return ins, nil
}
