package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// CodeBuilder: helper for constructing code arrays
// ---------------------------------------------------------------------------

// CodeBuilder assembles a code array. Branch operands refer to named labels
// that may be marked before or after the branch; they are patched by Bytes.
// The first misuse is remembered and reported by Bytes.
type CodeBuilder struct {
	code   []byte
	labels map[string]int
	fixups []fixup
	err    error
}

// fixup is a branch operand waiting for its label.
type fixup struct {
	at    int // operand position
	base  int // opcode position the offset is relative to
	label string
	wide  bool
}

// NewCodeBuilder creates an empty builder.
func NewCodeBuilder() *CodeBuilder {
	return &CodeBuilder{
		code:   make([]byte, 0, 64),
		labels: make(map[string]int),
	}
}

// Len returns the current length, which is the offset of the next instruction.
func (b *CodeBuilder) Len() int {
	return len(b.code)
}

func (b *CodeBuilder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

// Err returns the first misuse recorded so far.
func (b *CodeBuilder) Err() error {
	return b.err
}

// Mark binds label to the current position.
func (b *CodeBuilder) Mark(label string) {
	if _, dup := b.labels[label]; dup {
		b.fail("label %q defined twice", label)
		return
	}
	b.labels[label] = len(b.code)
}

// Offset returns the position bound to label.
func (b *CodeBuilder) Offset(label string) (int, bool) {
	off, ok := b.labels[label]
	return off, ok
}

// Labels returns a copy of every bound label.
func (b *CodeBuilder) Labels() map[string]int {
	out := make(map[string]int, len(b.labels))
	for k, v := range b.labels {
		out[k] = v
	}
	return out
}

func (b *CodeBuilder) u2(v int) {
	b.code = append(b.code, byte(v>>8), byte(v))
}

func (b *CodeBuilder) s4(v int32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	b.code = append(b.code, buf[:]...)
}

func (b *CodeBuilder) check(op Opcode, formats ...Format) bool {
	f := op.Info().Format
	for _, want := range formats {
		if f == want {
			return true
		}
	}
	b.fail("%s at %d: wrong operand form", op.Name(), len(b.code))
	return false
}

// Emit appends an opcode with no operands.
func (b *CodeBuilder) Emit(op Opcode) {
	if b.check(op, FormatNone) {
		b.code = append(b.code, byte(op))
	}
}

// EmitImmediate appends bipush or sipush.
func (b *CodeBuilder) EmitImmediate(op Opcode, v int) {
	if !b.check(op, FormatByte, FormatShort) {
		return
	}
	if op == OpBipush {
		if v < math.MinInt8 || v > math.MaxInt8 {
			b.fail("bipush operand %d out of range", v)
			return
		}
		b.code = append(b.code, byte(op), byte(int8(v)))
		return
	}
	if v < math.MinInt16 || v > math.MaxInt16 {
		b.fail("sipush operand %d out of range", v)
		return
	}
	b.code = append(b.code, byte(op))
	b.u2(int(uint16(int16(v))))
}

// EmitLocal appends a local-variable instruction, adding a wide prefix when
// the index does not fit in a byte.
func (b *CodeBuilder) EmitLocal(op Opcode, index int) {
	if !b.check(op, FormatLocal) {
		return
	}
	switch {
	case index < 0 || index > math.MaxUint16:
		b.fail("%s: local index %d out of range", op.Name(), index)
	case index > math.MaxUint8:
		b.code = append(b.code, byte(OpWide), byte(op))
		b.u2(index)
	default:
		b.code = append(b.code, byte(op), byte(index))
	}
}

// EmitIinc appends iinc, widened when needed.
func (b *CodeBuilder) EmitIinc(index, delta int) {
	switch {
	case index < 0 || index > math.MaxUint16 || delta < math.MinInt16 || delta > math.MaxInt16:
		b.fail("iinc %d %d out of range", index, delta)
	case index > math.MaxUint8 || delta < math.MinInt8 || delta > math.MaxInt8:
		b.code = append(b.code, byte(OpWide), byte(OpIinc))
		b.u2(index)
		b.u2(int(uint16(int16(delta))))
	default:
		b.code = append(b.code, byte(OpIinc), byte(index), byte(int8(delta)))
	}
}

// EmitConst appends an instruction taking a constant pool index. An ldc whose
// index does not fit in a byte becomes ldc_w.
func (b *CodeBuilder) EmitConst(op Opcode, index int) {
	if !b.check(op, FormatConst8, FormatConst16) {
		return
	}
	if index <= 0 || index > math.MaxUint16 {
		b.fail("%s: pool index %d out of range", op.Name(), index)
		return
	}
	if op == OpLdc {
		if index <= math.MaxUint8 {
			b.code = append(b.code, byte(op), byte(index))
			return
		}
		op = OpLdcW
	}
	b.code = append(b.code, byte(op))
	b.u2(index)
}

// EmitBranch appends a jump to label.
func (b *CodeBuilder) EmitBranch(op Opcode, label string) {
	if !b.check(op, FormatBranch, FormatBranchWide) {
		return
	}
	pos := len(b.code)
	b.code = append(b.code, byte(op))
	wide := op.Info().Format == FormatBranchWide
	b.fixups = append(b.fixups, fixup{at: len(b.code), base: pos, label: label, wide: wide})
	if wide {
		b.s4(0)
	} else {
		b.u2(0)
	}
}

func (b *CodeBuilder) pad() {
	for len(b.code)%4 != 0 {
		b.code = append(b.code, 0)
	}
}

func (b *CodeBuilder) switchTarget(base int, label string) {
	b.fixups = append(b.fixups, fixup{at: len(b.code), base: base, label: label, wide: true})
	b.s4(0)
}

// EmitTableSwitch appends a tableswitch covering low..low+len(targets)-1.
func (b *CodeBuilder) EmitTableSwitch(low int32, def string, targets []string) {
	if len(targets) == 0 {
		b.fail("tableswitch needs at least one target")
		return
	}
	pos := len(b.code)
	b.code = append(b.code, byte(OpTableswitch))
	b.pad()
	b.switchTarget(pos, def)
	b.s4(low)
	b.s4(low + int32(len(targets)-1))
	for _, t := range targets {
		b.switchTarget(pos, t)
	}
}

// EmitLookupSwitch appends a lookupswitch. Keys must be strictly ascending.
func (b *CodeBuilder) EmitLookupSwitch(def string, keys []int32, targets []string) {
	if len(keys) != len(targets) {
		b.fail("lookupswitch: %d keys but %d targets", len(keys), len(targets))
		return
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] <= keys[i-1] {
			b.fail("lookupswitch: keys must be strictly ascending")
			return
		}
	}
	pos := len(b.code)
	b.code = append(b.code, byte(OpLookupswitch))
	b.pad()
	b.switchTarget(pos, def)
	b.s4(int32(len(keys)))
	for i, k := range keys {
		b.s4(k)
		b.switchTarget(pos, targets[i])
	}
}

// EmitInvokeInterface appends invokeinterface with its argument slot count.
func (b *CodeBuilder) EmitInvokeInterface(index, count int) {
	if index <= 0 || index > math.MaxUint16 || count < 0 || count > math.MaxUint8 {
		b.fail("invokeinterface #%d %d out of range", index, count)
		return
	}
	b.code = append(b.code, byte(OpInvokeinterface))
	b.u2(index)
	b.code = append(b.code, byte(count), 0)
}

// EmitInvokeDynamic appends invokedynamic.
func (b *CodeBuilder) EmitInvokeDynamic(index int) {
	if index <= 0 || index > math.MaxUint16 {
		b.fail("invokedynamic #%d out of range", index)
		return
	}
	b.code = append(b.code, byte(OpInvokedynamic))
	b.u2(index)
	b.code = append(b.code, 0, 0)
}

// EmitNewArray appends newarray with an element code.
func (b *CodeBuilder) EmitNewArray(atype byte) {
	b.code = append(b.code, byte(OpNewarray), atype)
}

// EmitMultiANewArray appends multianewarray.
func (b *CodeBuilder) EmitMultiANewArray(index, dims int) {
	if index <= 0 || index > math.MaxUint16 || dims < 0 || dims > math.MaxUint8 {
		b.fail("multianewarray #%d %d out of range", index, dims)
		return
	}
	b.code = append(b.code, byte(OpMultianewarray))
	b.u2(index)
	b.code = append(b.code, byte(dims))
}

// EmitRaw appends raw bytes, for code that is deliberately malformed.
func (b *CodeBuilder) EmitRaw(data ...byte) {
	b.code = append(b.code, data...)
}

// Bytes patches every branch and returns the code array.
func (b *CodeBuilder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	for _, f := range b.fixups {
		target, ok := b.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q", f.label)
		}
		offset := target - f.base
		if f.wide {
			binary.BigEndian.PutUint32(b.code[f.at:], uint32(int32(offset)))
			continue
		}
		if offset < math.MinInt16 || offset > math.MaxInt16 {
			return nil, fmt.Errorf("branch to %q at %d does not fit in 16 bits; use goto_w", f.label, f.base)
		}
		binary.BigEndian.PutUint16(b.code[f.at:], uint16(int16(offset)))
	}
	out := make([]byte, len(b.code))
	copy(out, b.code)
	return out, nil
}
