package verifier

import (
	"fmt"

	"github.com/chazu/bcverify/classfile"
)

// staticCheckError reports a failed prerequisite check. The data-flow pass
// does not run on such a method; the verdict is NotYet.
type staticCheckError struct {
	check string
	msg   string
}

func (e *staticCheckError) Error() string {
	return e.check + ": " + e.msg
}

func failCheck(check, format string, args ...any) *staticCheckError {
	return &staticCheckError{check: check, msg: fmt.Sprintf(format, args...)}
}

// Names of the prerequisite checks, as reported in NotYet verdicts.
const (
	checkDescriptor  = "method descriptor"
	checkLimits      = "code limits"
	checkDecode      = "code decoding"
	checkLocals      = "local variable indices"
	checkPool        = "constant pool references"
	checkInvokeNames = "method invocation names"
	checkArrays      = "array creation"
	checkHandlers    = "exception table"
	checkJsr         = "subroutine targets"
)

// prepared is what the prerequisite checks hand to the data-flow pass.
type prepared struct {
	code []classfile.Instruction
	desc classfile.MethodType
}

// precheck runs the static checks the data-flow pass relies on: the code
// decodes, every operand refers to something of the right shape, and the
// exception table lines up with instruction boundaries.
func precheck(class *classfile.Class, m *classfile.Method) (*prepared, error) {
	desc, err := classfile.ParseMethodType(m.Descriptor)
	if err != nil {
		return nil, failCheck(checkDescriptor, "%v", err)
	}
	if m.IsConstructor() && desc.Return.Kind != classfile.KindVoid {
		return nil, failCheck(checkDescriptor, "constructor %s must return void", m)
	}

	argSlots := desc.ArgumentSlots()
	if !m.IsStatic() {
		argSlots++
	}
	switch {
	case m.MaxStack < 0 || m.MaxStack > 0xFFFF:
		return nil, failCheck(checkLimits, "max_stack %d out of range", m.MaxStack)
	case m.MaxLocals < 0 || m.MaxLocals > 0xFFFF:
		return nil, failCheck(checkLimits, "max_locals %d out of range", m.MaxLocals)
	case m.MaxLocals < argSlots:
		return nil, failCheck(checkLimits, "max_locals %d is smaller than the %d argument slots", m.MaxLocals, argSlots)
	case len(m.Code) > 0xFFFF:
		return nil, failCheck(checkLimits, "code length %d exceeds 65535", len(m.Code))
	}

	code, err := classfile.Decode(m.Code)
	if err != nil {
		return nil, failCheck(checkDecode, "%v", err)
	}
	starts := make(map[int]bool, len(code))
	for i := range code {
		starts[code[i].Pos] = true
	}

	for i := range code {
		ins := &code[i]
		if err := checkOperands(class.Pool, m, ins); err != nil {
			return nil, err
		}
		if ins.Op.IsJsr() && ins.Target == 0 {
			return nil, failCheck(checkJsr, "%s targets the first instruction", ins)
		}
	}

	codeLen := code[len(code)-1].Next()
	for i, h := range m.Handlers {
		switch {
		case !starts[h.Start]:
			return nil, failCheck(checkHandlers, "handler %d: start %d is not an instruction", i, h.Start)
		case h.End != codeLen && !starts[h.End]:
			return nil, failCheck(checkHandlers, "handler %d: end %d is not an instruction", i, h.End)
		case h.Start >= h.End:
			return nil, failCheck(checkHandlers, "handler %d: empty range %d..%d", i, h.Start, h.End)
		case !starts[h.Target]:
			return nil, failCheck(checkHandlers, "handler %d: target %d is not an instruction", i, h.Target)
		}
		if h.CatchType != 0 {
			if _, err := class.Pool.ClassName(h.CatchType); err != nil {
				return nil, failCheck(checkHandlers, "handler %d: %v", i, err)
			}
		}
	}
	return &prepared{code: code, desc: desc}, nil
}

func checkOperands(pool *classfile.ConstantPool, m *classfile.Method, ins *classfile.Instruction) error {
	op := ins.Op
	switch {
	case op.IsLocalLoad(), op.IsLocalStore(), op == classfile.OpIinc, op == classfile.OpRet:
		last := ins.Index
		if k := localKind(op); k == KindLong || k == KindDouble {
			last++
		}
		if last >= m.MaxLocals {
			return failCheck(checkLocals, "%s uses local %d but max_locals is %d", ins, last, m.MaxLocals)
		}
		return nil
	}

	switch op {
	case classfile.OpLdc, classfile.OpLdcW:
		return expectTag(pool, ins, classfile.TagInteger, classfile.TagFloat, classfile.TagString,
			classfile.TagClass, classfile.TagMethodType, classfile.TagMethodHandle)
	case classfile.OpLdc2W:
		return expectTag(pool, ins, classfile.TagLong, classfile.TagDouble)
	case classfile.OpGetstatic, classfile.OpPutstatic, classfile.OpGetfield, classfile.OpPutfield:
		if err := expectTag(pool, ins, classfile.TagFieldref); err != nil {
			return err
		}
		ref, _ := pool.MemberRef(ins.Index)
		if _, err := classfile.ParseFieldType(ref.Descriptor); err != nil {
			return failCheck(checkPool, "%s: %v", ins, err)
		}
		return checkClassName(ins, ref.Owner)
	case classfile.OpInvokevirtual, classfile.OpInvokespecial, classfile.OpInvokestatic, classfile.OpInvokeinterface:
		return checkInvokeOperand(pool, ins)
	case classfile.OpInvokedynamic:
		if err := expectTag(pool, ins, classfile.TagInvokeDynamic); err != nil {
			return err
		}
		name, desc, _ := pool.InvokeDynamic(ins.Index)
		if name == classfile.ConstructorName || name == classfile.InitializerName {
			return failCheck(checkInvokeNames, "%s names %s", ins, name)
		}
		if _, err := classfile.ParseMethodType(desc); err != nil {
			return failCheck(checkPool, "%s: %v", ins, err)
		}
	case classfile.OpNew, classfile.OpCheckcast, classfile.OpInstanceof, classfile.OpAnewarray, classfile.OpMultianewarray:
		if err := expectTag(pool, ins, classfile.TagClass); err != nil {
			return err
		}
		name, _ := pool.ClassName(ins.Index)
		ft, err := classfile.ParseClassRef(name)
		if err != nil {
			return failCheck(checkPool, "%s: %v", ins, err)
		}
		switch op {
		case classfile.OpAnewarray:
			if ft.Dims >= 255 {
				return failCheck(checkArrays, "%s creates an array of more than 255 dimensions", ins)
			}
		case classfile.OpMultianewarray:
			if ins.Count < 1 {
				return failCheck(checkArrays, "%s has %d dimensions", ins, ins.Count)
			}
			if ins.Count > ft.Dims {
				return failCheck(checkArrays, "%s creates %d dimensions of %s", ins, ins.Count, name)
			}
		}
	case classfile.OpNewarray:
		if classfile.ArrayElementDescriptor(ins.AType) == "" {
			return failCheck(checkArrays, "%s has invalid element code %d", ins, ins.AType)
		}
	}
	return nil
}

func expectTag(pool *classfile.ConstantPool, ins *classfile.Instruction, tags ...classfile.Tag) error {
	got := pool.Tag(ins.Index)
	for _, t := range tags {
		if got == t {
			return nil
		}
	}
	if got == 0 {
		return failCheck(checkPool, "%s: constant pool index %d is invalid", ins, ins.Index)
	}
	return failCheck(checkPool, "%s: constant %d is a %s, want one of %v", ins, ins.Index, got, tags)
}

func checkClassName(ins *classfile.Instruction, name string) error {
	if _, err := classfile.ParseClassRef(name); err != nil {
		return failCheck(checkPool, "%s: %v", ins, err)
	}
	return nil
}

func checkInvokeOperand(pool *classfile.ConstantPool, ins *classfile.Instruction) error {
	var err error
	switch ins.Op {
	case classfile.OpInvokevirtual:
		err = expectTag(pool, ins, classfile.TagMethodref)
	case classfile.OpInvokeinterface:
		err = expectTag(pool, ins, classfile.TagInterfaceMethodref)
		if err == nil && ins.Count == 0 {
			err = failCheck(checkPool, "%s: count must not be zero", ins)
		}
	default:
		err = expectTag(pool, ins, classfile.TagMethodref, classfile.TagInterfaceMethodref)
	}
	if err != nil {
		return err
	}
	ref, _ := pool.MemberRef(ins.Index)
	mt, perr := classfile.ParseMethodType(ref.Descriptor)
	if perr != nil {
		return failCheck(checkPool, "%s: %v", ins, perr)
	}
	switch ref.Name {
	case classfile.InitializerName:
		return failCheck(checkInvokeNames, "%s invokes a class initializer", ins)
	case classfile.ConstructorName:
		if ins.Op != classfile.OpInvokespecial {
			return failCheck(checkInvokeNames, "%s: only invokespecial may invoke a constructor", ins)
		}
		if mt.Return.Kind != classfile.KindVoid {
			return failCheck(checkInvokeNames, "%s: constructor must return void", ins)
		}
	}
	return checkClassName(ins, ref.Owner)
}
