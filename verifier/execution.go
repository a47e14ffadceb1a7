package verifier

import (
	"github.com/chazu/bcverify/classfile"
)

// exec applies the transfer function of ins to f. The constraint check has
// already passed, so the only errors left are broken invariants.
func (r *run) exec(ins *classfile.Instruction, f *Frame) error {
	apply := executionRule(ins.Op)
	if apply == nil {
		return internalf("no execution rule for %s", ins)
	}
	return apply(r, ins, f)
}

// executionRule dispatches on the opcode, mirroring constraintRule.
func executionRule(op classfile.Opcode) rule {
	switch {
	case op == classfile.OpNop, op.IsGoto(), op == classfile.OpRet, op == classfile.OpIinc:
		return execNothing
	case op == classfile.OpAconstNull:
		return pushConst(Null)
	case op >= classfile.OpIconstM1 && op <= classfile.OpIconst5,
		op == classfile.OpBipush, op == classfile.OpSipush:
		return pushConst(Int)
	case op == classfile.OpLconst0, op == classfile.OpLconst1:
		return pushConst(Long)
	case op >= classfile.OpFconst0 && op <= classfile.OpFconst2:
		return pushConst(Float)
	case op == classfile.OpDconst0, op == classfile.OpDconst1:
		return pushConst(Double)
	case op == classfile.OpLdc, op == classfile.OpLdcW, op == classfile.OpLdc2W:
		return execLdc
	case op.IsLocalLoad():
		return execLoad
	case op.IsLocalStore():
		return execStore
	case op >= classfile.OpIaload && op <= classfile.OpSaload:
		return execArrayLoad
	case op >= classfile.OpIastore && op <= classfile.OpSastore:
		return popN(3)
	case op >= classfile.OpPop && op <= classfile.OpSwap:
		return execStackOp
	case op >= classfile.OpIfeq && op <= classfile.OpIfle,
		op == classfile.OpIfnull, op == classfile.OpIfnonnull,
		op.IsSwitch(), op == classfile.OpMonitorenter, op == classfile.OpMonitorexit:
		return popN(1)
	case op.IsConditional():
		return popN(2)
	case op.IsJsr():
		return execJsr
	case op == classfile.OpReturn:
		return execNothing
	case op.IsReturn():
		return popN(1)
	case op >= classfile.OpGetstatic && op <= classfile.OpPutfield:
		return execField
	case op.IsInvoke():
		return execInvoke
	}

	if _, ok := arithmetic[op]; ok {
		return execArithmetic
	}

	switch op {
	case classfile.OpNew:
		return execNew
	case classfile.OpNewarray, classfile.OpAnewarray:
		return execNewArray
	case classfile.OpMultianewarray:
		return execMultiANewArray
	case classfile.OpArraylength, classfile.OpInstanceof:
		return replaceTop(Int)
	case classfile.OpAthrow:
		return execAthrow
	case classfile.OpCheckcast:
		return execCheckcast
	}
	return nil
}

func execNothing(*run, *classfile.Instruction, *Frame) error {
	return nil
}

func pushConst(t Type) rule {
	return func(_ *run, _ *classfile.Instruction, f *Frame) error {
		f.Stack.Push(t)
		return nil
	}
}

func popN(n int) rule {
	return func(_ *run, _ *classfile.Instruction, f *Frame) error {
		f.Stack.PopN(n)
		return nil
	}
}

func replaceTop(t Type) rule {
	return func(_ *run, _ *classfile.Instruction, f *Frame) error {
		f.Stack.Pop()
		f.Stack.Push(t)
		return nil
	}
}

func execLdc(r *run, ins *classfile.Instruction, f *Frame) error {
	var t Type
	switch tag := r.pool.Tag(ins.Index); tag {
	case classfile.TagInteger:
		t = Int
	case classfile.TagFloat:
		t = Float
	case classfile.TagLong:
		t = Long
	case classfile.TagDouble:
		t = Double
	case classfile.TagString:
		t = Reference(classfile.StringClass)
	case classfile.TagClass:
		t = Reference(classfile.ClassClass)
	case classfile.TagMethodType:
		t = Reference(classfile.MethodTypeClass)
	case classfile.TagMethodHandle:
		t = Reference(classfile.MethodHandleClass)
	default:
		return internalf("%s loads a %s constant", ins, tag)
	}
	f.Stack.Push(t)
	return nil
}

func execLoad(_ *run, ins *classfile.Instruction, f *Frame) error {
	f.Stack.Push(f.Locals.Get(ins.Index))
	return nil
}

func execStore(_ *run, ins *classfile.Instruction, f *Frame) error {
	v := f.Stack.Pop()
	f.Locals.Set(ins.Index, v)
	if v.Size() == 2 {
		f.Locals.Set(ins.Index+1, Unknown)
	}
	return nil
}

func execArrayLoad(_ *run, ins *classfile.Instruction, f *Frame) error {
	f.Stack.Pop()
	arr := f.Stack.Pop()
	if ins.Op != classfile.OpAaload {
		f.Stack.Push(arrayLoads[ins.Op].value)
		return nil
	}
	if arr.Kind == KindNull {
		f.Stack.Push(Null)
		return nil
	}
	comp, ok := arr.component()
	if !ok {
		return internalf("%s on %s", ins, arr)
	}
	f.Stack.Push(FromFieldType(comp))
	return nil
}

func execStackOp(_ *run, ins *classfile.Instruction, f *Frame) error {
	s := f.Stack
	switch ins.Op {
	case classfile.OpPop:
		s.Pop()
	case classfile.OpPop2:
		if s.Pop().Size() == 1 {
			s.Pop()
		}
	case classfile.OpDup:
		s.Push(s.Peek(0))
	case classfile.OpDupX1:
		v1, v2 := s.Pop(), s.Pop()
		push(s, v1, v2, v1)
	case classfile.OpDupX2:
		v1, v2 := s.Pop(), s.Pop()
		if v2.Size() == 2 {
			push(s, v1, v2, v1)
			break
		}
		v3 := s.Pop()
		push(s, v1, v3, v2, v1)
	case classfile.OpDup2:
		v1 := s.Pop()
		if v1.Size() == 2 {
			push(s, v1, v1)
			break
		}
		v2 := s.Pop()
		push(s, v2, v1, v2, v1)
	case classfile.OpDup2X1:
		v1, v2 := s.Pop(), s.Pop()
		if v1.Size() == 2 {
			push(s, v1, v2, v1)
			break
		}
		v3 := s.Pop()
		push(s, v2, v1, v3, v2, v1)
	case classfile.OpDup2X2:
		switch form := dup2x2Form(f); form {
		case 4:
			v1, v2 := s.Pop(), s.Pop()
			push(s, v1, v2, v1)
		case 2:
			v1, v2, v3 := s.Pop(), s.Pop(), s.Pop()
			push(s, v1, v3, v2, v1)
		case 3:
			v1, v2, v3 := s.Pop(), s.Pop(), s.Pop()
			push(s, v2, v1, v3, v2, v1)
		case 1:
			v1, v2, v3, v4 := s.Pop(), s.Pop(), s.Pop(), s.Pop()
			push(s, v2, v1, v4, v3, v2, v1)
		default:
			return internalf("%s on %s", ins, s)
		}
	case classfile.OpSwap:
		v1, v2 := s.Pop(), s.Pop()
		push(s, v1, v2)
	}
	return nil
}

// push pushes vs in order, so the last one ends up on top.
func push(s *Stack, vs ...Type) {
	for _, v := range vs {
		s.Push(v)
	}
}

func execArithmetic(_ *run, ins *classfile.Instruction, f *Frame) error {
	a := arithmetic[ins.Op]
	f.Stack.Pop()
	if a.next != Unknown {
		f.Stack.Pop()
	}
	f.Stack.Push(a.result)
	return nil
}

func execJsr(_ *run, ins *classfile.Instruction, f *Frame) error {
	f.Stack.Push(ReturnAddress(ins.Next()))
	return nil
}

func execField(r *run, ins *classfile.Instruction, f *Frame) error {
	_, ft, err := r.fieldRef(ins)
	if err != nil {
		return err
	}
	switch ins.Op {
	case classfile.OpGetstatic:
		f.Stack.Push(FromFieldType(ft))
	case classfile.OpPutstatic:
		f.Stack.Pop()
	case classfile.OpGetfield:
		f.Stack.Pop()
		f.Stack.Push(FromFieldType(ft))
	case classfile.OpPutfield:
		f.Stack.PopN(2)
	}
	return nil
}

func execInvoke(r *run, ins *classfile.Instruction, f *Frame) error {
	ref, mt, err := r.methodRef(ins)
	if err != nil {
		return err
	}
	n := len(mt.Args)
	if ref.Name == classfile.ConstructorName {
		marker := f.Stack.Peek(n)
		f.InitializeObject(marker)
		if marker.IsUninitializedThis() {
			f.ThisUninitialized = false
		}
	}
	if ins.Op != classfile.OpInvokestatic && ins.Op != classfile.OpInvokedynamic {
		n++
	}
	f.Stack.PopN(n)
	if ret := FromFieldType(mt.Return); ret != Unknown {
		f.Stack.Push(ret)
	}
	return nil
}

func execNew(r *run, ins *classfile.Instruction, f *Frame) error {
	name, err := r.pool.ClassName(ins.Index)
	if err != nil {
		return wrapInternal(err, "%s", ins)
	}
	f.Stack.Push(Uninitialized(name, ins.Pos))
	return nil
}

func execNewArray(r *run, ins *classfile.Instruction, f *Frame) error {
	f.Stack.Pop()
	if ins.Op == classfile.OpNewarray {
		f.Stack.Push(Reference("[" + classfile.ArrayElementDescriptor(ins.AType)))
		return nil
	}
	name, err := r.pool.ClassName(ins.Index)
	if err != nil {
		return wrapInternal(err, "%s", ins)
	}
	elem, err := FromClassRef(name)
	if err != nil {
		return wrapInternal(err, "%s", ins)
	}
	f.Stack.Push(ArrayOf(elem))
	return nil
}

func execMultiANewArray(r *run, ins *classfile.Instruction, f *Frame) error {
	name, err := r.pool.ClassName(ins.Index)
	if err != nil {
		return wrapInternal(err, "%s", ins)
	}
	t, err := FromClassRef(name)
	if err != nil {
		return wrapInternal(err, "%s", ins)
	}
	f.Stack.PopN(ins.Count)
	f.Stack.Push(t)
	return nil
}

func execCheckcast(r *run, ins *classfile.Instruction, f *Frame) error {
	name, err := r.pool.ClassName(ins.Index)
	if err != nil {
		return wrapInternal(err, "%s", ins)
	}
	t, err := FromClassRef(name)
	if err != nil {
		return wrapInternal(err, "%s", ins)
	}
	f.Stack.Pop()
	f.Stack.Push(t)
	return nil
}

func execAthrow(_ *run, _ *classfile.Instruction, f *Frame) error {
	thrown := f.Stack.Pop()
	if thrown.Kind == KindNull {
		thrown = Reference(nullPointerException)
	}
	f.Stack.Clear()
	f.Stack.Push(thrown)
	return nil
}

const nullPointerException = "java/lang/NullPointerException"
