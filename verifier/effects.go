package verifier

import (
	"github.com/chazu/bcverify/classfile"
)

var localKinds = [...]Kind{KindInt, KindLong, KindFloat, KindDouble, KindReference}

// localKind returns the kind of value a load or store moves, or KindUnknown
// for any other instruction.
func localKind(op classfile.Opcode) Kind {
	switch {
	case op >= classfile.OpIload && op <= classfile.OpAload:
		return localKinds[op-classfile.OpIload]
	case op >= classfile.OpIload0 && op <= classfile.OpAload3:
		return localKinds[(op-classfile.OpIload0)/4]
	case op >= classfile.OpIstore && op <= classfile.OpAstore:
		return localKinds[op-classfile.OpIstore]
	case op >= classfile.OpIstore0 && op <= classfile.OpAstore3:
		return localKinds[(op-classfile.OpIstore0)/4]
	}
	return KindUnknown
}

func kindSize(k Kind) int {
	if k == KindLong || k == KindDouble {
		return 2
	}
	return 1
}

// arith describes an arithmetic, conversion or comparison instruction: the
// operand types from the top down and the result. Unary instructions leave
// next as Unknown.
type arith struct {
	top, next, result Type
}

var arithmetic = map[classfile.Opcode]arith{
	classfile.OpIadd:  {Int, Int, Int},
	classfile.OpIsub:  {Int, Int, Int},
	classfile.OpImul:  {Int, Int, Int},
	classfile.OpIdiv:  {Int, Int, Int},
	classfile.OpIrem:  {Int, Int, Int},
	classfile.OpIshl:  {Int, Int, Int},
	classfile.OpIshr:  {Int, Int, Int},
	classfile.OpIushr: {Int, Int, Int},
	classfile.OpIand:  {Int, Int, Int},
	classfile.OpIor:   {Int, Int, Int},
	classfile.OpIxor:  {Int, Int, Int},

	classfile.OpLadd:  {Long, Long, Long},
	classfile.OpLsub:  {Long, Long, Long},
	classfile.OpLmul:  {Long, Long, Long},
	classfile.OpLdiv:  {Long, Long, Long},
	classfile.OpLrem:  {Long, Long, Long},
	classfile.OpLand:  {Long, Long, Long},
	classfile.OpLor:   {Long, Long, Long},
	classfile.OpLxor:  {Long, Long, Long},
	classfile.OpLshl:  {Int, Long, Long},
	classfile.OpLshr:  {Int, Long, Long},
	classfile.OpLushr: {Int, Long, Long},

	classfile.OpFadd: {Float, Float, Float},
	classfile.OpFsub: {Float, Float, Float},
	classfile.OpFmul: {Float, Float, Float},
	classfile.OpFdiv: {Float, Float, Float},
	classfile.OpFrem: {Float, Float, Float},

	classfile.OpDadd: {Double, Double, Double},
	classfile.OpDsub: {Double, Double, Double},
	classfile.OpDmul: {Double, Double, Double},
	classfile.OpDdiv: {Double, Double, Double},
	classfile.OpDrem: {Double, Double, Double},

	classfile.OpLcmp:  {Long, Long, Int},
	classfile.OpFcmpl: {Float, Float, Int},
	classfile.OpFcmpg: {Float, Float, Int},
	classfile.OpDcmpl: {Double, Double, Int},
	classfile.OpDcmpg: {Double, Double, Int},

	classfile.OpIneg: {top: Int, result: Int},
	classfile.OpLneg: {top: Long, result: Long},
	classfile.OpFneg: {top: Float, result: Float},
	classfile.OpDneg: {top: Double, result: Double},
	classfile.OpI2l:  {top: Int, result: Long},
	classfile.OpI2f:  {top: Int, result: Float},
	classfile.OpI2d:  {top: Int, result: Double},
	classfile.OpL2i:  {top: Long, result: Int},
	classfile.OpL2f:  {top: Long, result: Float},
	classfile.OpL2d:  {top: Long, result: Double},
	classfile.OpF2i:  {top: Float, result: Int},
	classfile.OpF2l:  {top: Float, result: Long},
	classfile.OpF2d:  {top: Float, result: Double},
	classfile.OpD2i:  {top: Double, result: Int},
	classfile.OpD2l:  {top: Double, result: Long},
	classfile.OpD2f:  {top: Double, result: Float},
	classfile.OpI2b:  {top: Int, result: Int},
	classfile.OpI2c:  {top: Int, result: Int},
	classfile.OpI2s:  {top: Int, result: Int},
}

// arrayOp describes an array element load or store. elems lists the
// accepted component descriptors; empty means reference components.
type arrayOp struct {
	elems string
	value Type
}

var arrayLoads = map[classfile.Opcode]arrayOp{
	classfile.OpIaload: {"I", Int},
	classfile.OpLaload: {"J", Long},
	classfile.OpFaload: {"F", Float},
	classfile.OpDaload: {"D", Double},
	classfile.OpAaload: {"", Unknown},
	classfile.OpBaload: {"BZ", Int},
	classfile.OpCaload: {"C", Int},
	classfile.OpSaload: {"S", Int},
}

var arrayStores = map[classfile.Opcode]arrayOp{
	classfile.OpIastore: {"I", Int},
	classfile.OpLastore: {"J", Long},
	classfile.OpFastore: {"F", Float},
	classfile.OpDastore: {"D", Double},
	classfile.OpAastore: {"", Unknown},
	classfile.OpBastore: {"BZ", Int},
	classfile.OpCastore: {"C", Int},
	classfile.OpSastore: {"S", Int},
}

var returnTypes = map[classfile.Opcode]Type{
	classfile.OpIreturn: Int,
	classfile.OpLreturn: Long,
	classfile.OpFreturn: Float,
	classfile.OpDreturn: Double,
}

// stackEffect returns how many slots ins consumes and produces. Instructions
// whose effect depends on a descriptor or operand resolve it here.
func (r *run) stackEffect(ins *classfile.Instruction) (consume, produce int, err error) {
	info := ins.Op.Info()
	consume, produce = info.Pop, info.Push
	switch ins.Op {
	case classfile.OpGetstatic, classfile.OpPutstatic, classfile.OpGetfield, classfile.OpPutfield:
		_, ft, err := r.fieldRef(ins)
		if err != nil {
			return 0, 0, err
		}
		size := ft.Size()
		switch ins.Op {
		case classfile.OpGetstatic:
			return 0, size, nil
		case classfile.OpPutstatic:
			return size, 0, nil
		case classfile.OpGetfield:
			return 1, size, nil
		}
		return 1 + size, 0, nil
	case classfile.OpInvokevirtual, classfile.OpInvokespecial, classfile.OpInvokestatic,
		classfile.OpInvokeinterface, classfile.OpInvokedynamic:
		_, mt, err := r.methodRef(ins)
		if err != nil {
			return 0, 0, err
		}
		consume = mt.ArgumentSlots()
		if ins.Op != classfile.OpInvokestatic && ins.Op != classfile.OpInvokedynamic {
			consume++
		}
		return consume, mt.Return.Size(), nil
	case classfile.OpMultianewarray:
		return ins.Count, 1, nil
	}
	if consume == classfile.Variable || produce == classfile.Variable {
		return 0, 0, internalf("no stack effect for %s", ins)
	}
	return consume, produce, nil
}

// fieldRef reads a field reference operand.
func (r *run) fieldRef(ins *classfile.Instruction) (classfile.MemberRef, classfile.FieldType, error) {
	ref, err := r.pool.MemberRef(ins.Index)
	if err != nil {
		return ref, classfile.FieldType{}, wrapInternal(err, "%s", ins)
	}
	ft, err := classfile.ParseFieldType(ref.Descriptor)
	if err != nil {
		return ref, ft, wrapInternal(err, "%s", ins)
	}
	return ref, ft, nil
}

// methodRef reads a method reference or call site operand. For
// invokedynamic the reference has no owner.
func (r *run) methodRef(ins *classfile.Instruction) (classfile.MemberRef, classfile.MethodType, error) {
	var ref classfile.MemberRef
	var err error
	if ins.Op == classfile.OpInvokedynamic {
		ref.Tag = classfile.TagInvokeDynamic
		ref.Name, ref.Descriptor, err = r.pool.InvokeDynamic(ins.Index)
	} else {
		ref, err = r.pool.MemberRef(ins.Index)
	}
	if err != nil {
		return ref, classfile.MethodType{}, wrapInternal(err, "%s", ins)
	}
	mt, err := classfile.ParseMethodType(ref.Descriptor)
	if err != nil {
		return ref, mt, wrapInternal(err, "%s", ins)
	}
	return ref, mt, nil
}

// checkStackAccess rejects an instruction that would underflow or overflow
// the operand stack, before anything else looks at the frame.
func (r *run) checkStackAccess(ins *classfile.Instruction, f *Frame) error {
	consume, produce, err := r.stackEffect(ins)
	if err != nil {
		return err
	}
	used := f.Stack.SlotsUsed()
	if consume > used {
		return rejectf("cannot consume %d stack slots: only %d on the stack %s", consume, used, f.Stack)
	}
	if produce-consume+used > f.Stack.MaxStack() {
		return rejectf("cannot produce %d stack slots: only %d free on the stack %s",
			produce-consume, f.Stack.MaxStack()-used, f.Stack)
	}
	return nil
}
