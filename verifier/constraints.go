package verifier

import (
	"strconv"
	"strings"

	"github.com/chazu/bcverify/classfile"
)

// rule is the constraint check or the transfer function of one instruction
// family. Constraint rules only read the frame; execution rules mutate it.
type rule func(r *run, ins *classfile.Instruction, f *Frame) error

// check validates ins against the frame it is about to run on.
func (r *run) check(ins *classfile.Instruction, f *Frame) error {
	check := constraintRule(ins.Op)
	if check == nil {
		return internalf("no constraint rule for %s", ins)
	}
	if err := r.checkStackAccess(ins, f); err != nil {
		return err
	}
	return check(r, ins, f)
}

// constraintRule dispatches on the opcode. Every opcode the decoder can
// produce has a rule; wide never reaches here.
func constraintRule(op classfile.Opcode) rule {
	switch {
	case op == classfile.OpNop, op == classfile.OpAconstNull,
		op >= classfile.OpIconstM1 && op <= classfile.OpSipush,
		op.IsGoto(), op.IsJsr():
		return checkNothing
	case op == classfile.OpLdc, op == classfile.OpLdcW, op == classfile.OpLdc2W:
		return checkNothing // operand tags are checked before data flow
	case op.IsLocalLoad():
		return checkLoad
	case op.IsLocalStore():
		return checkStore
	case op >= classfile.OpIaload && op <= classfile.OpSaload:
		return checkArrayLoad
	case op >= classfile.OpIastore && op <= classfile.OpSastore:
		return checkArrayStore
	case op >= classfile.OpPop && op <= classfile.OpSwap:
		return checkStackOp
	case op == classfile.OpIinc:
		return checkIinc
	case op.IsConditional():
		return checkConditional
	case op == classfile.OpRet:
		return checkRet
	case op.IsSwitch():
		return checkSwitch
	case op.IsReturn():
		return checkReturn
	case op >= classfile.OpGetstatic && op <= classfile.OpPutfield:
		return checkField
	case op.IsInvoke():
		return checkInvoke
	}

	if _, ok := arithmetic[op]; ok {
		return checkArithmetic
	}

	switch op {
	case classfile.OpNew:
		return checkNew
	case classfile.OpNewarray, classfile.OpAnewarray:
		return checkNewArray
	case classfile.OpMultianewarray:
		return checkMultiANewArray
	case classfile.OpArraylength:
		return checkArrayLength
	case classfile.OpAthrow:
		return checkAthrow
	case classfile.OpCheckcast, classfile.OpInstanceof:
		return checkTypeTest
	case classfile.OpMonitorenter, classfile.OpMonitorexit:
		return checkMonitor
	}
	return nil
}

// operand returns the stack entry depth positions below the top. The stack
// access check counts slots; this guards against entries of the wrong size
// leaving fewer entries than slots.
func operand(f *Frame, depth int) (Type, error) {
	if depth >= f.Stack.Size() {
		return Unknown, rejectf("expected at least %d values on the stack %s", depth+1, f.Stack)
	}
	return f.Stack.Peek(depth), nil
}

func position(depth int) string {
	switch depth {
	case 0:
		return "stack top"
	case 1:
		return "stack next-to-top"
	}
	return "stack entry " + strconv.Itoa(depth) + " below the top"
}

// expect rejects unless the entry at depth is exactly want.
func expect(ins *classfile.Instruction, f *Frame, depth int, want Type) error {
	got, err := operand(f, depth)
	if err != nil {
		return err
	}
	if got != want {
		return rejectf("%s: %s should be %s but is %s", ins, position(depth), want, got)
	}
	return nil
}

// expectSize rejects unless the entry at depth occupies size slots.
func expectSize(ins *classfile.Instruction, f *Frame, depth, size int) (Type, error) {
	got, err := operand(f, depth)
	if err != nil {
		return got, err
	}
	if got.Size() != size {
		return got, rejectf("%s: %s should occupy %d slot(s) but is %s", ins, position(depth), size, got)
	}
	return got, nil
}

// expectReference rejects unless the entry at depth is an initialized
// reference or null.
func expectReference(ins *classfile.Instruction, f *Frame, depth int) (Type, error) {
	got, err := operand(f, depth)
	if err != nil {
		return got, err
	}
	if got.IsUninitialized() {
		return got, rejectf("%s: %s is the uninitialized object %s", ins, position(depth), got)
	}
	if !got.IsReference() {
		return got, rejectf("%s: %s should be a reference but is %s", ins, position(depth), got)
	}
	return got, nil
}

// checkAssignable rejects a value that may not be stored where want is
// declared.
func (r *run) checkAssignable(ins *classfile.Instruction, value, want Type, what string) error {
	if want.Kind != KindReference {
		if value != want {
			return rejectf("%s: %s should be %s but is %s", ins, what, want, value)
		}
		return nil
	}
	if value.IsUninitialized() {
		return rejectf("%s: %s is the uninitialized object %s", ins, what, value)
	}
	ok, err := r.lat.assignable(value, want)
	if err != nil {
		return err
	}
	if !ok {
		return rejectf("%s: %s of type %s is not assignable to %s", ins, what, value, want)
	}
	return nil
}

func checkNothing(*run, *classfile.Instruction, *Frame) error {
	return nil
}

// ---------------------------------------------------------------------------
// Locals
// ---------------------------------------------------------------------------

func checkLocalIndex(ins *classfile.Instruction, f *Frame, size int) error {
	if ins.Index < 0 || ins.Index+size > f.Locals.MaxLocals() {
		return rejectf("%s: local %d is out of range for max_locals %d", ins, ins.Index+size-1, f.Locals.MaxLocals())
	}
	return nil
}

func checkLoad(_ *run, ins *classfile.Instruction, f *Frame) error {
	kind := localKind(ins.Op)
	size := kindSize(kind)
	if err := checkLocalIndex(ins, f, size); err != nil {
		return err
	}
	v := f.Locals.Get(ins.Index)
	if v == Unknown {
		return rejectf("%s: local %d holds no usable value", ins, ins.Index)
	}
	if size == 2 && f.Locals.Get(ins.Index+1) != Unknown {
		return rejectf("%s: local %d, the second half of a %s, holds %s", ins, ins.Index+1, v, f.Locals.Get(ins.Index+1))
	}
	if kind == KindReference {
		if !v.isRefLike() {
			return rejectf("%s: local %d should hold a reference but holds %s", ins, ins.Index, v)
		}
		return nil
	}
	if v.Kind != kind {
		return rejectf("%s: local %d should hold %s but holds %s", ins, ins.Index, kind, v)
	}
	return nil
}

func checkStore(_ *run, ins *classfile.Instruction, f *Frame) error {
	kind := localKind(ins.Op)
	if err := checkLocalIndex(ins, f, kindSize(kind)); err != nil {
		return err
	}
	top, err := operand(f, 0)
	if err != nil {
		return err
	}
	if kind == KindReference {
		if !top.isRefLike() && top.Kind != KindReturnAddress {
			return rejectf("%s: stack top should be a reference or return address but is %s", ins, top)
		}
		return nil
	}
	if top.Kind != kind {
		return rejectf("%s: stack top should be %s but is %s", ins, kind, top)
	}
	return nil
}

func checkIinc(_ *run, ins *classfile.Instruction, f *Frame) error {
	if err := checkLocalIndex(ins, f, 1); err != nil {
		return err
	}
	if v := f.Locals.Get(ins.Index); v != Int {
		return rejectf("%s: local %d should hold int but holds %s", ins, ins.Index, v)
	}
	return nil
}

func checkRet(_ *run, ins *classfile.Instruction, f *Frame) error {
	if err := checkLocalIndex(ins, f, 1); err != nil {
		return err
	}
	if v := f.Locals.Get(ins.Index); v.Kind != KindReturnAddress {
		return rejectf("%s: local %d should hold a return address but holds %s", ins, ins.Index, v)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

// checkArrayRef validates the array operand of an element access and
// returns its component type; ok is false for null.
func checkArrayRef(ins *classfile.Instruction, f *Frame, depth int, acc arrayOp) (classfile.FieldType, bool, error) {
	arr, err := operand(f, depth)
	if err != nil {
		return classfile.FieldType{}, false, err
	}
	if arr.Kind == KindNull {
		return classfile.FieldType{}, false, nil
	}
	comp, ok := arr.component()
	if !ok {
		return comp, false, rejectf("%s: %s should be an array but is %s", ins, position(depth), arr)
	}
	if acc.elems == "" {
		if !comp.IsReference() {
			return comp, false, rejectf("%s: %s should be an array of references but is %s", ins, position(depth), arr)
		}
		return comp, true, nil
	}
	if comp.Dims > 0 || !strings.Contains(acc.elems, comp.Descriptor()) {
		return comp, false, rejectf("%s: %s should be an array of %s but is %s", ins, position(depth), elemNames(acc.elems), arr)
	}
	return comp, true, nil
}

func elemNames(elems string) string {
	names := make([]string, 0, len(elems))
	for _, c := range elems {
		ft, _ := classfile.ParseFieldType(string(c))
		names = append(names, ft.String())
	}
	return strings.Join(names, " or ")
}

func checkArrayLoad(_ *run, ins *classfile.Instruction, f *Frame) error {
	if err := expect(ins, f, 0, Int); err != nil {
		return err
	}
	_, _, err := checkArrayRef(ins, f, 1, arrayLoads[ins.Op])
	return err
}

func checkArrayStore(r *run, ins *classfile.Instruction, f *Frame) error {
	acc := arrayStores[ins.Op]
	value, err := operand(f, 0)
	if err != nil {
		return err
	}
	if acc.elems == "" {
		if _, err := expectReference(ins, f, 0); err != nil {
			return err
		}
	} else if value != acc.value {
		return rejectf("%s: stack top should be %s but is %s", ins, acc.value, value)
	}
	if err := expect(ins, f, 1, Int); err != nil {
		return err
	}
	// aastore values are checked against the component at run time.
	_, _, err = checkArrayRef(ins, f, 2, acc)
	return err
}

func checkArrayLength(_ *run, ins *classfile.Instruction, f *Frame) error {
	arr, err := operand(f, 0)
	if err != nil {
		return err
	}
	if arr.Kind != KindNull && !arr.IsArray() {
		return rejectf("%s: stack top should be an array but is %s", ins, arr)
	}
	return nil
}

func checkNewArray(r *run, ins *classfile.Instruction, f *Frame) error {
	if err := expect(ins, f, 0, Int); err != nil {
		return err
	}
	if ins.Op == classfile.OpAnewarray {
		name, err := r.pool.ClassName(ins.Index)
		if err != nil {
			return wrapInternal(err, "%s", ins)
		}
		return r.checkClassAccess(ins, name)
	}
	return nil
}

func checkMultiANewArray(r *run, ins *classfile.Instruction, f *Frame) error {
	for i := 0; i < ins.Count; i++ {
		if err := expect(ins, f, i, Int); err != nil {
			return err
		}
	}
	name, err := r.pool.ClassName(ins.Index)
	if err != nil {
		return wrapInternal(err, "%s", ins)
	}
	return r.checkClassAccess(ins, name)
}

// ---------------------------------------------------------------------------
// Stack manipulation
// ---------------------------------------------------------------------------

// dup2x2Form classifies the top of the stack for dup2_x2 by entry sizes,
// top first: 1,1,1,1 is form 1; 2,1,1 form 2; 1,1,2 form 3; 2,2 form 4.
func dup2x2Form(f *Frame) int {
	size := func(i int) int {
		if i >= f.Stack.Size() {
			return 0
		}
		return f.Stack.Peek(i).Size()
	}
	switch {
	case size(0) == 2 && size(1) == 2:
		return 4
	case size(0) == 2 && size(1) == 1 && size(2) == 1:
		return 2
	case size(0) == 1 && size(1) == 1 && size(2) == 2:
		return 3
	case size(0) == 1 && size(1) == 1 && size(2) == 1 && size(3) == 1:
		return 1
	}
	return 0
}

func checkStackOp(_ *run, ins *classfile.Instruction, f *Frame) error {
	switch ins.Op {
	case classfile.OpPop, classfile.OpDup:
		_, err := expectSize(ins, f, 0, 1)
		return err

	case classfile.OpPop2, classfile.OpDup2:
		top, err := operand(f, 0)
		if err != nil || top.Size() == 2 {
			return err
		}
		_, err = expectSize(ins, f, 1, 1)
		return err

	case classfile.OpDupX1, classfile.OpSwap:
		if _, err := expectSize(ins, f, 0, 1); err != nil {
			return err
		}
		_, err := expectSize(ins, f, 1, 1)
		return err

	case classfile.OpDupX2:
		if _, err := expectSize(ins, f, 0, 1); err != nil {
			return err
		}
		next, err := operand(f, 1)
		if err != nil || next.Size() == 2 {
			return err
		}
		_, err = expectSize(ins, f, 2, 1)
		return err

	case classfile.OpDup2X1:
		top, err := operand(f, 0)
		if err != nil {
			return err
		}
		if top.Size() == 2 {
			_, err = expectSize(ins, f, 1, 1)
			return err
		}
		if _, err := expectSize(ins, f, 1, 1); err != nil {
			return err
		}
		_, err = expectSize(ins, f, 2, 1)
		return err

	case classfile.OpDup2X2:
		if dup2x2Form(f) == 0 {
			return rejectf("%s: the stack %s does not match any of the four forms", ins, f.Stack)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Arithmetic and control transfer
// ---------------------------------------------------------------------------

func checkArithmetic(_ *run, ins *classfile.Instruction, f *Frame) error {
	a := arithmetic[ins.Op]
	if err := expect(ins, f, 0, a.top); err != nil {
		return err
	}
	if a.next != Unknown {
		return expect(ins, f, 1, a.next)
	}
	return nil
}

func checkConditional(_ *run, ins *classfile.Instruction, f *Frame) error {
	switch op := ins.Op; {
	case op >= classfile.OpIfeq && op <= classfile.OpIfle:
		return expect(ins, f, 0, Int)
	case op >= classfile.OpIfIcmpeq && op <= classfile.OpIfIcmple:
		if err := expect(ins, f, 0, Int); err != nil {
			return err
		}
		return expect(ins, f, 1, Int)
	case op == classfile.OpIfAcmpeq, op == classfile.OpIfAcmpne:
		for depth := 0; depth < 2; depth++ {
			v, err := operand(f, depth)
			if err != nil {
				return err
			}
			if !v.isRefLike() {
				return rejectf("%s: %s should be a reference but is %s", ins, position(depth), v)
			}
		}
		return nil
	}
	_, err := expectReference(ins, f, 0)
	return err
}

func checkSwitch(_ *run, ins *classfile.Instruction, f *Frame) error {
	return expect(ins, f, 0, Int)
}

func checkReturn(r *run, ins *classfile.Instruction, f *Frame) error {
	ret := r.desc.Return
	if ins.Op == classfile.OpReturn {
		if ret.Kind != classfile.KindVoid {
			return rejectf("%s in a method returning %s", ins, ret)
		}
		if r.method.IsConstructor() && f.ThisUninitialized {
			return rejectf("%s: leaving a constructor that itself did not call a constructor", ins)
		}
		return nil
	}
	if ret.Kind == classfile.KindVoid {
		return rejectf("%s in a void method", ins)
	}
	want := FromFieldType(ret)
	if ins.Op == classfile.OpAreturn {
		if want.Kind != KindReference {
			return rejectf("%s in a method returning %s", ins, ret)
		}
		top, err := expectReference(ins, f, 0)
		if err != nil {
			return err
		}
		return r.checkAssignable(ins, top, want, "returned value")
	}
	if returnTypes[ins.Op] != want {
		return rejectf("%s in a method returning %s", ins, ret)
	}
	return expect(ins, f, 0, want)
}

// ---------------------------------------------------------------------------
// Objects
// ---------------------------------------------------------------------------

func checkField(r *run, ins *classfile.Instruction, f *Frame) error {
	rf, err := r.resolveField(ins)
	if err != nil {
		return err
	}
	static := ins.Op == classfile.OpGetstatic || ins.Op == classfile.OpPutstatic
	put := ins.Op == classfile.OpPutstatic || ins.Op == classfile.OpPutfield
	if rf.field.Access.Has(classfile.AccStatic) != static {
		if static {
			return rejectf("%s: field %s is not static", ins, rf.ref)
		}
		return rejectf("%s: field %s is static", ins, rf.ref)
	}

	if put {
		value, err := operand(f, 0)
		if err != nil {
			return err
		}
		if err := r.checkAssignable(ins, value, rf.typ, "stored value"); err != nil {
			return err
		}
		if rf.field.Access.Has(classfile.AccFinal) && rf.decl.Name != r.class.Name {
			return rejectf("%s: final field %s may only be assigned in %s", ins, rf.ref, rf.decl.Name)
		}
		if ins.Op == classfile.OpPutstatic && rf.decl.IsInterface() && r.method.Name != classfile.InitializerName {
			return rejectf("%s: interface field %s may only be assigned in %s", ins, rf.ref, classfile.InitializerName)
		}
	}
	if static {
		return nil
	}

	depth := 0
	if put {
		depth = 1
	}
	obj, err := operand(f, depth)
	if err != nil {
		return err
	}
	switch {
	case obj.Kind == KindNull:
	case obj.IsUninitializedThis() && ins.Op == classfile.OpPutfield && rf.decl.Name == r.class.Name:
		// A constructor may assign its own fields before calling super.
	case obj.IsClass():
		ok, err := r.lat.assignable(obj, Reference(rf.ref.Owner))
		if err != nil {
			return err
		}
		if !ok {
			return rejectf("%s: %s is not a %s", ins, obj, rf.ref.Owner)
		}
	default:
		return rejectf("%s: %s should be an initialized object but is %s", ins, position(depth), obj)
	}
	return r.checkProtectedReceiver(ins, rf.decl, rf.field.Access, rf.field.Name, obj)
}

func checkInvoke(r *run, ins *classfile.Instruction, f *Frame) error {
	rm, err := r.resolveMethod(ins)
	if err != nil {
		return err
	}
	args := rm.typ.Args
	for i := range args {
		depth := len(args) - 1 - i
		got, err := operand(f, depth)
		if err != nil {
			return err
		}
		if err := r.checkAssignable(ins, got, FromFieldType(args[i]), "argument "+strconv.Itoa(i)); err != nil {
			return err
		}
	}
	if ins.Op == classfile.OpInvokedynamic {
		return nil
	}

	m := rm.method
	if ins.Op == classfile.OpInvokestatic {
		if !m.IsStatic() {
			return rejectf("%s: %s.%s is not static", ins, rm.decl.Name, m)
		}
		return nil
	}
	if m.IsStatic() {
		return rejectf("%s: %s.%s is static", ins, rm.decl.Name, m)
	}
	if ins.Op == classfile.OpInvokeinterface && ins.Count != 1+rm.typ.ArgumentSlots() {
		return rejectf("%s: count %d does not match the %d argument slots plus receiver", ins, ins.Count, rm.typ.ArgumentSlots())
	}

	recv, err := operand(f, len(args))
	if err != nil {
		return err
	}
	if rm.ref.Name == classfile.ConstructorName {
		return r.checkConstructorCall(ins, rm, recv)
	}
	if recv.IsUninitialized() {
		return rejectf("%s: invoking %s on the uninitialized object %s", ins, rm.ref, recv)
	}
	if !recv.IsReference() {
		return rejectf("%s: receiver should be a reference but is %s", ins, recv)
	}
	if recv.Kind == KindNull {
		return nil
	}
	if ins.Op == classfile.OpInvokespecial {
		ok, err := r.lat.assignable(recv, Reference(r.class.Name))
		if err != nil {
			return err
		}
		if !ok {
			return rejectf("%s: invokespecial receiver %s is not %s or a subclass of it", ins, recv, r.class.Name)
		}
	}
	ok, err := r.lat.assignable(recv, Reference(rm.ref.Owner))
	if err != nil {
		return err
	}
	if !ok {
		return rejectf("%s: receiver %s is not assignable to %s", ins, recv, rm.ref.Owner)
	}
	return r.checkProtectedReceiver(ins, rm.decl, m.Access, m.Name, recv)
}

func (r *run) checkConstructorCall(ins *classfile.Instruction, rm *resolvedMethod, recv Type) error {
	if !recv.IsUninitialized() {
		return rejectf("%s: possibly initializing object twice: receiver is %s", ins, recv)
	}
	if recv.IsUninitializedThis() {
		if rm.ref.Owner != r.class.Name && rm.ref.Owner != r.class.Super {
			return rejectf("%s: the receiver of a constructor must be initialized by %s or %s, not %s",
				ins, r.class.Name, r.class.Super, rm.ref.Owner)
		}
		return nil
	}
	if rm.ref.Owner != recv.Name {
		return rejectf("%s: constructor of %s called on an object allocated as %s", ins, rm.ref.Owner, recv.Name)
	}
	return nil
}

func checkNew(r *run, ins *classfile.Instruction, _ *Frame) error {
	name, err := r.pool.ClassName(ins.Index)
	if err != nil {
		return wrapInternal(err, "%s", ins)
	}
	if name[0] == '[' {
		return rejectf("%s: cannot instantiate the array type %s", ins, name)
	}
	if err := r.checkClassAccess(ins, name); err != nil {
		return err
	}
	c, err := r.loadClass(name)
	if err != nil {
		return err
	}
	if c.IsInterface() {
		return rejectf("%s: cannot instantiate the interface %s", ins, name)
	}
	return nil
}

func checkAthrow(r *run, ins *classfile.Instruction, f *Frame) error {
	top, err := expectReference(ins, f, 0)
	if err != nil || top.Kind == KindNull {
		return err
	}
	if !top.IsClass() {
		return rejectf("%s: cannot throw %s", ins, top)
	}
	ok, err := r.lat.isSubclass(top.Name, classfile.ThrowableClass)
	if err != nil {
		return err
	}
	if !ok {
		return rejectf("%s: %s is not a subclass of %s", ins, top, classfile.ThrowableClass)
	}
	return nil
}

func checkTypeTest(r *run, ins *classfile.Instruction, f *Frame) error {
	if _, err := expectReference(ins, f, 0); err != nil {
		return err
	}
	name, err := r.pool.ClassName(ins.Index)
	if err != nil {
		return wrapInternal(err, "%s", ins)
	}
	return r.checkClassAccess(ins, name)
}

func checkMonitor(_ *run, ins *classfile.Instruction, f *Frame) error {
	top, err := operand(f, 0)
	if err != nil {
		return err
	}
	if !top.isRefLike() {
		return rejectf("%s: stack top should be a reference but is %s", ins, top)
	}
	return nil
}
