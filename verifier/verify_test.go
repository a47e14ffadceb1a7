package verifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/chazu/bcverify/classfile"
)

type code = func(b *classfile.CodeBuilder, p *classfile.ConstantPool)

type methodCase struct {
	name     string
	method   string
	desc     string
	access   classfile.AccessFlags
	stack    int
	locals   int
	code     code
	handlers []handlerSpec
	want     string // message substring, for rejections and NotYet
}

var acceptedMethods = []methodCase{
	{
		name: "int arithmetic", method: "add", desc: "(II)I", access: pubStatic, stack: 2, locals: 2,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpIload0)
			b.Emit(classfile.OpIload1)
			b.Emit(classfile.OpIadd)
			b.Emit(classfile.OpIreturn)
		},
	},
	{
		name: "counting loop", method: "sum", desc: "(I)I", access: pubStatic, stack: 2, locals: 2,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpIconst0)
			b.Emit(classfile.OpIstore1)
			b.Mark("loop")
			b.Emit(classfile.OpIload0)
			b.EmitBranch(classfile.OpIfle, "done")
			b.Emit(classfile.OpIload1)
			b.Emit(classfile.OpIload0)
			b.Emit(classfile.OpIadd)
			b.Emit(classfile.OpIstore1)
			b.EmitIinc(0, -1)
			b.EmitBranch(classfile.OpGoto, "loop")
			b.Mark("done")
			b.Emit(classfile.OpIload1)
			b.Emit(classfile.OpIreturn)
		},
	},
	{
		name: "long arithmetic", method: "addLong", desc: "(JJ)J", access: pubStatic, stack: 4, locals: 4,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpLload0)
			b.Emit(classfile.OpLload2)
			b.Emit(classfile.OpLadd)
			b.Emit(classfile.OpLreturn)
		},
	},
	{
		name: "constructor calls super", method: "<init>", desc: "()V", access: pub, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpInvokespecial, p.AddMethodref(classfile.ObjectClass, "<init>", "()V"))
			b.Emit(classfile.OpReturn)
		},
	},
	{
		name: "constructor assigns own field first", method: "<init>", desc: "()V", access: pub, stack: 2, locals: 1,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Emit(classfile.OpAload0)
			b.Emit(classfile.OpIconst5)
			b.EmitConst(classfile.OpPutfield, p.AddFieldref("app/Main", "size", "I"))
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpInvokespecial, p.AddMethodref(classfile.ObjectClass, "<init>", "()V"))
			b.Emit(classfile.OpReturn)
		},
	},
	{
		name: "allocate and initialize", method: "make", desc: "()Lzoo/Animal;", access: pubStatic, stack: 2, locals: 0,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.EmitConst(classfile.OpNew, p.AddClass("zoo/Dog"))
			b.Emit(classfile.OpDup)
			b.EmitConst(classfile.OpInvokespecial, p.AddMethodref("zoo/Dog", "<init>", "()V"))
			b.Emit(classfile.OpAreturn)
		},
	},
	{
		name: "constructor call initializes every alias", method: "alias", desc: "()Lzoo/Animal;", access: pubStatic, stack: 2, locals: 1,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.EmitConst(classfile.OpNew, p.AddClass("zoo/Dog"))
			b.Emit(classfile.OpDup)
			b.Emit(classfile.OpAstore0)
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpInvokespecial, p.AddMethodref("zoo/Dog", "<init>", "()V"))
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpInvokevirtual, p.AddMethodref("zoo/Animal", "speak", "()V"))
			b.Emit(classfile.OpAreturn)
		},
	},
	{
		name: "constructor calls super on both branches", method: "<init>", desc: "(I)V", access: pub, stack: 1, locals: 2,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			super := p.AddMethodref(classfile.ObjectClass, "<init>", "()V")
			b.Emit(classfile.OpIload1)
			b.EmitBranch(classfile.OpIfeq, "other")
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpInvokespecial, super)
			b.EmitBranch(classfile.OpGoto, "done")
			b.Mark("other")
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpInvokespecial, super)
			b.Mark("done")
			b.Emit(classfile.OpReturn)
		},
	},
	{
		name: "branches join to the common superclass", method: "pick", desc: "(Z)Lzoo/Animal;", access: pubStatic, stack: 2, locals: 1,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Emit(classfile.OpIload0)
			b.EmitBranch(classfile.OpIfeq, "cat")
			b.EmitConst(classfile.OpNew, p.AddClass("zoo/Dog"))
			b.Emit(classfile.OpDup)
			b.EmitConst(classfile.OpInvokespecial, p.AddMethodref("zoo/Dog", "<init>", "()V"))
			b.EmitBranch(classfile.OpGoto, "done")
			b.Mark("cat")
			b.EmitConst(classfile.OpNew, p.AddClass("zoo/Cat"))
			b.Emit(classfile.OpDup)
			b.EmitConst(classfile.OpInvokespecial, p.AddMethodref("zoo/Cat", "<init>", "()V"))
			b.Mark("done")
			b.Emit(classfile.OpAreturn)
		},
	},
	{
		name: "exception handler", method: "guarded", desc: "()V", access: pubStatic, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Mark("start")
			b.EmitConst(classfile.OpInvokestatic, p.AddMethodref("zoo/Animal", "create", "()Lzoo/Animal;"))
			b.Emit(classfile.OpPop)
			b.Mark("end")
			b.Emit(classfile.OpReturn)
			b.Mark("handler")
			b.Emit(classfile.OpAstore0)
			b.Emit(classfile.OpReturn)
		},
		handlers: []handlerSpec{{start: "start", end: "end", target: "handler", catch: "java/lang/Exception"}},
	},
	{
		name: "subroutine", method: "withFinally", desc: "()I", access: pubStatic, stack: 1, locals: 2,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpIconst1)
			b.Emit(classfile.OpIstore0)
			b.EmitBranch(classfile.OpJsr, "sub")
			b.Emit(classfile.OpIload0)
			b.Emit(classfile.OpIreturn)
			b.Mark("sub")
			b.Emit(classfile.OpAstore1)
			b.EmitIinc(0, 1)
			b.EmitLocal(classfile.OpRet, 1)
		},
	},
	{
		name: "static field and virtual call", method: "hello", desc: "()V", access: pubStatic, stack: 2, locals: 0,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.EmitConst(classfile.OpGetstatic, p.AddFieldref("java/lang/System", "out", "Ljava/io/PrintStream;"))
			b.EmitConst(classfile.OpLdc, p.AddString("hello"))
			b.EmitConst(classfile.OpInvokevirtual, p.AddMethodref("java/io/PrintStream", "println", "(Ljava/lang/String;)V"))
			b.Emit(classfile.OpReturn)
		},
	},
	{
		name: "primitive array", method: "array", desc: "()I", access: pubStatic, stack: 4, locals: 0,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpIconst3)
			b.EmitNewArray(classfile.ArrayInt)
			b.Emit(classfile.OpDup)
			b.Emit(classfile.OpIconst0)
			b.Emit(classfile.OpIconst5)
			b.Emit(classfile.OpIastore)
			b.Emit(classfile.OpIconst0)
			b.Emit(classfile.OpIaload)
			b.Emit(classfile.OpIreturn)
		},
	},
	{
		name: "reference array", method: "names", desc: "()Ljava/lang/String;", access: pubStatic, stack: 4, locals: 1,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Emit(classfile.OpIconst1)
			b.EmitConst(classfile.OpAnewarray, p.AddClass(classfile.StringClass))
			b.Emit(classfile.OpAstore0)
			b.Emit(classfile.OpAload0)
			b.Emit(classfile.OpIconst0)
			b.EmitConst(classfile.OpLdc, p.AddString("rex"))
			b.Emit(classfile.OpAastore)
			b.Emit(classfile.OpAload0)
			b.Emit(classfile.OpIconst0)
			b.Emit(classfile.OpAaload)
			b.Emit(classfile.OpAreturn)
		},
	},
	{
		name: "stack shuffling with wide values", method: "shuffle", desc: "(JI)J", access: pubStatic, stack: 5, locals: 3,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpLload0)
			b.Emit(classfile.OpIload2)
			b.Emit(classfile.OpDupX2)
			b.Emit(classfile.OpPop)
			b.Emit(classfile.OpDup2X1)
			b.Emit(classfile.OpPop2)
			b.Emit(classfile.OpPop)
			b.Emit(classfile.OpLreturn)
		},
	},
	{
		name: "interface call", method: "describe", desc: "(Lzoo/Named;)Ljava/lang/String;", access: pubStatic, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Emit(classfile.OpAload0)
			b.EmitInvokeInterface(p.AddInterfaceMethodref("zoo/Named", "label", "()Ljava/lang/String;"), 1)
			b.Emit(classfile.OpAreturn)
		},
	},
	{
		name: "table switch", method: "classify", desc: "(I)I", access: pubStatic, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpIload0)
			b.EmitTableSwitch(0, "other", []string{"zero", "one"})
			b.Mark("zero")
			b.Emit(classfile.OpIconst1)
			b.Emit(classfile.OpIreturn)
			b.Mark("one")
			b.Emit(classfile.OpIconst2)
			b.Emit(classfile.OpIreturn)
			b.Mark("other")
			b.Emit(classfile.OpIconst0)
			b.Emit(classfile.OpIreturn)
		},
	},
	{
		name: "null flows into a reference", method: "maybe", desc: "(Z)Lzoo/Animal;", access: pubStatic, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Emit(classfile.OpIload0)
			b.EmitBranch(classfile.OpIfeq, "none")
			b.EmitConst(classfile.OpInvokestatic, p.AddMethodref("zoo/Animal", "create", "()Lzoo/Animal;"))
			b.Emit(classfile.OpAreturn)
			b.Mark("none")
			b.Emit(classfile.OpAconstNull)
			b.EmitConst(classfile.OpCheckcast, p.AddClass("zoo/Dog"))
			b.Emit(classfile.OpAreturn)
		},
	},
}

func TestVerifyAccepts(t *testing.T) {
	for _, tc := range acceptedMethods {
		t.Run(tc.name, func(t *testing.T) {
			s := newSubject(t, "app/Main", classfile.ObjectClass)
			m := s.method(tc.method, tc.desc, tc.access, tc.stack, tc.locals, tc.code, tc.handlers...)
			wantAccepted(t, s.verify(m))
		})
	}
}

var rejectedMethods = []methodCase{
	{
		name: "stack overflow", method: "overflow", desc: "()I", access: pubStatic, stack: 1, locals: 0,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpIconst1)
			b.Emit(classfile.OpIconst2)
			b.Emit(classfile.OpIadd)
			b.Emit(classfile.OpIreturn)
		},
		want: "cannot produce 1 stack slots",
	},
	{
		name: "stack underflow", method: "underflow", desc: "()I", access: pubStatic, stack: 2, locals: 0,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpIadd)
			b.Emit(classfile.OpIreturn)
		},
		want: "cannot consume 2 stack slots",
	},
	{
		name: "operand type", method: "mismatch", desc: "()I", access: pubStatic, stack: 2, locals: 0,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpFconst0)
			b.Emit(classfile.OpIconst1)
			b.Emit(classfile.OpIadd)
			b.Emit(classfile.OpIreturn)
		},
		want: "stack next-to-top should be int but is float",
	},
	{
		name: "return kind", method: "wrongReturn", desc: "()I", access: pubStatic, stack: 1, locals: 0,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpFconst0)
			b.Emit(classfile.OpFreturn)
		},
		want: "freturn in a method returning I",
	},
	{
		name: "bare return from a value method", method: "bare", desc: "()I", access: pubStatic, stack: 0, locals: 0,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpReturn)
		},
		want: "return in a method returning I",
	},
	{
		name: "returned reference not assignable", method: "notAnimal", desc: "()Lzoo/Animal;", access: pubStatic, stack: 1, locals: 0,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.EmitConst(classfile.OpLdc, p.AddString("cat"))
			b.Emit(classfile.OpAreturn)
		},
		want: "is not assignable to zoo/Animal",
	},
	{
		name: "constructor never calls super", method: "<init>", desc: "()V", access: pub, stack: 0, locals: 1,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpReturn)
		},
		want: "leaving a constructor that itself did not call a constructor",
	},
	{
		name: "constructor initializes twice", method: "<init>", desc: "()V", access: pub, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			super := p.AddMethodref(classfile.ObjectClass, "<init>", "()V")
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpInvokespecial, super)
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpInvokespecial, super)
			b.Emit(classfile.OpReturn)
		},
		want: "possibly initializing object twice",
	},
	{
		name: "constructor skips super on one branch", method: "<init>", desc: "(I)V", access: pub, stack: 1, locals: 2,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Emit(classfile.OpIload1)
			b.EmitBranch(classfile.OpIfeq, "skip")
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpInvokespecial, p.AddMethodref(classfile.ObjectClass, "<init>", "()V"))
			b.Emit(classfile.OpReturn)
			b.Mark("skip")
			b.Emit(classfile.OpNop)
			b.Emit(classfile.OpNop)
			b.Emit(classfile.OpNop)
			b.Emit(classfile.OpReturn)
		},
		want: "leaving a constructor that itself did not call a constructor",
	},
	{
		name: "constructor branches meet before returning", method: "<init>", desc: "(I)V", access: pub, stack: 1, locals: 2,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Emit(classfile.OpIload1)
			b.EmitBranch(classfile.OpIfeq, "done")
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpInvokespecial, p.AddMethodref(classfile.ObjectClass, "<init>", "()V"))
			b.Mark("done")
			b.Emit(classfile.OpReturn)
		},
		want: "leaving a constructor that itself did not call a constructor",
	},
	{
		name: "call on uninitialized object", method: "early", desc: "()V", access: pubStatic, stack: 2, locals: 0,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.EmitConst(classfile.OpNew, p.AddClass("zoo/Dog"))
			b.Emit(classfile.OpDup)
			b.EmitConst(classfile.OpInvokevirtual, p.AddMethodref("zoo/Animal", "speak", "()V"))
			b.Emit(classfile.OpPop)
			b.Emit(classfile.OpReturn)
		},
		want: "on the uninitialized object uninitialized(zoo/Dog@0)",
	},
	{
		name: "constructor of the wrong class", method: "mixed", desc: "()V", access: pubStatic, stack: 2, locals: 0,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.EmitConst(classfile.OpNew, p.AddClass("zoo/Dog"))
			b.EmitConst(classfile.OpInvokespecial, p.AddMethodref("zoo/Cat", "<init>", "()V"))
			b.Emit(classfile.OpReturn)
		},
		want: "constructor of zoo/Cat called on an object allocated as zoo/Dog",
	},
	{
		name: "unset local", method: "unset", desc: "()I", access: pubStatic, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpIload0)
			b.Emit(classfile.OpIreturn)
		},
		want: "local 0 holds no usable value",
	},
	{
		name: "int local read as reference", method: "aloadInt", desc: "(I)V", access: pubStatic, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpAload0)
			b.Emit(classfile.OpPop)
			b.Emit(classfile.OpReturn)
		},
		want: "local 0 should hold a reference but holds int",
	},
	{
		name: "incompatible stacks meet", method: "merge", desc: "(Z)I", access: pubStatic, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpIload0)
			b.EmitBranch(classfile.OpIfeq, "float")
			b.Emit(classfile.OpIconst1)
			b.EmitBranch(classfile.OpGoto, "join")
			b.Mark("float")
			b.Emit(classfile.OpFconst0)
			b.Mark("join")
			b.Emit(classfile.OpPop)
			b.Emit(classfile.OpIconst0)
			b.Emit(classfile.OpIreturn)
		},
		want: "cannot merge operand stacks",
	},
	{
		name: "private method of another class", method: "peek", desc: "(Lzoo/Animal;)V", access: pubStatic, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpInvokevirtual, p.AddMethodref("zoo/Animal", "secret", "()V"))
			b.Emit(classfile.OpReturn)
		},
		want: "is private and not accessible from app/Main",
	},
	{
		name: "final field of another class", method: "rename", desc: "()V", access: pubStatic, stack: 1, locals: 0,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.EmitConst(classfile.OpLdc, p.AddString("plants"))
			b.EmitConst(classfile.OpPutstatic, p.AddFieldref("zoo/Animal", "KINGDOM", "Ljava/lang/String;"))
			b.Emit(classfile.OpReturn)
		},
		want: "final field",
	},
	{
		name: "static field read as instance field", method: "census", desc: "(Lzoo/Animal;)I", access: pubStatic, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpGetfield, p.AddFieldref("zoo/Animal", "count", "I"))
			b.Emit(classfile.OpIreturn)
		},
		want: "is static",
	},
	{
		name: "package-private class of another package", method: "hire", desc: "()V", access: pubStatic, stack: 2, locals: 0,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.EmitConst(classfile.OpNew, p.AddClass("zoo/Keeper"))
			b.Emit(classfile.OpPop)
			b.Emit(classfile.OpReturn)
		},
		want: "class zoo/Keeper is not accessible from app/Main",
	},
	{
		name: "throwing a non-throwable", method: "toss", desc: "()V", access: pubStatic, stack: 1, locals: 0,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.EmitConst(classfile.OpLdc, p.AddString("oops"))
			b.Emit(classfile.OpAthrow)
		},
		want: "is not a subclass of java/lang/Throwable",
	},
	{
		name: "dup2_x2 on a mixed stack", method: "badShuffle", desc: "()V", access: pubStatic, stack: 6, locals: 0,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpIconst0)
			b.Emit(classfile.OpLconst0)
			b.Emit(classfile.OpIconst0)
			b.Emit(classfile.OpDup2X2)
			b.Emit(classfile.OpReturn)
		},
		want: "does not match any of the four forms",
	},
	{
		name: "pop of a wide value", method: "badPop", desc: "()V", access: pubStatic, stack: 2, locals: 0,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpDconst1)
			b.Emit(classfile.OpPop)
			b.Emit(classfile.OpReturn)
		},
		want: "stack top should occupy 1 slot(s) but is double",
	},
	{
		name: "missing method", method: "fly", desc: "(Lzoo/Animal;)V", access: pubStatic, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Emit(classfile.OpAload0)
			b.EmitConst(classfile.OpInvokevirtual, p.AddMethodref("zoo/Animal", "fly", "()V"))
			b.Emit(classfile.OpReturn)
		},
		want: "member not found",
	},
	{
		name: "argument type", method: "feedInt", desc: "()V", access: pubStatic, stack: 3, locals: 0,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.Emit(classfile.OpIconst0)
			b.Emit(classfile.OpLconst0)
			b.EmitConst(classfile.OpInvokestatic, p.AddMethodref("zoo/Animal", "feed", "(Lzoo/Animal;J)V"))
			b.Emit(classfile.OpReturn)
		},
		want: "argument 0 of type int is not assignable to zoo/Animal",
	},
	{
		name: "array load from a non-array", method: "notArray", desc: "(Ljava/lang/String;)I", access: pubStatic, stack: 2, locals: 1,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpAload0)
			b.Emit(classfile.OpIconst0)
			b.Emit(classfile.OpIaload)
			b.Emit(classfile.OpIreturn)
		},
		want: "should be an array",
	},
	{
		name: "handler needs a stack slot", method: "noRoom", desc: "()V", access: pubStatic, stack: 0, locals: 0,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Mark("start")
			b.Emit(classfile.OpNop)
			b.Mark("handler")
			b.Emit(classfile.OpReturn)
		},
		handlers: []handlerSpec{{start: "start", end: "handler", target: "handler"}},
		want:     "max_stack is 0",
	},
}

func TestVerifyRejects(t *testing.T) {
	for _, tc := range rejectedMethods {
		t.Run(tc.name, func(t *testing.T) {
			s := newSubject(t, "app/Main", classfile.ObjectClass)
			m := s.method(tc.method, tc.desc, tc.access, tc.stack, tc.locals, tc.code, tc.handlers...)
			res := s.verify(m)
			wantRejected(t, res, tc.want)
			if res.Diagnostic == nil {
				t.Error("rejection carries no diagnostic")
			}
		})
	}
}

var notYetMethods = []methodCase{
	{
		name: "malformed descriptor", method: "bad", desc: "(X)V", access: pubStatic, stack: 0, locals: 1,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpReturn)
		},
		want: "method descriptor",
	},
	{
		name: "too few locals for the arguments", method: "args", desc: "(II)V", access: pubStatic, stack: 0, locals: 1,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Emit(classfile.OpReturn)
		},
		want: "code limits",
	},
	{
		name: "local out of range", method: "far", desc: "()V", access: pubStatic, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.EmitLocal(classfile.OpIload, 3)
			b.Emit(classfile.OpPop)
			b.Emit(classfile.OpReturn)
		},
		want: "local variable indices",
	},
	{
		name: "subroutine at the first instruction", method: "loopback", desc: "()V", access: pubStatic, stack: 1, locals: 1,
		code: func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
			b.Mark("top")
			b.EmitBranch(classfile.OpJsr, "top")
			b.Emit(classfile.OpReturn)
		},
		want: "subroutine targets",
	},
	{
		name: "explicit class initializer call", method: "clinit", desc: "()V", access: pubStatic, stack: 0, locals: 0,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.EmitConst(classfile.OpInvokestatic, p.AddMethodref("app/Main", "<clinit>", "()V"))
			b.Emit(classfile.OpReturn)
		},
		want: "method invocation names",
	},
	{
		name: "ldc of a long", method: "ldcLong", desc: "()V", access: pubStatic, stack: 2, locals: 0,
		code: func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
			b.EmitConst(classfile.OpLdc, p.AddLong(7))
			b.Emit(classfile.OpPop2)
			b.Emit(classfile.OpReturn)
		},
		want: "constant pool references",
	},
}

func TestVerifyNotYet(t *testing.T) {
	for _, tc := range notYetMethods {
		t.Run(tc.name, func(t *testing.T) {
			s := newSubject(t, "app/Main", classfile.ObjectClass)
			m := s.method(tc.method, tc.desc, tc.access, tc.stack, tc.locals, tc.code, tc.handlers...)
			wantNotYet(t, s.verify(m), tc.want)
		})
	}
}

func TestVerifyWithoutCode(t *testing.T) {
	s := newSubject(t, "app/Main", classfile.ObjectClass)
	m := s.class.AddMethod(&classfile.Method{Name: "run", Descriptor: "()V", Access: pub | classfile.AccAbstract})
	wantAccepted(t, s.verify(m))
}

func TestProtectedAccess(t *testing.T) {
	s := newSubject(t, "app/Puppy", "zoo/Dog")

	own := s.method("own", "()Ljava/lang/String;", pub, 1, 1, func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
		b.Emit(classfile.OpAload0)
		b.EmitConst(classfile.OpGetfield, p.AddFieldref("app/Puppy", "name", "Ljava/lang/String;"))
		b.Emit(classfile.OpAreturn)
	})
	wantAccepted(t, s.verify(own))

	other := s.method("other", "(Lzoo/Cat;)Ljava/lang/String;", pub, 1, 2, func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
		b.Emit(classfile.OpAload1)
		b.EmitConst(classfile.OpGetfield, p.AddFieldref("zoo/Cat", "name", "Ljava/lang/String;"))
		b.Emit(classfile.OpAreturn)
	})
	wantRejected(t, s.verify(other), "protected member zoo/Animal.name accessed through zoo/Cat")

	groom := s.method("groomOther", "(Lzoo/Dog;)V", pub, 1, 2, func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
		b.Emit(classfile.OpAload1)
		b.EmitConst(classfile.OpInvokevirtual, p.AddMethodref("zoo/Dog", "groom", "()V"))
		b.Emit(classfile.OpReturn)
	})
	wantRejected(t, s.verify(groom), "protected member zoo/Animal.groom")
}

func TestVerifyInternalError(t *testing.T) {
	s := newSubject(t, "app/Main", classfile.ObjectClass)
	m := s.method("ghost", "()V", pubStatic, 1, 0, func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
		b.EmitConst(classfile.OpNew, p.AddClass("zoo/Ghost"))
		b.Emit(classfile.OpPop)
		b.Emit(classfile.OpReturn)
	})
	res, err := Verify(s.repo, s.class, m, s.opts)
	if err == nil {
		t.Fatalf("Verify succeeded with %s", res)
	}
	var ie *InternalError
	if !errors.As(err, &ie) {
		t.Fatalf("error %v is not an *InternalError", err)
	}
	if !errors.Is(err, classfile.ErrClassNotFound) {
		t.Errorf("error %v does not wrap ErrClassNotFound", err)
	}
}

func TestDiagnostic(t *testing.T) {
	s := newSubject(t, "app/Main", classfile.ObjectClass)
	m := s.method("mismatch", "()I", pubStatic, 2, 1, func(b *classfile.CodeBuilder, _ *classfile.ConstantPool) {
		b.Emit(classfile.OpIconst1)
		b.Emit(classfile.OpFconst0)
		b.Emit(classfile.OpIadd)
		b.Emit(classfile.OpIreturn)
	})

	res := s.verify(m)
	wantRejected(t, res, "stack top should be int but is float")
	want := &Diagnostic{
		Instruction: "2: iadd",
		Offset:      2,
		Stack:       "[int, float]",
		Locals:      "[0:unknown]",
		Chain:       []string{"0: iconst_1", "1: fconst_0"},
	}
	if diff := cmp.Diff(want, res.Diagnostic); diff != "" {
		t.Errorf("diagnostic mismatch (-want +got):\n%s", diff)
	}

	s.opts.TraceLimit = 1
	res = s.verify(m)
	if res.Diagnostic.Elided != 1 || len(res.Diagnostic.Chain) != 1 || res.Diagnostic.Chain[0] != "1: fconst_0" {
		t.Errorf("trace limit 1: chain %v, elided %d", res.Diagnostic.Chain, res.Diagnostic.Elided)
	}
	if !strings.Contains(res.String(), "... 1 earlier instructions") {
		t.Errorf("result text does not mention the elided entries:\n%s", res)
	}
}

func TestVerifyIsDeterministic(t *testing.T) {
	for _, tc := range append(append([]methodCase{}, acceptedMethods...), rejectedMethods...) {
		t.Run(tc.name, func(t *testing.T) {
			s := newSubject(t, "app/Main", classfile.ObjectClass)
			m := s.method(tc.method, tc.desc, tc.access, tc.stack, tc.locals, tc.code, tc.handlers...)
			first, second := s.verify(m), s.verify(m)
			if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(Result{}, "RunID")); diff != "" {
				t.Errorf("second run differs (-first +second):\n%s", diff)
			}
		})
	}
}

func TestUninitializedWarning(t *testing.T) {
	s := newSubject(t, "app/Main", classfile.ObjectClass)
	m := s.method("leak", "()V", pubStatic, 1, 1, func(b *classfile.CodeBuilder, p *classfile.ConstantPool) {
		b.EmitConst(classfile.OpNew, p.AddClass("zoo/Dog"))
		b.Emit(classfile.OpAstore0)
		b.Emit(classfile.OpReturn)
	})
	res := s.verify(m)
	wantAccepted(t, res)
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "uninitialized(zoo/Dog@0) in local 0") {
		t.Errorf("warnings = %q", res.Warnings)
	}
}

func TestEveryOpcodeHasRules(t *testing.T) {
	for _, op := range classfile.Opcodes() {
		if op == classfile.OpWide {
			if constraintRule(op) != nil || executionRule(op) != nil {
				t.Errorf("wide has rules but never reaches dispatch")
			}
			continue
		}
		if constraintRule(op) == nil {
			t.Errorf("%s has no constraint rule", op)
		}
		if executionRule(op) == nil {
			t.Errorf("%s has no execution rule", op)
		}
	}
}

func TestVerifyClass(t *testing.T) {
	s := newSubject(t, "app/Main", classfile.ObjectClass)
	for _, tc := range []methodCase{acceptedMethods[0], rejectedMethods[0], notYetMethods[0]} {
		s.method(tc.method, tc.desc, tc.access, tc.stack, tc.locals, tc.code)
	}
	s.class.AddMethod(&classfile.Method{Name: "run", Descriptor: "()V", Access: pub | classfile.AccAbstract})

	results, err := VerifyClass(context.Background(), s.repo, s.class, s.opts)
	if err != nil {
		t.Fatal(err)
	}
	var got []Status
	for _, r := range results {
		got = append(got, r.Status)
	}
	want := []Status{Accepted, Rejected, NotYet, Accepted}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := VerifyClass(ctx, s.repo, s.class, s.opts); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: err = %v, want context.Canceled", err)
	}
}
