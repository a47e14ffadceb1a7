package fixture

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/bcverify/classfile"
)

func assemble(t *testing.T, src string) ([]classfile.Instruction, *classfile.ConstantPool, *Assembly) {
	t.Helper()
	pool := classfile.NewConstantPool()
	asm, err := Assemble(src, pool)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	code, err := classfile.Decode(asm.Code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return code, pool, asm
}

func opNames(code []classfile.Instruction) []string {
	out := make([]string, len(code))
	for i := range code {
		out[i] = code[i].Op.Name()
	}
	return out
}

func TestAssembleOperands(t *testing.T) {
	code, pool, _ := assemble(t, `
  bipush -5
  sipush 300
  istore 1
  iload 300            ; widened
  pop
  ldc "hi there"
  ldc 1.5f
  ldc class zoo/Dog
  ldc2_w 7L
  ldc2_w 2.5
  getstatic java/lang/System.out Ljava/io/PrintStream;
  invokestatic zoo/Animal.create()Lzoo/Animal;
  invokeinterface zoo/Named.label()Ljava/lang/String;
  invokedynamic run()Ljava/lang/Runnable;
  newarray int
  multianewarray [[I 2
  iinc 1 -1
  return
`)

	want := []string{
		"bipush", "sipush", "istore", "iload", "pop", "ldc", "ldc", "ldc", "ldc2_w", "ldc2_w",
		"getstatic", "invokestatic", "invokeinterface", "invokedynamic", "newarray", "multianewarray",
		"iinc", "return",
	}
	if diff := cmp.Diff(want, opNames(code)); diff != "" {
		t.Fatalf("opcodes (-want +got):\n%s", diff)
	}

	if code[0].Const != -5 || code[1].Const != 300 {
		t.Errorf("immediates = %d, %d", code[0].Const, code[1].Const)
	}
	if !code[3].Wide || code[3].Index != 300 {
		t.Errorf("iload 300 = %+v, want a wide load of local 300", code[3])
	}
	if s, err := pool.StringValue(code[5].Index); err != nil || s != "hi there" {
		t.Errorf("string literal = %q, %v", s, err)
	}
	if c, _ := pool.Get(code[6].Index); c.Tag != classfile.TagFloat || c.Float != 1.5 {
		t.Errorf("float literal = %+v", c)
	}
	if name, err := pool.ClassName(code[7].Index); err != nil || name != "zoo/Dog" {
		t.Errorf("class literal = %q, %v", name, err)
	}
	if c, _ := pool.Get(code[8].Index); c.Tag != classfile.TagLong || c.Long != 7 {
		t.Errorf("long literal = %+v", c)
	}
	if c, _ := pool.Get(code[9].Index); c.Tag != classfile.TagDouble || c.Double != 2.5 {
		t.Errorf("double literal = %+v", c)
	}

	ref, err := pool.MemberRef(code[10].Index)
	if err != nil {
		t.Fatal(err)
	}
	wantRef := classfile.MemberRef{Tag: classfile.TagFieldref, Owner: "java/lang/System", Name: "out", Descriptor: "Ljava/io/PrintStream;"}
	if ref != wantRef {
		t.Errorf("field ref = %+v, want %+v", ref, wantRef)
	}
	if ref, _ := pool.MemberRef(code[11].Index); ref.Tag != classfile.TagMethodref || ref.Name != "create" {
		t.Errorf("method ref = %+v", ref)
	}
	if ref, _ := pool.MemberRef(code[12].Index); ref.Tag != classfile.TagInterfaceMethodref || code[12].Count != 1 {
		t.Errorf("interface method ref = %+v, count %d", ref, code[12].Count)
	}
	if name, desc, err := pool.InvokeDynamic(code[13].Index); err != nil || name != "run" || desc != "()Ljava/lang/Runnable;" {
		t.Errorf("call site = %s%s, %v", name, desc, err)
	}
	if code[14].AType != classfile.ArrayInt {
		t.Errorf("newarray element code = %d", code[14].AType)
	}
	if name, _ := pool.ClassName(code[15].Index); name != "[[I" || code[15].Count != 2 {
		t.Errorf("multianewarray = %s %d", name, code[15].Count)
	}
	if code[16].Index != 1 || code[16].Const != -1 {
		t.Errorf("iinc = %d %d", code[16].Index, code[16].Const)
	}
}

func TestAssembleBranches(t *testing.T) {
	code, _, asm := assemble(t, `
start:
  iload_0
  tableswitch 0 default out a b
a:
  goto start
b: iinc 0 1
out:
  lookupswitch default start -1:a 7:out
`)
	labels := asm.Labels
	ts := code[1]
	if ts.Target != labels["out"] {
		t.Errorf("tableswitch default = %d, want %d", ts.Target, labels["out"])
	}
	if diff := cmp.Diff([]int{labels["a"], labels["b"]}, ts.Targets); diff != "" {
		t.Errorf("tableswitch targets (-want +got):\n%s", diff)
	}
	if code[2].Target != labels["start"] || labels["start"] != 0 {
		t.Errorf("goto target = %d", code[2].Target)
	}
	if code[3].Pos != labels["b"] {
		t.Errorf("label on an instruction line bound to %d, want %d", labels["b"], code[3].Pos)
	}
	ls := code[4]
	if diff := cmp.Diff([]int32{-1, 7}, ls.Keys); diff != "" {
		t.Errorf("lookupswitch keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{labels["a"], labels["out"]}, ls.Targets); diff != "" {
		t.Errorf("lookupswitch targets (-want +got):\n%s", diff)
	}
}

func TestAssembleRawPoolIndex(t *testing.T) {
	pool := classfile.NewConstantPool()
	asm, err := Assemble("getstatic #40\nnewarray 99\nreturn", pool)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	code, err := classfile.Decode(asm.Code)
	if err != nil {
		t.Fatal(err)
	}
	if code[0].Index != 40 || code[1].AType != 99 {
		t.Errorf("raw operands = #%d, %d", code[0].Index, code[1].AType)
	}
	if pool.Size() != 1 {
		t.Errorf("raw operands added %d pool entries", pool.Size()-1)
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		want string
	}{
		{"unknown instruction", "nop\nfrobnicate", 2, "unknown instruction"},
		{"operand count", "iload", 1, "takes 1 operand"},
		{"undefined label", "nop\ngoto nowhere\nreturn", 2, `undefined label "nowhere"`},
		{"duplicate label", "x:\nnop\nx:\nreturn", 3, "defined twice"},
		{"immediate range", "bipush 300\nreturn", 1, "out of range"},
		{"long via ldc", "ldc 7L", 1, "needs ldc2_w"},
		{"bare ldc2_w", "ldc2_w 5", 1, "needs an L or d suffix"},
		{"unterminated string", `ldc "open`, 1, "unterminated string"},
		{"explicit wide", "wide", 1, "added automatically"},
		{"empty", "; nothing here\n", 1, "no instructions"},
		{"array element", "newarray quux", 1, "unknown array element type"},
		{"method without descriptor", "invokevirtual Foo.bar", 1, "no descriptor"},
		{"field without owner", "getfield count I", 1, "is not Owner.name"},
		{"lookupswitch pair", "lookupswitch default x 3", 1, "is not key:label"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.src, classfile.NewConstantPool())
			se, ok := err.(*SyntaxError)
			if !ok {
				t.Fatalf("err = %v, want *SyntaxError", err)
			}
			if se.Line != tt.line {
				t.Errorf("line = %d, want %d", se.Line, tt.line)
			}
			if !strings.Contains(se.Msg, tt.want) {
				t.Errorf("message %q does not contain %q", se.Msg, tt.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{`  ldc "a ; b"   ; comment`, []string{"ldc", `"a ; b"`}},
		{"getfield a/B.c Ljava/lang/String; ;note", []string{"getfield", "a/B.c", "Ljava/lang/String;"}},
		{"loop:\tiinc 1 -1", []string{"loop:", "iinc", "1", "-1"}},
		{"; only a comment", nil},
	}
	for _, tt := range tests {
		got, err := tokenize(tt.line)
		if err != nil {
			t.Errorf("tokenize(%q): %v", tt.line, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("tokenize(%q) (-want +got):\n%s", tt.line, diff)
		}
	}
}
