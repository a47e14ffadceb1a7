package fixture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/bcverify/classfile"
)

// ---------------------------------------------------------------------------
// Assembler: line-oriented assembly to code arrays
// ---------------------------------------------------------------------------

// SyntaxError reports a line the assembler could not translate.
type SyntaxError struct {
	Line int // 1-based
	Text string
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s (in %q)", e.Line, e.Msg, strings.TrimSpace(e.Text))
}

// Assembly is the output of Assemble.
type Assembly struct {
	Code   []byte
	Labels map[string]int // label -> byte offset
}

// newArrayCodes maps newarray element names to their codes.
var newArrayCodes = map[string]byte{
	"boolean": classfile.ArrayBoolean,
	"char":    classfile.ArrayChar,
	"float":   classfile.ArrayFloat,
	"double":  classfile.ArrayDouble,
	"byte":    classfile.ArrayByte,
	"short":   classfile.ArrayShort,
	"int":     classfile.ArrayInt,
	"long":    classfile.ArrayLong,
}

// assembler translates one method body. Pool entries are added to pool as
// operands reference them.
type assembler struct {
	b    *classfile.CodeBuilder
	pool *classfile.ConstantPool
	line int
	text string
	uses map[string]int // label -> first line branching to it
}

// Assemble translates src into a code array, adding the constants it
// references to pool. Each line holds an optional "label:" and an optional
// instruction; a ';' starting a token begins a comment.
func Assemble(src string, pool *classfile.ConstantPool) (*Assembly, error) {
	a := &assembler{b: classfile.NewCodeBuilder(), pool: pool, uses: make(map[string]int)}
	lines := strings.Split(src, "\n")
	for i, text := range lines {
		a.line, a.text = i+1, text
		toks, err := tokenize(text)
		if err != nil {
			return nil, a.errorf("%v", err)
		}
		if len(toks) > 0 && isLabel(toks[0]) {
			label := strings.TrimSuffix(toks[0], ":")
			if _, dup := a.b.Offset(label); dup {
				return nil, a.errorf("label %q defined twice", label)
			}
			a.b.Mark(label)
			toks = toks[1:]
		}
		if len(toks) == 0 {
			continue
		}
		if err := a.instruction(toks[0], toks[1:]); err != nil {
			return nil, err
		}
		if err := a.b.Err(); err != nil {
			return nil, a.errorf("%v", err)
		}
	}
	if a.b.Len() == 0 {
		return nil, &SyntaxError{Line: 1, Text: src, Msg: "no instructions"}
	}

	undefined, first := "", 0
	for label, line := range a.uses {
		if _, ok := a.b.Offset(label); !ok && (first == 0 || line < first || line == first && label < undefined) {
			undefined, first = label, line
		}
	}
	if first > 0 {
		a.line, a.text = first, lines[first-1]
		return nil, a.errorf("undefined label %q", undefined)
	}
	code, err := a.b.Bytes()
	if err != nil {
		return nil, &SyntaxError{Line: a.line, Text: a.text, Msg: err.Error()}
	}
	return &Assembly{Code: code, Labels: a.b.Labels()}, nil
}

func (a *assembler) errorf(format string, args ...any) error {
	return &SyntaxError{Line: a.line, Text: a.text, Msg: fmt.Sprintf(format, args...)}
}

// isLabel reports whether tok defines a label. Lookupswitch pairs such as
// "3:L" carry text after the colon and are not labels.
func isLabel(tok string) bool {
	return len(tok) > 1 && strings.HasSuffix(tok, ":") && strings.Count(tok, ":") == 1 && tok[0] != '"'
}

// tokenize splits a line on whitespace. Double-quoted strings are single
// tokens and keep their quotes.
func tokenize(line string) ([]string, error) {
	var toks []string
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == ';':
			return toks, nil
		case c == '"':
			j := i + 1
			for ; j < len(line) && line[j] != '"'; j++ {
				if line[j] == '\\' {
					j++
				}
			}
			if j >= len(line) {
				return nil, fmt.Errorf("unterminated string")
			}
			toks = append(toks, line[i:j+1])
			i = j + 1
		default:
			j := i
			for j < len(line) && line[j] != ' ' && line[j] != '\t' && line[j] != '\r' {
				j++
			}
			toks = append(toks, line[i:j])
			i = j
		}
	}
	return toks, nil
}

func (a *assembler) instruction(mnemonic string, args []string) error {
	op, ok := classfile.LookupOpcode(mnemonic)
	if !ok {
		return a.errorf("unknown instruction %q", mnemonic)
	}
	want := func(n int) error {
		if len(args) != n {
			return a.errorf("%s takes %d operand(s), got %d", mnemonic, n, len(args))
		}
		return nil
	}

	switch op.Info().Format {
	case classfile.FormatNone:
		if err := want(0); err != nil {
			return err
		}
		a.b.Emit(op)
	case classfile.FormatByte, classfile.FormatShort:
		if err := want(1); err != nil {
			return err
		}
		v, err := a.integer(args[0])
		if err != nil {
			return err
		}
		a.b.EmitImmediate(op, v)
	case classfile.FormatLocal:
		if err := want(1); err != nil {
			return err
		}
		v, err := a.integer(args[0])
		if err != nil {
			return err
		}
		a.b.EmitLocal(op, v)
	case classfile.FormatIinc:
		if err := want(2); err != nil {
			return err
		}
		index, err := a.integer(args[0])
		if err != nil {
			return err
		}
		delta, err := a.integer(args[1])
		if err != nil {
			return err
		}
		a.b.EmitIinc(index, delta)
	case classfile.FormatBranch, classfile.FormatBranchWide:
		if err := want(1); err != nil {
			return err
		}
		a.use(args[0])
		a.b.EmitBranch(op, args[0])
	case classfile.FormatConst8, classfile.FormatConst16:
		index, err := a.constOperand(op, args)
		if err != nil {
			return err
		}
		a.b.EmitConst(op, index)
	case classfile.FormatTableSwitch:
		return a.tableSwitch(args)
	case classfile.FormatLookupSwitch:
		return a.lookupSwitch(args)
	case classfile.FormatInvokeInterface:
		return a.invokeInterface(args)
	case classfile.FormatInvokeDynamic:
		if err := want(1); err != nil {
			return err
		}
		index, err := a.poolIndex(args[0], func(s string) (int, error) {
			name, desc, ok := strings.Cut(s, "(")
			if !ok || name == "" {
				return 0, fmt.Errorf("call site %q is not name(Args)Ret", s)
			}
			return a.pool.AddInvokeDynamic(0, name, "("+desc), nil
		})
		if err != nil {
			return err
		}
		a.b.EmitInvokeDynamic(index)
	case classfile.FormatNewArray:
		if err := want(1); err != nil {
			return err
		}
		code, ok := newArrayCodes[args[0]]
		if !ok {
			v, err := a.integer(args[0])
			if err != nil {
				return a.errorf("unknown array element type %q", args[0])
			}
			code = byte(v)
		}
		a.b.EmitNewArray(code)
	case classfile.FormatMultiANewArray:
		if err := want(2); err != nil {
			return err
		}
		index, err := a.poolIndex(args[0], a.classRef)
		if err != nil {
			return err
		}
		dims, err := a.integer(args[1])
		if err != nil {
			return err
		}
		a.b.EmitMultiANewArray(index, dims)
	case classfile.FormatWide:
		return a.errorf("wide is added automatically when an operand needs it")
	default:
		return a.errorf("cannot assemble %s", mnemonic)
	}
	return nil
}

// use records branch targets so undefined labels are reported where they
// are used.
func (a *assembler) use(labels ...string) {
	for _, l := range labels {
		if _, seen := a.uses[l]; !seen {
			a.uses[l] = a.line
		}
	}
}

func (a *assembler) integer(s string) (int, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, a.errorf("bad integer %q", s)
	}
	return int(v), nil
}

// poolIndex accepts "#n" for a raw pool index and otherwise builds the
// entry with add.
func (a *assembler) poolIndex(s string, add func(string) (int, error)) (int, error) {
	if raw, ok := strings.CutPrefix(s, "#"); ok {
		return a.integer(raw)
	}
	index, err := add(s)
	if err != nil {
		return 0, a.errorf("%v", err)
	}
	return index, nil
}

func (a *assembler) classRef(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty class name")
	}
	return a.pool.AddClass(s), nil
}

// splitMethod splits "Owner.name(Args)Ret".
func splitMethod(s string) (owner, name, desc string, err error) {
	ref, args, ok := strings.Cut(s, "(")
	if !ok {
		return "", "", "", fmt.Errorf("method reference %q has no descriptor", s)
	}
	dot := strings.LastIndexByte(ref, '.')
	if dot <= 0 || dot == len(ref)-1 {
		return "", "", "", fmt.Errorf("method reference %q is not Owner.name(Args)Ret", s)
	}
	return ref[:dot], ref[dot+1:], "(" + args, nil
}

func (a *assembler) constOperand(op classfile.Opcode, args []string) (int, error) {
	if len(args) == 0 {
		return 0, a.errorf("%s needs an operand", op.Name())
	}
	switch op {
	case classfile.OpLdc, classfile.OpLdcW, classfile.OpLdc2W:
		return a.literal(op, args)
	case classfile.OpGetstatic, classfile.OpPutstatic, classfile.OpGetfield, classfile.OpPutfield:
		if len(args) == 1 && strings.HasPrefix(args[0], "#") {
			return a.poolIndex(args[0], nil)
		}
		if len(args) != 2 {
			return 0, a.errorf("%s takes Owner.name Descriptor", op.Name())
		}
		dot := strings.LastIndexByte(args[0], '.')
		if dot <= 0 || dot == len(args[0])-1 {
			return 0, a.errorf("field reference %q is not Owner.name", args[0])
		}
		return a.pool.AddFieldref(args[0][:dot], args[0][dot+1:], args[1]), nil
	case classfile.OpInvokevirtual, classfile.OpInvokespecial, classfile.OpInvokestatic:
		if len(args) != 1 {
			return 0, a.errorf("%s takes Owner.name(Args)Ret", op.Name())
		}
		return a.poolIndex(args[0], func(s string) (int, error) {
			owner, name, desc, err := splitMethod(s)
			if err != nil {
				return 0, err
			}
			return a.pool.AddMethodref(owner, name, desc), nil
		})
	}
	if len(args) != 1 {
		return 0, a.errorf("%s takes a class name", op.Name())
	}
	return a.poolIndex(args[0], a.classRef)
}

// literal builds the pool entry for an ldc family operand.
func (a *assembler) literal(op classfile.Opcode, args []string) (int, error) {
	s := args[0]
	switch {
	case strings.HasPrefix(s, "#"):
		return a.poolIndex(s, nil)
	case s == "class" || s == "methodtype":
		if len(args) != 2 {
			return 0, a.errorf("%s %s takes one operand", op.Name(), s)
		}
		if s == "class" {
			return a.pool.AddClass(args[1]), nil
		}
		return a.pool.AddMethodType(args[1]), nil
	case len(args) != 1:
		return 0, a.errorf("%s takes one literal", op.Name())
	case strings.HasPrefix(s, `"`):
		text, err := strconv.Unquote(s)
		if err != nil {
			return 0, a.errorf("bad string literal %s", s)
		}
		return a.pool.AddString(text), nil
	}

	wide := op == classfile.OpLdc2W
	last := s[len(s)-1]
	switch {
	case last == 'L' || last == 'l':
		if !wide {
			return 0, a.errorf("long literal %s needs ldc2_w", s)
		}
		v, err := strconv.ParseInt(s[:len(s)-1], 0, 64)
		if err != nil {
			return 0, a.errorf("bad long literal %q", s)
		}
		return a.pool.AddLong(v), nil
	case last == 'f' || last == 'F':
		if wide {
			return 0, a.errorf("float literal %s needs ldc", s)
		}
		v, err := strconv.ParseFloat(s[:len(s)-1], 32)
		if err != nil {
			return 0, a.errorf("bad float literal %q", s)
		}
		return a.pool.AddFloat(float32(v)), nil
	case last == 'd' || last == 'D' || (wide && strings.ContainsAny(s, ".eE")):
		if !wide {
			return 0, a.errorf("double literal %s needs ldc2_w", s)
		}
		v, err := strconv.ParseFloat(strings.TrimRight(s, "dD"), 64)
		if err != nil {
			return 0, a.errorf("bad double literal %q", s)
		}
		return a.pool.AddDouble(v), nil
	}
	if wide {
		return 0, a.errorf("ldc2_w literal %s needs an L or d suffix", s)
	}
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, a.errorf("bad int literal %q", s)
	}
	return a.pool.AddInteger(int32(v)), nil
}

// tableSwitch parses "low default Ldef L0 L1 ...".
func (a *assembler) tableSwitch(args []string) error {
	if len(args) < 4 || args[1] != "default" {
		return a.errorf("tableswitch takes low default Ldef L0 ...")
	}
	low, err := a.integer(args[0])
	if err != nil {
		return err
	}
	a.use(args[2:]...)
	a.b.EmitTableSwitch(int32(low), args[2], args[3:])
	return nil
}

// lookupSwitch parses "default Ldef k:L ...".
func (a *assembler) lookupSwitch(args []string) error {
	if len(args) < 2 || args[0] != "default" {
		return a.errorf("lookupswitch takes default Ldef k:L ...")
	}
	var keys []int32
	var targets []string
	for _, pair := range args[2:] {
		k, l, ok := strings.Cut(pair, ":")
		if !ok || l == "" {
			return a.errorf("lookupswitch pair %q is not key:label", pair)
		}
		v, err := a.integer(k)
		if err != nil {
			return err
		}
		keys = append(keys, int32(v))
		targets = append(targets, l)
	}
	a.use(args[1])
	a.use(targets...)
	a.b.EmitLookupSwitch(args[1], keys, targets)
	return nil
}

// invokeInterface parses "Owner.name(Args)Ret [count]". The count defaults
// to the argument slots plus the receiver.
func (a *assembler) invokeInterface(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return a.errorf("invokeinterface takes Owner.name(Args)Ret [count]")
	}
	count := -1
	if len(args) == 2 {
		v, err := a.integer(args[1])
		if err != nil {
			return err
		}
		count = v
	}
	index, err := a.poolIndex(args[0], func(s string) (int, error) {
		owner, name, desc, err := splitMethod(s)
		if err != nil {
			return 0, err
		}
		if count < 0 {
			mt, err := classfile.ParseMethodType(desc)
			if err != nil {
				return 0, err
			}
			count = mt.ArgumentSlots() + 1
		}
		return a.pool.AddInterfaceMethodref(owner, name, desc), nil
	})
	if err != nil {
		return err
	}
	if count < 0 {
		return a.errorf("invokeinterface through a raw pool index needs an explicit count")
	}
	a.b.EmitInvokeInterface(index, count)
	return nil
}
