package classfile

import (
	"errors"
	"fmt"
	"strings"
)

// BaseKind is the element kind of a field type.
type BaseKind uint8

const (
	KindVoid BaseKind = iota
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindClass
)

var baseKindDescriptors = map[byte]BaseKind{
	'Z': KindBoolean,
	'B': KindByte,
	'C': KindChar,
	'S': KindShort,
	'I': KindInt,
	'J': KindLong,
	'F': KindFloat,
	'D': KindDouble,
	'V': KindVoid,
}

var baseKindChars = [...]byte{
	KindVoid:    'V',
	KindBoolean: 'Z',
	KindByte:    'B',
	KindChar:    'C',
	KindShort:   'S',
	KindInt:     'I',
	KindLong:    'J',
	KindFloat:   'F',
	KindDouble:  'D',
	KindClass:   'L',
}

// FieldType is a parsed field descriptor. Dims > 0 makes it an array whose
// innermost element is described by Kind and Class.
type FieldType struct {
	Kind  BaseKind
	Class string // internal class name when Kind is KindClass
	Dims  int
}

// IsArray reports whether t is an array type.
func (t FieldType) IsArray() bool {
	return t.Dims > 0
}

// IsReference reports whether t is a class or array type.
func (t FieldType) IsReference() bool {
	return t.Dims > 0 || t.Kind == KindClass
}

// Size returns the number of local or stack slots a value of t occupies.
func (t FieldType) Size() int {
	switch {
	case t.Dims > 0:
		return 1
	case t.Kind == KindVoid:
		return 0
	case t.Kind == KindLong || t.Kind == KindDouble:
		return 2
	}
	return 1
}

// Descriptor renders t back into descriptor form.
func (t FieldType) Descriptor() string {
	var sb strings.Builder
	for i := 0; i < t.Dims; i++ {
		sb.WriteByte('[')
	}
	if t.Kind == KindClass {
		sb.WriteByte('L')
		sb.WriteString(t.Class)
		sb.WriteByte(';')
		return sb.String()
	}
	sb.WriteByte(baseKindChars[t.Kind])
	return sb.String()
}

func (t FieldType) String() string {
	return t.Descriptor()
}

// ErrBadDescriptor is wrapped by descriptor parse failures.
var ErrBadDescriptor = errors.New("malformed descriptor")

// ParseFieldType parses a complete field descriptor such as "I",
// "Ljava/lang/String;" or "[[J".
func ParseFieldType(desc string) (FieldType, error) {
	t, rest, err := parseFieldType(desc)
	if err != nil {
		return FieldType{}, err
	}
	if rest != "" {
		return FieldType{}, fmt.Errorf("%w: trailing %q in %q", ErrBadDescriptor, rest, desc)
	}
	if t.Kind == KindVoid {
		return FieldType{}, fmt.Errorf("%w: void is not a field type", ErrBadDescriptor)
	}
	return t, nil
}

// ParseClassRef parses the operand of a Class constant, which is either an
// internal class name or an array descriptor.
func ParseClassRef(name string) (FieldType, error) {
	if strings.HasPrefix(name, "[") {
		return ParseFieldType(name)
	}
	if name == "" || strings.ContainsAny(name, ";[") {
		return FieldType{}, fmt.Errorf("%w: bad class name %q", ErrBadDescriptor, name)
	}
	return FieldType{Kind: KindClass, Class: name}, nil
}

func parseFieldType(s string) (FieldType, string, error) {
	dims := 0
	for strings.HasPrefix(s, "[") {
		dims++
		s = s[1:]
	}
	if dims > 255 {
		return FieldType{}, "", fmt.Errorf("%w: more than 255 array dimensions", ErrBadDescriptor)
	}
	if s == "" {
		return FieldType{}, "", fmt.Errorf("%w: unexpected end", ErrBadDescriptor)
	}
	if s[0] == 'L' {
		end := strings.IndexByte(s, ';')
		if end <= 1 {
			return FieldType{}, "", fmt.Errorf("%w: unterminated class name in %q", ErrBadDescriptor, s)
		}
		return FieldType{Kind: KindClass, Class: s[1:end], Dims: dims}, s[end+1:], nil
	}
	k, ok := baseKindDescriptors[s[0]]
	if !ok {
		return FieldType{}, "", fmt.Errorf("%w: unknown type character %q", ErrBadDescriptor, s[0])
	}
	if k == KindVoid && dims > 0 {
		return FieldType{}, "", fmt.Errorf("%w: array of void", ErrBadDescriptor)
	}
	return FieldType{Kind: k, Dims: dims}, s[1:], nil
}

// MethodType is a parsed method descriptor.
type MethodType struct {
	Args   []FieldType
	Return FieldType // Kind is KindVoid for void methods
}

// ArgumentSlots returns the number of local slots the arguments occupy.
func (m MethodType) ArgumentSlots() int {
	n := 0
	for _, a := range m.Args {
		n += a.Size()
	}
	return n
}

// ParseMethodType parses a method descriptor such as "(ILjava/lang/String;)V".
func ParseMethodType(desc string) (MethodType, error) {
	if !strings.HasPrefix(desc, "(") {
		return MethodType{}, fmt.Errorf("%w: %q does not start with '('", ErrBadDescriptor, desc)
	}
	s := desc[1:]
	var m MethodType
	for {
		if s == "" {
			return MethodType{}, fmt.Errorf("%w: unterminated argument list in %q", ErrBadDescriptor, desc)
		}
		if s[0] == ')' {
			s = s[1:]
			break
		}
		t, rest, err := parseFieldType(s)
		if err != nil {
			return MethodType{}, fmt.Errorf("%s: %w", desc, err)
		}
		if t.Kind == KindVoid {
			return MethodType{}, fmt.Errorf("%w: void argument in %q", ErrBadDescriptor, desc)
		}
		m.Args = append(m.Args, t)
		s = rest
	}
	ret, rest, err := parseFieldType(s)
	if err != nil {
		return MethodType{}, fmt.Errorf("%s: %w", desc, err)
	}
	if rest != "" {
		return MethodType{}, fmt.Errorf("%w: trailing %q in %q", ErrBadDescriptor, rest, desc)
	}
	m.Return = ret
	if m.ArgumentSlots() > 255 {
		return MethodType{}, fmt.Errorf("%w: %q takes more than 255 argument slots", ErrBadDescriptor, desc)
	}
	return m, nil
}
