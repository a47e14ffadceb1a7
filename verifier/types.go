package verifier

import (
	"fmt"
	"strings"

	"github.com/chazu/bcverify/classfile"
)

// Kind identifies the variant of a lattice value.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindNull
	KindReference
	KindUninitialized
	KindReturnAddress
)

var kindNames = [...]string{
	KindUnknown:       "unknown",
	KindInt:           "int",
	KindLong:          "long",
	KindFloat:         "float",
	KindDouble:        "double",
	KindNull:          "null",
	KindReference:     "reference",
	KindUninitialized: "uninitialized",
	KindReturnAddress: "returnAddress",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// thisSite marks the uninitialized receiver of a constructor. Real new sites
// are code offsets and never negative.
const thisSite = -1

// Type is a verification-time value. It is comparable: two values are the
// same lattice element exactly when they are ==.
//
// Name holds the internal class name or array descriptor for references and
// the class for uninitialized markers. Site holds the new-site offset for
// markers and the target offset for return addresses.
type Type struct {
	Kind Kind
	Name string
	Site int
}

// Primitive and special lattice values.
var (
	Unknown = Type{}
	Int     = Type{Kind: KindInt}
	Long    = Type{Kind: KindLong}
	Float   = Type{Kind: KindFloat}
	Double  = Type{Kind: KindDouble}
	Null    = Type{Kind: KindNull}
)

// Reference returns the reference type for a class name or array descriptor.
func Reference(name string) Type {
	return Type{Kind: KindReference, Name: name}
}

// Uninitialized returns the marker for an object allocated by the new at site.
func Uninitialized(class string, site int) Type {
	return Type{Kind: KindUninitialized, Name: class, Site: site}
}

// UninitializedThis returns the marker for a constructor's receiver.
func UninitializedThis(class string) Type {
	return Type{Kind: KindUninitialized, Name: class, Site: thisSite}
}

// ReturnAddress returns a return address pointing at target.
func ReturnAddress(target int) Type {
	return Type{Kind: KindReturnAddress, Site: target}
}

// Size returns the number of slots the value occupies.
func (t Type) Size() int {
	if t.Kind == KindLong || t.Kind == KindDouble {
		return 2
	}
	return 1
}

// IsReference reports whether t is an initialized reference or null.
func (t Type) IsReference() bool {
	return t.Kind == KindReference || t.Kind == KindNull
}

// IsUninitialized reports whether t is an uninitialized-object marker.
func (t Type) IsUninitialized() bool {
	return t.Kind == KindUninitialized
}

// IsUninitializedThis reports whether t is the constructor receiver marker.
func (t Type) IsUninitializedThis() bool {
	return t.Kind == KindUninitialized && t.Site == thisSite
}

// isRefLike covers every value an object-typed operand may hold, initialized
// or not.
func (t Type) isRefLike() bool {
	return t.IsReference() || t.IsUninitialized()
}

// IsArray reports whether t is an array reference.
func (t Type) IsArray() bool {
	return t.Kind == KindReference && strings.HasPrefix(t.Name, "[")
}

// IsClass reports whether t is a non-array reference.
func (t Type) IsClass() bool {
	return t.Kind == KindReference && !strings.HasPrefix(t.Name, "[")
}

// Initialized returns the class type a marker becomes once its constructor
// has run.
func (t Type) Initialized() Type {
	return Reference(t.Name)
}

// Descriptor returns the field descriptor form of a reference type.
func (t Type) Descriptor() string {
	if t.IsArray() {
		return t.Name
	}
	return "L" + t.Name + ";"
}

func (t Type) String() string {
	switch t.Kind {
	case KindReference:
		return t.Name
	case KindUninitialized:
		if t.Site == thisSite {
			return "uninitializedThis(" + t.Name + ")"
		}
		return fmt.Sprintf("uninitialized(%s@%d)", t.Name, t.Site)
	case KindReturnAddress:
		return fmt.Sprintf("returnAddress(%d)", t.Site)
	}
	return t.Kind.String()
}

// ---------------------------------------------------------------------------
// Descriptor conversion
// ---------------------------------------------------------------------------

// FromFieldType converts a parsed descriptor into a lattice value. Boolean,
// byte, char and short become int; void becomes Unknown.
func FromFieldType(ft classfile.FieldType) Type {
	if ft.IsArray() {
		return Reference(ft.Descriptor())
	}
	switch ft.Kind {
	case classfile.KindBoolean, classfile.KindByte, classfile.KindChar, classfile.KindShort, classfile.KindInt:
		return Int
	case classfile.KindLong:
		return Long
	case classfile.KindFloat:
		return Float
	case classfile.KindDouble:
		return Double
	case classfile.KindClass:
		return Reference(ft.Class)
	}
	return Unknown
}

// FromDescriptor parses a field descriptor into a lattice value.
func FromDescriptor(desc string) (Type, error) {
	ft, err := classfile.ParseFieldType(desc)
	if err != nil {
		return Unknown, err
	}
	return FromFieldType(ft), nil
}

// FromClassRef converts the operand of a Class constant, which may name a
// class or an array type.
func FromClassRef(name string) (Type, error) {
	ft, err := classfile.ParseClassRef(name)
	if err != nil {
		return Unknown, err
	}
	return FromFieldType(ft), nil
}

// ArrayOf returns the array type whose components are t.
func ArrayOf(t Type) Type {
	switch t.Kind {
	case KindReference:
		return Reference("[" + t.Descriptor())
	case KindInt:
		return Reference("[I")
	case KindLong:
		return Reference("[J")
	case KindFloat:
		return Reference("[F")
	case KindDouble:
		return Reference("[D")
	}
	return Unknown
}

// component returns the field type of an array's components. ok is false when
// t is not an array.
func (t Type) component() (classfile.FieldType, bool) {
	if !t.IsArray() {
		return classfile.FieldType{}, false
	}
	ft, err := classfile.ParseFieldType(t.Name[1:])
	if err != nil {
		return classfile.FieldType{}, false
	}
	return ft, true
}

// elementClass returns the innermost class of an array type, or the class
// itself for a class type. ok is false for primitive arrays.
func (t Type) elementClass() (string, bool) {
	if t.IsClass() {
		return t.Name, true
	}
	ft, err := classfile.ParseFieldType(t.Name)
	if err != nil || ft.Kind != classfile.KindClass {
		return "", false
	}
	return ft.Class, true
}
