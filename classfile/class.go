// Package classfile models the classes, constant pools and code arrays the
// verifier consumes, and the class hierarchy it queries.
package classfile

import (
	"fmt"
	"strings"
)

// AccessFlags is the access_flags bit set shared by classes, fields and methods.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSynchronized AccessFlags = 0x0020 // methods; ACC_SUPER on classes
	AccVolatile     AccessFlags = 0x0040
	AccTransient    AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
)

var accessFlagNames = []struct {
	name string
	flag AccessFlags
}{
	{"public", AccPublic},
	{"private", AccPrivate},
	{"protected", AccProtected},
	{"static", AccStatic},
	{"final", AccFinal},
	{"synchronized", AccSynchronized},
	{"volatile", AccVolatile},
	{"transient", AccTransient},
	{"native", AccNative},
	{"interface", AccInterface},
	{"abstract", AccAbstract},
}

// Has reports whether every bit in f2 is set.
func (f AccessFlags) Has(f2 AccessFlags) bool {
	return f&f2 == f2
}

func (f AccessFlags) String() string {
	var parts []string
	for _, n := range accessFlagNames {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, " ")
}

// ParseAccessFlags parses flag names such as "public" and "static".
func ParseAccessFlags(names []string) (AccessFlags, error) {
	var f AccessFlags
outer:
	for _, name := range names {
		for _, n := range accessFlagNames {
			if n.name == name {
				f |= n.flag
				continue outer
			}
		}
		return 0, fmt.Errorf("unknown access flag %q", name)
	}
	return f, nil
}

// Well-known names.
const (
	ObjectClass       = "java/lang/Object"
	ThrowableClass    = "java/lang/Throwable"
	StringClass       = "java/lang/String"
	ClassClass        = "java/lang/Class"
	ConstructorName   = "<init>"
	InitializerName   = "<clinit>"
	MethodTypeClass   = "java/lang/invoke/MethodType"
	MethodHandleClass = "java/lang/invoke/MethodHandle"
)

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// Field is a declared field.
type Field struct {
	Name       string
	Descriptor string
	Access     AccessFlags
}

// Handler is one exception table entry. Offsets are byte positions in the
// code array; End is exclusive. CatchType is a Class pool index, or 0 to
// catch everything.
type Handler struct {
	Start     int
	End       int
	Target    int
	CatchType int
}

// Method is a declared method together with its code attribute.
type Method struct {
	Name       string
	Descriptor string
	Access     AccessFlags
	MaxStack   int
	MaxLocals  int
	Code       []byte
	Handlers   []Handler
}

// HasCode reports whether the method carries a code array.
func (m *Method) HasCode() bool {
	return !m.Access.Has(AccAbstract) && !m.Access.Has(AccNative)
}

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool {
	return m.Access.Has(AccStatic)
}

// IsConstructor reports whether the method is an instance initializer.
func (m *Method) IsConstructor() bool {
	return m.Name == ConstructorName
}

func (m *Method) String() string {
	return m.Name + m.Descriptor
}

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

// Class is a loaded class or interface.
type Class struct {
	Name       string // internal form, e.g. java/lang/String
	Super      string // empty only for java/lang/Object
	Interfaces []string
	Access     AccessFlags
	Fields     []*Field
	Methods    []*Method
	Pool       *ConstantPool
}

// NewClass creates an empty public class with a fresh constant pool.
func NewClass(name, super string) *Class {
	return &Class{
		Name:   name,
		Super:  super,
		Access: AccPublic | AccSynchronized,
		Pool:   NewConstantPool(),
	}
}

// IsInterface reports whether the class is an interface.
func (c *Class) IsInterface() bool {
	return c.Access.Has(AccInterface)
}

// Package returns the runtime package of the class: its name up to the last
// slash.
func (c *Class) Package() string {
	return PackageOf(c.Name)
}

// PackageOf returns the package part of an internal class name.
func PackageOf(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

// Field returns the declared field with the given name and descriptor.
func (c *Class) Field(name, desc string) *Field {
	for _, f := range c.Fields {
		if f.Name == name && f.Descriptor == desc {
			return f
		}
	}
	return nil
}

// Method returns the declared method with the given name and descriptor.
func (c *Class) Method(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// AddField declares a field.
func (c *Class) AddField(name, desc string, access AccessFlags) *Field {
	f := &Field{Name: name, Descriptor: desc, Access: access}
	c.Fields = append(c.Fields, f)
	return f
}

// AddMethod declares a method.
func (c *Class) AddMethod(m *Method) *Method {
	c.Methods = append(c.Methods, m)
	return m
}
