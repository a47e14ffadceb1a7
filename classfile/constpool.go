package classfile

import (
	"errors"
	"fmt"
)

// Tag identifies the kind of a constant pool entry.
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagInvokeDynamic      Tag = 18
)

var tagNames = map[Tag]string{
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagInvokeDynamic:      "InvokeDynamic",
}

func (t Tag) String() string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Constant is one constant pool entry. Which fields are meaningful depends on
// the tag: Text for Utf8; Int/Long/Float/Double for numeric literals; Ref1 and
// Ref2 for the indices an entry points at (class+name-and-type, name+type,
// bootstrap+name-and-type, kind+reference).
type Constant struct {
	Tag    Tag
	Text   string
	Int    int32
	Long   int64
	Float  float32
	Double float64
	Ref1   int
	Ref2   int
}

// ErrBadConstant is wrapped by accessor failures.
var ErrBadConstant = errors.New("bad constant pool reference")

// ConstantPool is a 1-based constant table. Long and Double entries occupy
// two indices; the second is unusable.
type ConstantPool struct {
	entries []Constant // entries[0] is unused
	index   map[Constant]int
}

// NewConstantPool creates an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{
		entries: make([]Constant, 1, 32),
		index:   make(map[Constant]int),
	}
}

// Size returns one more than the highest valid index.
func (p *ConstantPool) Size() int {
	return len(p.entries)
}

// Get returns the entry at index i.
func (p *ConstantPool) Get(i int) (Constant, error) {
	if i <= 0 || i >= len(p.entries) || p.entries[i].Tag == 0 {
		return Constant{}, fmt.Errorf("%w: index %d out of range", ErrBadConstant, i)
	}
	return p.entries[i], nil
}

// Tag returns the tag at index i, or zero for an invalid index.
func (p *ConstantPool) Tag(i int) Tag {
	c, err := p.Get(i)
	if err != nil {
		return 0
	}
	return c.Tag
}

// Entries returns a copy of the backing table, index 0 included.
func (p *ConstantPool) Entries() []Constant {
	out := make([]Constant, len(p.entries))
	copy(out, p.entries)
	return out
}

// add appends c, reusing an existing identical entry.
func (p *ConstantPool) add(c Constant) int {
	if idx, ok := p.index[c]; ok {
		return idx
	}
	idx := len(p.entries)
	p.entries = append(p.entries, c)
	if c.Tag == TagLong || c.Tag == TagDouble {
		p.entries = append(p.entries, Constant{})
	}
	p.index[c] = idx
	return idx
}

// AddUtf8 adds a string entry.
func (p *ConstantPool) AddUtf8(s string) int {
	return p.add(Constant{Tag: TagUtf8, Text: s})
}

// AddInteger adds an int literal.
func (p *ConstantPool) AddInteger(v int32) int {
	return p.add(Constant{Tag: TagInteger, Int: v})
}

// AddFloat adds a float literal.
func (p *ConstantPool) AddFloat(v float32) int {
	return p.add(Constant{Tag: TagFloat, Float: v})
}

// AddLong adds a long literal.
func (p *ConstantPool) AddLong(v int64) int {
	return p.add(Constant{Tag: TagLong, Long: v})
}

// AddDouble adds a double literal.
func (p *ConstantPool) AddDouble(v float64) int {
	return p.add(Constant{Tag: TagDouble, Double: v})
}

// AddClass adds a class reference by internal name or array descriptor.
func (p *ConstantPool) AddClass(name string) int {
	return p.add(Constant{Tag: TagClass, Ref1: p.AddUtf8(name)})
}

// AddString adds a string literal.
func (p *ConstantPool) AddString(s string) int {
	return p.add(Constant{Tag: TagString, Ref1: p.AddUtf8(s)})
}

// AddNameAndType adds a name/descriptor pair.
func (p *ConstantPool) AddNameAndType(name, desc string) int {
	return p.add(Constant{Tag: TagNameAndType, Ref1: p.AddUtf8(name), Ref2: p.AddUtf8(desc)})
}

// AddFieldref adds a field reference.
func (p *ConstantPool) AddFieldref(owner, name, desc string) int {
	return p.add(Constant{Tag: TagFieldref, Ref1: p.AddClass(owner), Ref2: p.AddNameAndType(name, desc)})
}

// AddMethodref adds a class method reference.
func (p *ConstantPool) AddMethodref(owner, name, desc string) int {
	return p.add(Constant{Tag: TagMethodref, Ref1: p.AddClass(owner), Ref2: p.AddNameAndType(name, desc)})
}

// AddInterfaceMethodref adds an interface method reference.
func (p *ConstantPool) AddInterfaceMethodref(owner, name, desc string) int {
	return p.add(Constant{Tag: TagInterfaceMethodref, Ref1: p.AddClass(owner), Ref2: p.AddNameAndType(name, desc)})
}

// AddMethodType adds a method type literal.
func (p *ConstantPool) AddMethodType(desc string) int {
	return p.add(Constant{Tag: TagMethodType, Ref1: p.AddUtf8(desc)})
}

// AddMethodHandle adds a method handle literal of the given reference kind.
func (p *ConstantPool) AddMethodHandle(kind int, ref int) int {
	return p.add(Constant{Tag: TagMethodHandle, Ref1: kind, Ref2: ref})
}

// AddInvokeDynamic adds a call site specifier.
func (p *ConstantPool) AddInvokeDynamic(bootstrap int, name, desc string) int {
	return p.add(Constant{Tag: TagInvokeDynamic, Ref1: bootstrap, Ref2: p.AddNameAndType(name, desc)})
}

// ---------------------------------------------------------------------------
// Typed accessors
// ---------------------------------------------------------------------------

func (p *ConstantPool) expect(i int, tags ...Tag) (Constant, error) {
	c, err := p.Get(i)
	if err != nil {
		return c, err
	}
	for _, t := range tags {
		if c.Tag == t {
			return c, nil
		}
	}
	return c, fmt.Errorf("%w: index %d is %s, want %v", ErrBadConstant, i, c.Tag, tags)
}

// Utf8 returns the text of a Utf8 entry.
func (p *ConstantPool) Utf8(i int) (string, error) {
	c, err := p.expect(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

// ClassName returns the name of a Class entry.
func (p *ConstantPool) ClassName(i int) (string, error) {
	c, err := p.expect(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.Ref1)
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (p *ConstantPool) NameAndType(i int) (name, desc string, err error) {
	c, err := p.expect(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.Utf8(c.Ref1); err != nil {
		return "", "", err
	}
	if desc, err = p.Utf8(c.Ref2); err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// MemberRef is a resolved field or method reference.
type MemberRef struct {
	Tag        Tag
	Owner      string
	Name       string
	Descriptor string
}

func (m MemberRef) String() string {
	if m.Tag == TagFieldref {
		return m.Owner + "." + m.Name + " " + m.Descriptor
	}
	return m.Owner + "." + m.Name + m.Descriptor
}

// MemberRef resolves a Fieldref, Methodref or InterfaceMethodref entry.
func (p *ConstantPool) MemberRef(i int) (MemberRef, error) {
	c, err := p.expect(i, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return MemberRef{}, err
	}
	owner, err := p.ClassName(c.Ref1)
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := p.NameAndType(c.Ref2)
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Tag: c.Tag, Owner: owner, Name: name, Descriptor: desc}, nil
}

// InvokeDynamic returns the name and descriptor of a call site specifier.
func (p *ConstantPool) InvokeDynamic(i int) (name, desc string, err error) {
	c, err := p.expect(i, TagInvokeDynamic)
	if err != nil {
		return "", "", err
	}
	return p.NameAndType(c.Ref2)
}

// StringValue returns the literal text of a String entry.
func (p *ConstantPool) StringValue(i int) (string, error) {
	c, err := p.expect(i, TagString)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.Ref1)
}
