// Package fixture loads class sets described in YAML. Method bodies are
// written in a small assembly language and assembled into code arrays, so
// a fixture reads like a disassembly listing.
package fixture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chazu/bcverify/classfile"
)

// File is one fixture document.
type File struct {
	Classes []ClassDef `yaml:"classes"`
}

// ClassDef declares a class or interface.
type ClassDef struct {
	Name       string      `yaml:"name"`
	Super      string      `yaml:"super"`
	Interfaces []string    `yaml:"interfaces"`
	Flags      []string    `yaml:"flags"`
	Fields     []FieldDef  `yaml:"fields"`
	Methods    []MethodDef `yaml:"methods"`
}

// FieldDef declares a field.
type FieldDef struct {
	Name  string   `yaml:"name"`
	Desc  string   `yaml:"desc"`
	Flags []string `yaml:"flags"`
}

// MethodDef declares a method. Code is kept as a node so assembly errors
// can point at lines of the fixture file.
type MethodDef struct {
	Name      string       `yaml:"name"`
	Desc      string       `yaml:"desc"`
	Flags     []string     `yaml:"flags"`
	MaxStack  int          `yaml:"max_stack"`
	MaxLocals int          `yaml:"max_locals"`
	Code      yaml.Node    `yaml:"code"`
	Handlers  []HandlerDef `yaml:"handlers"`

	// Expect optionally names the verdict the method should get
	// ("accepted", "rejected" or "not yet verified").
	Expect string `yaml:"expect"`
}

// HandlerDef is an exception table entry in terms of code labels. An empty
// Type catches everything.
type HandlerDef struct {
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
	Handler string `yaml:"handler"`
	Type    string `yaml:"type"`
}

// Set is a loaded fixture: a repository holding the bootstrap classes and
// every fixture class, and the fixture classes in declaration order.
type Set struct {
	Repo    *classfile.Repository
	Classes []*classfile.Class

	// Expect maps "Class.nameDescriptor" to the verdict the fixture
	// expects, for methods that declare one.
	Expect map[string]string
}

// Key returns the Expect key of a method.
func Key(class *classfile.Class, m *classfile.Method) string {
	return class.Name + "." + m.Name + m.Descriptor
}

// Class returns the fixture class with the given name.
func (s *Set) Class(name string) *classfile.Class {
	for _, c := range s.Classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Parse decodes a fixture document. Unknown keys are errors.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, err
	}
	return &f, nil
}

// Load parses one fixture document into a fresh repository. Name is used in
// error messages.
func Load(name string, data []byte) (*Set, error) {
	set := newSet()
	if err := set.add(name, data); err != nil {
		return nil, err
	}
	return set, nil
}

// LoadFile loads fixture files into one repository.
func LoadFile(paths ...string) (*Set, error) {
	set := newSet()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		if err := set.add(path, data); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func newSet() *Set {
	return &Set{Repo: classfile.Bootstrap(), Expect: make(map[string]string)}
}

func (s *Set) add(name string, data []byte) error {
	f, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for i := range f.Classes {
		def := &f.Classes[i]
		if s.Class(def.Name) != nil {
			return fmt.Errorf("%s: class %s defined twice", name, def.Name)
		}
		c, err := def.Build()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		s.Repo.Register(c)
		s.Classes = append(s.Classes, c)
		for j, md := range def.Methods {
			if md.Expect != "" {
				s.Expect[Key(c, c.Methods[j])] = md.Expect
			}
		}
	}
	return nil
}

// Build turns the declaration into a class with its own constant pool.
func (d *ClassDef) Build() (*classfile.Class, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("class without a name")
	}
	super := d.Super
	if super == "" && d.Name != classfile.ObjectClass {
		super = classfile.ObjectClass
	}
	c := classfile.NewClass(d.Name, super)
	c.Interfaces = d.Interfaces
	if len(d.Flags) > 0 {
		flags, err := classfile.ParseAccessFlags(d.Flags)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", d.Name, err)
		}
		c.Access = flags
	}

	for _, fd := range d.Fields {
		flags, err := classfile.ParseAccessFlags(fd.Flags)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", d.Name, fd.Name, err)
		}
		if _, err := classfile.ParseFieldType(fd.Desc); err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", d.Name, fd.Name, err)
		}
		c.AddField(fd.Name, fd.Desc, flags)
	}

	for i := range d.Methods {
		m, err := d.Methods[i].build(c.Pool)
		if err != nil {
			return nil, fmt.Errorf("method %s.%s%s: %w", d.Name, d.Methods[i].Name, d.Methods[i].Desc, err)
		}
		c.AddMethod(m)
	}
	return c, nil
}

func (md *MethodDef) build(pool *classfile.ConstantPool) (*classfile.Method, error) {
	flags, err := classfile.ParseAccessFlags(md.Flags)
	if err != nil {
		return nil, err
	}
	m := &classfile.Method{
		Name:       md.Name,
		Descriptor: md.Desc,
		Access:     flags,
		MaxStack:   md.MaxStack,
		MaxLocals:  md.MaxLocals,
	}
	if !m.HasCode() {
		if md.Code.Value != "" || len(md.Handlers) > 0 {
			return nil, fmt.Errorf("%s method has code", flags)
		}
		return m, nil
	}
	if md.Code.Value == "" {
		return nil, fmt.Errorf("no code; mark the method native or abstract")
	}

	asm, err := Assemble(md.Code.Value, pool)
	if err != nil {
		var se *SyntaxError
		if errors.As(err, &se) {
			se.Line += md.codeLine() - 1
		}
		return nil, err
	}
	m.Code = asm.Code

	for _, hd := range md.Handlers {
		h, err := hd.build(asm, pool)
		if err != nil {
			return nil, err
		}
		m.Handlers = append(m.Handlers, h)
	}
	return m, nil
}

// codeLine returns the fixture line holding the first line of code.
func (md *MethodDef) codeLine() int {
	line := md.Code.Line
	if md.Code.Style&(yaml.LiteralStyle|yaml.FoldedStyle) != 0 {
		line++
	}
	if line < 1 {
		line = 1
	}
	return line
}

func (hd HandlerDef) build(asm *Assembly, pool *classfile.ConstantPool) (classfile.Handler, error) {
	var h classfile.Handler
	for _, l := range []struct {
		label string
		dst   *int
	}{{hd.Start, &h.Start}, {hd.End, &h.End}, {hd.Handler, &h.Target}} {
		off, ok := asm.Labels[l.label]
		if !ok {
			return h, fmt.Errorf("exception handler refers to undefined label %q", l.label)
		}
		*l.dst = off
	}
	if hd.Type != "" && hd.Type != "any" {
		h.CatchType = pool.AddClass(hd.Type)
	}
	return h, nil
}
