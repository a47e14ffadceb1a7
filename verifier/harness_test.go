package verifier

import (
	"strings"
	"testing"

	"github.com/chazu/bcverify/classfile"
)

const (
	pub       = classfile.AccPublic
	pubStatic = classfile.AccPublic | classfile.AccStatic
	native    = classfile.AccPublic | classfile.AccNative
)

// testHierarchy returns the bootstrap classes plus a small zoo in another
// package than the classes under test.
func testHierarchy() *classfile.Repository {
	r := classfile.Bootstrap()

	animal := classfile.NewClass("zoo/Animal", classfile.ObjectClass)
	animal.AddField("name", "Ljava/lang/String;", classfile.AccProtected)
	animal.AddField("age", "I", pub)
	animal.AddField("count", "I", pubStatic)
	animal.AddField("KINGDOM", "Ljava/lang/String;", pubStatic|classfile.AccFinal)
	animal.AddMethod(&classfile.Method{Name: "<init>", Descriptor: "()V", Access: native})
	animal.AddMethod(&classfile.Method{Name: "speak", Descriptor: "()V", Access: native})
	animal.AddMethod(&classfile.Method{Name: "groom", Descriptor: "()V", Access: classfile.AccProtected | classfile.AccNative})
	animal.AddMethod(&classfile.Method{Name: "secret", Descriptor: "()V", Access: classfile.AccPrivate | classfile.AccNative})
	animal.AddMethod(&classfile.Method{Name: "create", Descriptor: "()Lzoo/Animal;", Access: pubStatic | classfile.AccNative})
	animal.AddMethod(&classfile.Method{Name: "feed", Descriptor: "(Lzoo/Animal;J)V", Access: pubStatic | classfile.AccNative})
	r.Register(animal)

	dog := classfile.NewClass("zoo/Dog", "zoo/Animal")
	dog.AddMethod(&classfile.Method{Name: "<init>", Descriptor: "()V", Access: native})
	r.Register(dog)

	cat := classfile.NewClass("zoo/Cat", "zoo/Animal")
	cat.AddMethod(&classfile.Method{Name: "<init>", Descriptor: "()V", Access: native})
	r.Register(cat)

	named := classfile.NewClass("zoo/Named", classfile.ObjectClass)
	named.Access = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	named.AddMethod(&classfile.Method{Name: "label", Descriptor: "()Ljava/lang/String;", Access: pub | classfile.AccAbstract})
	r.Register(named)

	keeper := classfile.NewClass("zoo/Keeper", classfile.ObjectClass)
	keeper.Access = classfile.AccSynchronized
	keeper.AddMethod(&classfile.Method{Name: "<init>", Descriptor: "()V", Access: native})
	r.Register(keeper)
	return r
}

// subject is a class under test registered in the test hierarchy.
type subject struct {
	t     *testing.T
	repo  *classfile.Repository
	class *classfile.Class
	opts  Options
}

func newSubject(t *testing.T, name, super string) *subject {
	t.Helper()
	repo := testHierarchy()
	c := classfile.NewClass(name, super)
	c.AddField("size", "I", pub)
	repo.Register(c)
	opts := DefaultOptions()
	opts.Workers = 2
	return &subject{t: t, repo: repo, class: c, opts: opts}
}

// handlerSpec names an exception table entry by labels.
type handlerSpec struct {
	start, end, target string
	catch              string
}

// method assembles build's code into a new method of the subject.
func (s *subject) method(name, desc string, access classfile.AccessFlags, maxStack, maxLocals int,
	build func(b *classfile.CodeBuilder, p *classfile.ConstantPool), handlers ...handlerSpec) *classfile.Method {
	s.t.Helper()
	b := classfile.NewCodeBuilder()
	build(b, s.class.Pool)
	code, err := b.Bytes()
	if err != nil {
		s.t.Fatalf("assembling %s%s: %v", name, desc, err)
	}
	m := &classfile.Method{
		Name:       name,
		Descriptor: desc,
		Access:     access,
		MaxStack:   maxStack,
		MaxLocals:  maxLocals,
		Code:       code,
	}
	for _, h := range handlers {
		label := func(l string) int {
			off, ok := b.Offset(l)
			if !ok {
				s.t.Fatalf("handler label %q is not defined", l)
			}
			return off
		}
		entry := classfile.Handler{Start: label(h.start), Target: label(h.target)}
		if h.end == "" {
			entry.End = len(code)
		} else {
			entry.End = label(h.end)
		}
		if h.catch != "" {
			entry.CatchType = s.class.Pool.AddClass(h.catch)
		}
		m.Handlers = append(m.Handlers, entry)
	}
	return s.class.AddMethod(m)
}

func (s *subject) verify(m *classfile.Method) *Result {
	s.t.Helper()
	res, err := Verify(s.repo, s.class, m, s.opts)
	if err != nil {
		s.t.Fatalf("Verify(%s): unexpected error: %v", m, err)
	}
	return res
}

func wantAccepted(t *testing.T, res *Result) {
	t.Helper()
	if res.Status != Accepted {
		t.Fatalf("%s: status = %s, want accepted\n%s", res.Method, res.Status, res)
	}
}

func wantRejected(t *testing.T, res *Result, substr string) {
	t.Helper()
	if res.Status != Rejected {
		t.Fatalf("%s: status = %s, want rejected\n%s", res.Method, res.Status, res)
	}
	if !strings.Contains(res.Message, substr) {
		t.Errorf("%s: message %q does not contain %q", res.Method, res.Message, substr)
	}
}

func wantNotYet(t *testing.T, res *Result, substr string) {
	t.Helper()
	if res.Status != NotYet {
		t.Fatalf("%s: status = %s, want not yet verified\n%s", res.Method, res.Status, res)
	}
	if !strings.Contains(res.Message, substr) {
		t.Errorf("%s: message %q does not contain %q", res.Method, res.Message, substr)
	}
}
