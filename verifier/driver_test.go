package verifier

import (
	"testing"

	"github.com/chazu/bcverify/classfile"
)

// newTestRun prepares a run for m with its graph attached, without solving.
func newTestRun(s *subject, m *classfile.Method) *run {
	s.t.Helper()
	prep, err := precheck(s.class, m)
	if err != nil {
		s.t.Fatalf("precheck(%s): %v", m, err)
	}
	g, err := NewGraph(prep.code, m.Handlers, s.class.Pool, s.opts.StrictSubroutineHandlers)
	if err != nil {
		s.t.Fatalf("NewGraph(%s): %v", m, err)
	}
	r := newRun("test", s.repo, s.class, m, prep.desc, s.opts)
	r.attach(g)
	return r
}

func findCase(t *testing.T, cases []methodCase, name string) methodCase {
	t.Helper()
	for _, tc := range cases {
		if tc.name == name {
			return tc
		}
	}
	t.Fatalf("no method case named %q", name)
	return methodCase{}
}

func TestExecuteSameFrameTwice(t *testing.T) {
	s := newSubject(t, "app/Main", classfile.ObjectClass)
	tc := findCase(t, acceptedMethods, "int arithmetic")
	r := newTestRun(s, s.method(tc.method, tc.desc, tc.access, tc.stack, tc.locals, tc.code))

	in := r.initialFrame()
	changed, err := r.execute(0, in, nil)
	if err != nil || !changed {
		t.Fatalf("first execute = %v, %v; want a change", changed, err)
	}
	out := r.out[0][TopLevel].Clone()

	changed, err = r.execute(0, in, nil)
	if err != nil || changed {
		t.Errorf("second execute = %v, %v; want no change", changed, err)
	}
	if !r.out[0][TopLevel].Equal(out) {
		t.Errorf("out-frame moved from %s to %s", out, r.out[0][TopLevel])
	}
	if r.steps != 1 {
		t.Errorf("steps = %d, want the second call to stop at the merge", r.steps)
	}
}

func TestExecuteAtFixedPoint(t *testing.T) {
	for _, name := range []string{
		"counting loop",
		"constructor call initializes every alias",
		"constructor calls super on both branches",
		"branches join to the common superclass",
		"exception handler",
	} {
		t.Run(name, func(t *testing.T) {
			s := newSubject(t, "app/Main", classfile.ObjectClass)
			tc := findCase(t, acceptedMethods, name)
			r := newTestRun(s, s.method(tc.method, tc.desc, tc.access, tc.stack, tc.locals, tc.code, tc.handlers...))
			if err := r.solve(); err != nil {
				t.Fatalf("solve: %v", err)
			}
			for n := range r.in {
				in, ok := r.in[n][TopLevel]
				if !ok {
					continue
				}
				changed, err := r.execute(n, in.Clone(), nil)
				if err != nil || changed {
					t.Errorf("re-executing %s = %v, %v; want no change", r.graph.Instruction(n), changed, err)
				}
			}
		})
	}
}

func TestConstructorInitializesAliases(t *testing.T) {
	s := newSubject(t, "app/Main", classfile.ObjectClass)
	tc := findCase(t, acceptedMethods, "constructor call initializes every alias")
	r := newTestRun(s, s.method(tc.method, tc.desc, tc.access, tc.stack, tc.locals, tc.code))
	if err := r.solve(); err != nil {
		t.Fatalf("solve: %v", err)
	}

	// new, dup, astore_0, aload_0, invokespecial
	out := r.out[4][TopLevel]
	dog := Reference("zoo/Dog")
	if out.Locals.Get(0) != dog {
		t.Errorf("local 0 after the constructor = %s, want %s", out.Locals.Get(0), dog)
	}
	if out.Stack.Size() != 1 || out.Stack.Peek(0) != dog {
		t.Errorf("stack after the constructor = %s, want [%s]", out.Stack, dog)
	}
}
