package verifier

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/bcverify/classfile"
)

// run holds the state of one method verification. Nothing in it is shared
// between runs, so methods verify concurrently.
type run struct {
	id     string
	h      Hierarchy
	lat    lattice
	class  *classfile.Class
	method *classfile.Method
	desc   classfile.MethodType
	pool   *classfile.ConstantPool
	opts   Options
	log    commonlog.Logger
	graph  *Graph

	// in and out hold, per node, the frames seen on entry and left on exit
	// for each call-chain key.
	in  []map[CallKey]*Frame
	out []map[CallKey]*Frame

	// uninitThis seeds Frame.ThisUninitialized of the entry frame.
	uninitThis bool

	warnings []string
	diag     diagContext
	steps    int
}

func newRun(id string, h Hierarchy, class *classfile.Class, m *classfile.Method, desc classfile.MethodType, opts Options) *run {
	return &run{
		id:         id,
		h:          h,
		lat:        lattice{h: h},
		class:      class,
		method:     m,
		desc:       desc,
		pool:       class.Pool,
		opts:       opts,
		log:        opts.Logger,
		uninitThis: m.IsConstructor() && class.Name != classfile.ObjectClass,
	}
}

// attach installs the graph and sizes the frame tables.
func (r *run) attach(g *Graph) {
	r.graph = g
	r.in = make([]map[CallKey]*Frame, g.Len())
	r.out = make([]map[CallKey]*Frame, g.Len())
	for i := range r.in {
		r.in[i] = make(map[CallKey]*Frame)
		r.out[i] = make(map[CallKey]*Frame)
	}
}

// initialFrame is the frame the first instruction sees: the receiver, then
// the arguments, then nothing.
func (r *run) initialFrame() *Frame {
	f := NewFrame(r.method.MaxStack, r.method.MaxLocals)
	f.ThisUninitialized = r.uninitThis
	slot := 0
	if !r.method.IsStatic() {
		if r.uninitThis {
			f.Locals.Set(0, UninitializedThis(r.class.Name))
		} else {
			f.Locals.Set(0, Reference(r.class.Name))
		}
		slot++
	}
	for _, arg := range r.desc.Args {
		t := FromFieldType(arg)
		f.Locals.Set(slot, t)
		slot++
		if t.Size() == 2 {
			f.Locals.Set(slot, Unknown)
			slot++
		}
	}
	return f
}

func (r *run) warnf(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
	r.log.Warningf("%s: %s.%s: "+format, append([]any{r.id, r.class.Name, r.method}, args...)...)
}
