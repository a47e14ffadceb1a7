package verifier

// Frame pairs one operand stack with one local variable array. It is the
// unit of data-flow state stored per instruction and call-chain key.
type Frame struct {
	Stack  *Stack
	Locals *Locals

	// ThisUninitialized is set while a constructor's receiver has not been
	// through a constructor call on this path.
	ThisUninitialized bool
}

// NewFrame creates an empty frame for the given limits.
func NewFrame(maxStack, maxLocals int) *Frame {
	return &Frame{Stack: NewStack(maxStack), Locals: NewLocals(maxLocals)}
}

// Clone copies both containers. Lattice values are immutable and shared.
func (f *Frame) Clone() *Frame {
	return &Frame{Stack: f.Stack.Clone(), Locals: f.Locals.Clone(), ThisUninitialized: f.ThisUninitialized}
}

// Equal reports whether both containers match.
func (f *Frame) Equal(o *Frame) bool {
	return f.ThisUninitialized == o.ThisUninitialized &&
		f.Stack.Equal(o.Stack) && f.Locals.Equal(o.Locals)
}

// Merge joins o into f and reports whether f changed. The receiver stays
// uninitialized if it is on either side.
func (f *Frame) Merge(o *Frame, l lattice) (bool, error) {
	sc, err := f.Stack.Merge(o.Stack, l)
	if err != nil {
		return false, err
	}
	lc, err := f.Locals.Merge(o.Locals, l)
	if err != nil {
		return false, err
	}
	tc := o.ThisUninitialized && !f.ThisUninitialized
	f.ThisUninitialized = f.ThisUninitialized || o.ThisUninitialized
	return sc || lc || tc, nil
}

// InitializeObject replaces marker with its class type in both containers.
func (f *Frame) InitializeObject(marker Type) {
	f.Stack.InitializeObject(marker)
	f.Locals.InitializeObject(marker)
}

func (f *Frame) String() string {
	return "stack " + f.Stack.String() + " locals " + f.Locals.String()
}
