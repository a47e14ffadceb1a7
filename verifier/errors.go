package verifier

import (
	"fmt"
	"strings"
)

// Rejection reports that the verified code is unsound. It is an expected
// outcome and becomes a Rejected verdict.
//
// Notes are appended as the rejection travels outwards; the Diagnostic is
// attached once, when the verdict is built.
type Rejection struct {
	Message    string
	Notes      []string
	Diagnostic *Diagnostic
}

func rejectf(format string, args ...any) *Rejection {
	return &Rejection{Message: fmt.Sprintf(format, args...)}
}

// Note appends context to the rejection message and returns it.
func (r *Rejection) Note(format string, args ...any) *Rejection {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
	return r
}

func (r *Rejection) Error() string {
	if len(r.Notes) == 0 {
		return r.Message
	}
	return r.Message + " (" + strings.Join(r.Notes, "; ") + ")"
}

// InternalError reports a broken verifier invariant, or a hierarchy lookup
// that earlier passes promised would succeed. Callers should treat it as
// fatal.
type InternalError struct {
	Message string
	Err     error
}

func internalf(format string, args ...any) *InternalError {
	return &InternalError{Message: fmt.Sprintf(format, args...)}
}

// wrapInternal wraps a collaborator failure.
func wrapInternal(err error, format string, args ...any) *InternalError {
	return &InternalError{Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *InternalError) Error() string {
	if e.Err != nil {
		return "internal verifier error: " + e.Message + ": " + e.Err.Error()
	}
	return "internal verifier error: " + e.Message
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

// Diagnostic describes where a rejection happened: the offending
// instruction, the frame it saw, and the most recent instructions of the
// execution chain that led there (oldest first).
type Diagnostic struct {
	Instruction string
	Offset      int
	Stack       string
	Locals      string
	Chain       []string
	Elided      int
}

func (d *Diagnostic) String() string {
	if d == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Instruction: %s\n", d.Instruction)
	fmt.Fprintf(&sb, "Stack: %s\n", d.Stack)
	fmt.Fprintf(&sb, "Locals: %s\n", d.Locals)
	if len(d.Chain) > 0 || d.Elided > 0 {
		sb.WriteString("Execution chain:\n")
		if d.Elided > 0 {
			fmt.Fprintf(&sb, "  ... %d earlier instructions\n", d.Elided)
		}
		for _, c := range d.Chain {
			fmt.Fprintf(&sb, "  %s\n", c)
		}
	}
	return sb.String()
}

// diagContext accumulates what a Diagnostic needs while a step runs. Nothing
// is formatted until a rejection is materialized.
type diagContext struct {
	node  int
	frame *Frame
	chain *chain
	set   bool
}

func (d *diagContext) enter(node int, frame *Frame, c *chain) {
	d.node, d.frame, d.chain, d.set = node, frame, c, true
}

func (d *diagContext) materialize(g *Graph, limit int) *Diagnostic {
	if !d.set {
		return nil
	}
	ins := g.Instruction(d.node)
	diag := &Diagnostic{
		Instruction: ins.String(),
		Offset:      ins.Pos,
	}
	if d.frame != nil {
		diag.Stack = d.frame.Stack.String()
		diag.Locals = d.frame.Locals.String()
	}
	nodes, elided := d.chain.tail(limit)
	diag.Elided = elided
	for _, n := range nodes {
		diag.Chain = append(diag.Chain, g.Instruction(n).String())
	}
	return diag
}
