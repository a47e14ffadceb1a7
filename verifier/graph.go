package verifier

import (
	"github.com/chazu/bcverify/classfile"
)

// Graph is the instruction graph of one method: one node per instruction,
// addressed by index, with static successors, the exception handler index
// and the subroutine partition. It is immutable once built and may be read
// by concurrent runs.
type Graph struct {
	code     []classfile.Instruction
	codeLen  int
	index    map[int]int // byte offset -> node
	succ     [][]int
	handlers *handlerIndex
	subs     *subroutines
}

// NewGraph builds the graph for decoded code and runs subroutine analysis.
// A structural violation is returned as a *Rejection.
func NewGraph(code []classfile.Instruction, table []classfile.Handler, pool *classfile.ConstantPool, strictHandlers bool) (*Graph, error) {
	if len(code) == 0 {
		return nil, internalf("building a graph for empty code")
	}
	last := code[len(code)-1]
	g := &Graph{
		code:    code,
		codeLen: last.Next(),
		index:   make(map[int]int, len(code)),
		succ:    make([][]int, len(code)),
	}
	for i := range code {
		g.index[code[i].Pos] = i
	}
	for i := range code {
		succ, err := g.staticSuccessors(i)
		if err != nil {
			return nil, err
		}
		g.succ[i] = succ
	}

	hi, err := newHandlerIndex(g, table, pool)
	if err != nil {
		return nil, err
	}
	g.handlers = hi

	subs, err := analyzeSubroutines(g, strictHandlers)
	if err != nil {
		return nil, err
	}
	g.subs = subs
	return g, nil
}

// Len returns the number of instructions.
func (g *Graph) Len() int {
	return len(g.code)
}

// Instruction returns instruction n.
func (g *Graph) Instruction(n int) *classfile.Instruction {
	return &g.code[n]
}

// IndexOf maps a byte offset to its node.
func (g *Graph) IndexOf(pos int) (int, bool) {
	n, ok := g.index[pos]
	return n, ok
}

// Successors returns the static successors of node n. A subroutine call
// leads to its target; a return from subroutine has none, since its
// destination depends on the call chain.
func (g *Graph) Successors(n int) []int {
	return g.succ[n]
}

func (g *Graph) node(pos int) (int, error) {
	n, ok := g.index[pos]
	if !ok {
		return 0, internalf("no instruction at offset %d", pos)
	}
	return n, nil
}

func (g *Graph) next(n int) (int, error) {
	return g.node(g.code[n].Next())
}

func (g *Graph) staticSuccessors(n int) ([]int, error) {
	ins := &g.code[n]
	op := ins.Op
	switch {
	case op == classfile.OpRet, op.IsReturn(), op == classfile.OpAthrow:
		return nil, nil
	case op.IsJsr(), op.IsGoto():
		t, err := g.node(ins.Target)
		if err != nil {
			return nil, err
		}
		return []int{t}, nil
	case op.IsSwitch():
		return g.nodes(ins.BranchTargets())
	case op.IsConditional():
		next, err := g.next(n)
		if err != nil {
			return nil, err
		}
		t, err := g.node(ins.Target)
		if err != nil {
			return nil, err
		}
		return dedupe([]int{next, t}), nil
	}
	next, err := g.next(n)
	if err != nil {
		return nil, err
	}
	return []int{next}, nil
}

// subroutineSuccessors is the successor relation used to color subroutines:
// a call continues at its physical successor instead of entering the callee.
func (g *Graph) subroutineSuccessors(n int) ([]int, error) {
	if g.code[n].Op.IsJsr() {
		next, err := g.next(n)
		if err != nil {
			return nil, err
		}
		return []int{next}, nil
	}
	return g.succ[n], nil
}

func (g *Graph) nodes(offsets []int) ([]int, error) {
	out := make([]int, 0, len(offsets))
	for _, off := range offsets {
		n, err := g.node(off)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return dedupe(out), nil
}

func dedupe(ns []int) []int {
	out := make([]int, 0, len(ns))
	seen := make(map[int]bool, len(ns))
	for _, n := range ns {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// ReturnTargets lists the possible destinations of the return from
// subroutine at node n: the physical successor of every call into its
// subroutine.
func (g *Graph) ReturnTargets(n int) ([]int, error) {
	if g.code[n].Op != classfile.OpRet {
		return nil, internalf("%s is not a return from subroutine", &g.code[n])
	}
	sub, err := g.subs.of(n)
	if err != nil {
		return nil, err
	}
	if sub.isTopLevel() {
		return nil, internalf("%s returns from the top level", &g.code[n])
	}
	out := make([]int, 0, len(sub.callers))
	for _, c := range sub.callers {
		next, err := g.next(c)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
	}
	return out, nil
}

// handlersOf returns the handlers protecting node n.
func (g *Graph) handlersOf(n int) []exceptionHandler {
	return g.handlers.protecting(n)
}
