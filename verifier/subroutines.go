package verifier

import (
	"sort"

	"github.com/chazu/bcverify/classfile"
)

// subroutine is one region of the partition. The top level is modeled as a
// subroutine with no leader, slot or exit.
type subroutine struct {
	leader  int   // entry node, -1 for the top level
	slot    int   // local holding the return address, -1 for the top level
	exit    int   // the single return from subroutine, -1 for the top level
	members []int // sorted node indices
	callers []int // calls targeting the leader
	calls   []int // subroutines entered from this one, as indices into subroutines.all
}

func (s *subroutine) isTopLevel() bool {
	return s.leader < 0
}

// subroutines partitions the instructions into the top level and disjoint
// subroutines. Instructions reached by no region are dead code.
type subroutines struct {
	all      []*subroutine // all[0] is the top level
	owner    []int         // node -> index into all, -1 for dead code
	byLeader map[int]int
}

// of returns the region node n belongs to.
func (s *subroutines) of(n int) (*subroutine, error) {
	if n < 0 || n >= len(s.owner) || s.owner[n] < 0 {
		return nil, internalf("node %d is dead code and belongs to no subroutine", n)
	}
	return s.all[s.owner[n]], nil
}

// topLevel returns the top-level region.
func (s *subroutines) topLevel() *subroutine {
	return s.all[0]
}

func analyzeSubroutines(g *Graph, strictHandlers bool) (*subroutines, error) {
	s := &subroutines{
		all:      []*subroutine{{leader: -1, slot: -1, exit: -1}},
		owner:    make([]int, g.Len()),
		byLeader: make(map[int]int),
	}
	for i := range s.owner {
		s.owner[i] = -1
	}

	// Leaders are call targets, each owning its subroutine.
	for n := 0; n < g.Len(); n++ {
		ins := g.Instruction(n)
		if !ins.Op.IsJsr() {
			continue
		}
		leader := g.Successors(n)[0]
		idx, ok := s.byLeader[leader]
		if !ok {
			li := g.Instruction(leader)
			if li.Op != classfile.OpAstore && (li.Op < classfile.OpAstore0 || li.Op > classfile.OpAstore3) {
				return nil, rejectf("subroutine at %d does not begin by storing its return address: %s", li.Pos, li)
			}
			idx = len(s.all)
			s.all = append(s.all, &subroutine{leader: leader, slot: li.Index, exit: -1})
			s.byLeader[leader] = idx
		}
		s.all[idx].callers = append(s.all[idx].callers, n)
	}
	// Visit leaders in code order so diagnostics do not depend on map order.
	sort.Slice(s.all[1:], func(i, j int) bool { return s.all[1+i].leader < s.all[1+j].leader })
	for i := 1; i < len(s.all); i++ {
		s.byLeader[s.all[i].leader] = i
	}

	for idx, sub := range s.all {
		roots := []int{sub.leader}
		if sub.isTopLevel() {
			roots = append([]int{0}, g.handlers.entries()...)
		}
		if err := s.color(g, idx, roots); err != nil {
			return nil, err
		}
	}

	for _, sub := range s.all {
		if err := s.findExit(g, sub); err != nil {
			return nil, err
		}
		s.findCalls(g, sub)
	}

	if strictHandlers {
		for _, h := range g.handlers.handlers {
			for n := h.start; n < h.end; n++ {
				if s.owner[n] > 0 {
					return nil, rejectf("subroutine instruction %s is protected by the exception handler at %d",
						g.Instruction(n), g.Instruction(h.entry).Pos)
				}
			}
		}
	}

	if err := s.noRecursiveCalls(g, s.topLevel(), make(map[int]bool)); err != nil {
		return nil, err
	}
	return s, nil
}

// color runs a breadth-first traversal from roots and assigns every reached
// instruction to region idx.
func (s *subroutines) color(g *Graph, idx int, roots []int) error {
	seen := make(map[int]bool, len(roots))
	queue := make([]int, 0, len(roots))
	for _, r := range roots {
		if !seen[r] {
			seen[r] = true
			queue = append(queue, r)
		}
	}
	var members []int
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		members = append(members, n)
		succ, err := g.subroutineSuccessors(n)
		if err != nil {
			return err
		}
		for _, m := range succ {
			if !seen[m] {
				seen[m] = true
				queue = append(queue, m)
			}
		}
	}
	sort.Ints(members)
	for _, n := range members {
		if prev := s.owner[n]; prev >= 0 {
			return rejectf("instruction %s belongs to more than one subroutine (or to the top level and a subroutine)", g.Instruction(n))
		}
		s.owner[n] = idx
	}
	s.all[idx].members = members
	return nil
}

func (s *subroutines) findExit(g *Graph, sub *subroutine) error {
	for _, n := range sub.members {
		ins := g.Instruction(n)
		if ins.Op != classfile.OpRet {
			continue
		}
		if sub.isTopLevel() {
			return rejectf("return from subroutine %s outside of any subroutine", ins)
		}
		if sub.exit >= 0 {
			return rejectf("subroutine at %d has more than one exit: %s and %s",
				g.Instruction(sub.leader).Pos, g.Instruction(sub.exit), ins)
		}
		sub.exit = n
	}
	if sub.isTopLevel() {
		return nil
	}
	if sub.exit < 0 {
		return rejectf("subroutine at %d never returns", g.Instruction(sub.leader).Pos)
	}
	if ret := g.Instruction(sub.exit); ret.Index != sub.slot {
		return rejectf("subroutine at %d stores its return address in local %d but %s reads local %d",
			g.Instruction(sub.leader).Pos, sub.slot, ret, ret.Index)
	}
	return nil
}

func (s *subroutines) findCalls(g *Graph, sub *subroutine) {
	seen := make(map[int]bool)
	for _, n := range sub.members {
		if !g.Instruction(n).Op.IsJsr() {
			continue
		}
		callee := s.byLeader[g.Successors(n)[0]]
		if !seen[callee] {
			seen[callee] = true
			sub.calls = append(sub.calls, callee)
		}
	}
	sort.Ints(sub.calls)
}

// noRecursiveCalls walks the calls relation depth first. No subroutine may
// be entered while another one using the same return address slot is still
// active, which also rules out direct and indirect recursion.
func (s *subroutines) noRecursiveCalls(g *Graph, sub *subroutine, active map[int]bool) error {
	for _, idx := range sub.calls {
		callee := s.all[idx]
		if active[callee.slot] {
			return rejectf("subroutine at %d is called by a subroutine using the same return address local %d; recursive subroutine calls are not allowed",
				g.Instruction(callee.leader).Pos, callee.slot)
		}
		active[callee.slot] = true
		if err := s.noRecursiveCalls(g, callee, active); err != nil {
			return err
		}
		delete(active, callee.slot)
	}
	return nil
}
