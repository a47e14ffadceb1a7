package verifier

import (
	"sort"

	"github.com/tliron/commonlog"

	"github.com/chazu/bcverify/classfile"
)

// workItem is a node whose out-frame changed under the given chain and
// whose successors must be revisited.
type workItem struct {
	node  int
	chain *chain
}

// execute merges in into the frame stored for node n under the chain's key
// and, if that changed anything, re-runs the instruction on the merged
// frame. It reports whether the out-frame changed.
func (r *run) execute(n int, in *Frame, c *chain) (bool, error) {
	key := c.key()
	r.diag.enter(n, in, c)
	stored, seen := r.in[n][key]
	if !seen {
		stored = in.Clone()
		r.in[n][key] = stored
	} else {
		changed, err := stored.Merge(in, r.lat)
		if err != nil {
			if rej, ok := err.(*Rejection); ok {
				rej.Note("merging into %s", r.graph.Instruction(n))
			}
			return false, err
		}
		if !changed {
			return false, nil
		}
	}

	work := stored.Clone()
	ins := r.graph.Instruction(n)
	r.diag.enter(n, work, c)
	r.steps++
	if r.log.AllowLevel(commonlog.Debug) {
		r.log.Debugf("%s: %s [%s] %s", r.id, ins, key, work)
	}
	if err := r.check(ins, work); err != nil {
		return false, err
	}
	if err := r.exec(ins, work); err != nil {
		return false, err
	}

	prev, had := r.out[n][key]
	r.out[n][key] = work
	return !had || !prev.Equal(work), nil
}

// solve runs the worklist from the entry node to a fixed point, then scans
// the method exits.
func (r *run) solve() error {
	if _, err := r.execute(0, r.initialFrame(), nil); err != nil {
		return err
	}
	queue := []workItem{{node: 0}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		u := item.node
		ins := r.graph.Instruction(u)
		out, ok := r.out[u][item.chain.key()]
		if !ok {
			return internalf("%s was queued without an out-frame for %s", ins, item.chain.key())
		}
		next, err := item.chain.extend(u, ins.Op.IsJsr(), ins.Op == classfile.OpRet)
		if err != nil {
			return err
		}

		var succ []int
		if ins.Op == classfile.OpRet {
			target, err := r.returnTarget(u, item.chain, out)
			if err != nil {
				return err
			}
			succ = []int{target}
		} else {
			succ = r.graph.Successors(u)
		}
		for _, s := range succ {
			changed, err := r.execute(s, out, next)
			if err != nil {
				return err
			}
			if changed {
				queue = append(queue, workItem{node: s, chain: next})
			}
		}

		for _, h := range r.graph.handlersOf(u) {
			if out.Stack.MaxStack() < 1 {
				return rejectf("%s is protected by the exception handler at %d but max_stack is 0",
					ins, r.graph.Instruction(h.entry).Pos)
			}
			// The exception may be thrown before a constructor call on
			// the receiver completes.
			hf := &Frame{
				Stack:             NewStack(out.Stack.MaxStack()),
				Locals:            out.Locals.Clone(),
				ThisUninitialized: out.ThisUninitialized || r.in[u][item.chain.key()].ThisUninitialized,
			}
			hf.Stack.Push(h.caught())
			changed, err := r.execute(h.entry, hf, nil)
			if err != nil {
				return err
			}
			if changed {
				queue = append(queue, workItem{node: h.entry})
			}
		}
	}
	return r.scanExits()
}

// returnTarget resolves where the return from subroutine at u continues:
// the instruction after the call still open in the chain. The return
// address the frame holds must agree.
func (r *run) returnTarget(u int, c *chain, out *Frame) (int, error) {
	ins := r.graph.Instruction(u)
	ra := out.Locals.Get(ins.Index)
	if ra.Kind != KindReturnAddress {
		return 0, internalf("%s reads %s instead of a return address", ins, ra)
	}
	target, ok := r.graph.IndexOf(ra.Site)
	if !ok {
		return 0, internalf("%s returns to offset %d, which is not an instruction", ins, ra.Site)
	}
	call, ok := c.openCall()
	if !ok {
		return 0, internalf("%s executed with no open subroutine call", ins)
	}
	expected, err := r.graph.next(call)
	if err != nil {
		return 0, err
	}
	if target != expected {
		return 0, internalf("%s returns to %d but the open call %s continues at %d",
			ins, ra.Site, r.graph.Instruction(call), r.graph.Instruction(expected).Pos)
	}
	targets, err := r.graph.ReturnTargets(u)
	if err != nil {
		return 0, err
	}
	for _, t := range targets {
		if t == target {
			return target, nil
		}
	}
	return 0, internalf("%s returns to %d, which follows none of its callers", ins, ra.Site)
}

// scanExits looks at every frame that leaves the method. Uninitialized
// objects still around earn a warning; value returns are checked again
// against the merged frame they saw.
func (r *run) scanExits() error {
	for n := 0; n < r.graph.Len(); n++ {
		ins := r.graph.Instruction(n)
		if !ins.Op.IsReturn() && ins.Op != classfile.OpRet {
			continue
		}
		for _, key := range sortedKeys(r.out[n]) {
			out := r.out[n][key]
			for i, v := range out.Locals.values {
				if v.IsUninitialized() {
					r.warnf("%s [%s] leaves %s in local %d", ins, key, v, i)
				}
			}
			for i, v := range out.Stack.Values() {
				if v.IsUninitialized() {
					r.warnf("%s [%s] leaves %s on the stack at %d", ins, key, v, i)
				}
			}
			if !ins.Op.IsReturn() || ins.Op == classfile.OpReturn {
				continue
			}
			in := r.in[n][key]
			r.diag.enter(n, in, nil)
			if err := checkReturn(r, ins, in); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedKeys(m map[CallKey]*Frame) []CallKey {
	keys := make([]CallKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].call < keys[j].call })
	return keys
}
