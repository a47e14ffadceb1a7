package verifier

import "fmt"

// CallKey identifies the subroutine-call context a frame belongs to: top
// level, or inside the subroutine entered by a specific unmatched call.
type CallKey struct {
	call int // node index of the call plus one; zero is top level
}

// TopLevel is the key of code not entered through a subroutine call.
var TopLevel = CallKey{}

// ReturnSlotOf returns the key for frames reached through the call at node
// index call.
func ReturnSlotOf(call int) CallKey {
	return CallKey{call: call + 1}
}

// IsTopLevel reports whether k is TopLevel.
func (k CallKey) IsTopLevel() bool {
	return k.call == 0
}

// Call returns the node index of the call k was entered through.
func (k CallKey) Call() (int, bool) {
	return k.call - 1, k.call != 0
}

func (k CallKey) String() string {
	if k.call == 0 {
		return "top-level"
	}
	return fmt.Sprintf("call@%d", k.call-1)
}

// chain is an execution chain: the instructions executed on the way to the
// current one. It is an immutable cons list, newest first, so extending it
// for every successor shares the common prefix.
//
// Each cell caches the innermost call still open after it. A nil chain is
// empty.
type chain struct {
	node  int
	prev  *chain
	open  *chain // cell of the innermost unmatched call, nil at top level
	depth int
}

// key returns the call-chain key for an instruction executed after c.
func (c *chain) key() CallKey {
	if c == nil || c.open == nil {
		return TopLevel
	}
	return ReturnSlotOf(c.open.node)
}

// openCall returns the node index of the innermost unmatched call.
func (c *chain) openCall() (int, bool) {
	if c == nil || c.open == nil {
		return 0, false
	}
	return c.open.node, true
}

// extend appends node. A call opens a new level; a return closes the
// innermost open one.
func (c *chain) extend(node int, isCall, isReturn bool) (*chain, error) {
	next := &chain{node: node, prev: c}
	if c != nil {
		next.open = c.open
		next.depth = c.depth + 1
	}
	switch {
	case isCall:
		next.open = next
	case isReturn:
		if next.open == nil {
			return nil, internalf("return from subroutine at node %d with no open call in the execution chain", node)
		}
		if next.open.prev != nil {
			next.open = next.open.prev.open
		} else {
			next.open = nil
		}
	}
	return next, nil
}

// len returns the number of instructions in the chain.
func (c *chain) len() int {
	if c == nil {
		return 0
	}
	return c.depth + 1
}

// tail returns at most limit of the newest node indices, oldest first, and
// the number of older entries left out. A limit of zero or less returns the
// whole chain.
func (c *chain) tail(limit int) ([]int, int) {
	n := c.len()
	keep := n
	if limit > 0 && limit < n {
		keep = limit
	}
	out := make([]int, keep)
	cur := c
	for i := keep - 1; i >= 0; i-- {
		out[i] = cur.node
		cur = cur.prev
	}
	return out, n - keep
}
