package verifier

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCallKey(t *testing.T) {
	if !TopLevel.IsTopLevel() || TopLevel.String() != "top-level" {
		t.Errorf("TopLevel = %s", TopLevel)
	}
	k := ReturnSlotOf(0)
	if k.IsTopLevel() || k == TopLevel {
		t.Error("the key of a call at node 0 is top level")
	}
	if call, ok := k.Call(); !ok || call != 0 {
		t.Errorf("Call() = %d, %v", call, ok)
	}
	if got := ReturnSlotOf(4).String(); got != "call@4" {
		t.Errorf("String() = %q", got)
	}
}

func TestChainKeys(t *testing.T) {
	var c *chain
	if c.key() != TopLevel || c.len() != 0 {
		t.Fatal("empty chain is not top level")
	}

	step := func(c *chain, node int, call, ret bool) *chain {
		t.Helper()
		next, err := c.extend(node, call, ret)
		if err != nil {
			t.Fatalf("extend(%d): %v", node, err)
		}
		return next
	}

	c = step(c, 0, false, false)
	c = step(c, 1, true, false) // outer call
	if c.key() != ReturnSlotOf(1) {
		t.Fatalf("after the outer call key = %s", c.key())
	}
	c = step(c, 5, false, false)
	c = step(c, 6, true, false) // nested call
	if c.key() != ReturnSlotOf(6) {
		t.Fatalf("after the nested call key = %s", c.key())
	}
	if call, ok := c.openCall(); !ok || call != 6 {
		t.Errorf("openCall() = %d, %v", call, ok)
	}
	c = step(c, 9, false, true) // nested return
	if c.key() != ReturnSlotOf(1) {
		t.Fatalf("after the nested return key = %s", c.key())
	}
	c = step(c, 7, false, true) // outer return
	if c.key() != TopLevel {
		t.Fatalf("after the outer return key = %s", c.key())
	}
	if _, err := c.extend(8, false, true); err == nil {
		t.Error("returning with no open call succeeded")
	}

	nodes, elided := c.tail(0)
	if diff := cmp.Diff([]int{0, 1, 5, 6, 9, 7}, nodes); diff != "" || elided != 0 {
		t.Errorf("tail(0) mismatch, elided %d (-want +got):\n%s", elided, diff)
	}
	nodes, elided = c.tail(2)
	if diff := cmp.Diff([]int{9, 7}, nodes); diff != "" || elided != 4 {
		t.Errorf("tail(2) mismatch, elided %d (-want +got):\n%s", elided, diff)
	}
}

func TestChainSharesPrefix(t *testing.T) {
	base, _ := (*chain)(nil).extend(0, true, false)
	left, _ := base.extend(1, false, false)
	right, _ := base.extend(2, false, true)
	if left.key() != ReturnSlotOf(0) {
		t.Errorf("left key = %s", left.key())
	}
	if right.key() != TopLevel {
		t.Errorf("right key = %s", right.key())
	}
	if base.key() != ReturnSlotOf(0) {
		t.Error("extending a chain changed it")
	}
}
