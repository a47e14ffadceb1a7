package verifier

import (
	"strings"
)

// Stack is the simulated operand stack. Entries are lattice values; a long
// or double is one entry occupying two slots. The slot count never exceeds
// the declared maximum.
type Stack struct {
	values []Type
	max    int
}

// NewStack creates an empty stack holding at most maxStack slots.
func NewStack(maxStack int) *Stack {
	return &Stack{max: maxStack}
}

// MaxStack returns the declared slot limit.
func (s *Stack) MaxStack() int {
	return s.max
}

// Size returns the number of entries.
func (s *Stack) Size() int {
	return len(s.values)
}

// IsEmpty reports whether the stack has no entries.
func (s *Stack) IsEmpty() bool {
	return len(s.values) == 0
}

// SlotsUsed returns the number of slots the entries occupy.
func (s *Stack) SlotsUsed() int {
	n := 0
	for _, v := range s.values {
		n += v.Size()
	}
	return n
}

// Push adds t on top. Pushing a placeholder or overflowing the stack is a
// verifier bug: callers check the stack effect first.
func (s *Stack) Push(t Type) {
	if t.Kind == KindUnknown {
		panic(internalf("pushing %s onto the operand stack", t))
	}
	if s.SlotsUsed()+t.Size() > s.max {
		panic(internalf("operand stack overflow pushing %s onto %s (max %d)", t, s, s.max))
	}
	s.values = append(s.values, t)
}

// Pop removes and returns the top entry.
func (s *Stack) Pop() Type {
	if len(s.values) == 0 {
		panic(internalf("pop from an empty operand stack"))
	}
	t := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return t
}

// PopN removes n entries.
func (s *Stack) PopN(n int) {
	for i := 0; i < n; i++ {
		s.Pop()
	}
}

// Peek returns the entry i positions below the top; Peek(0) is the top.
func (s *Stack) Peek(i int) Type {
	if i < 0 || i >= len(s.values) {
		panic(internalf("peek(%d) on an operand stack of %d entries", i, len(s.values)))
	}
	return s.values[len(s.values)-1-i]
}

// Clear removes every entry.
func (s *Stack) Clear() {
	s.values = s.values[:0]
}

// Values returns the entries bottom first.
func (s *Stack) Values() []Type {
	out := make([]Type, len(s.values))
	copy(out, s.values)
	return out
}

// Clone returns an independent copy.
func (s *Stack) Clone() *Stack {
	return &Stack{values: s.Values(), max: s.max}
}

// Equal reports whether both stacks hold the same entries.
func (s *Stack) Equal(o *Stack) bool {
	if len(s.values) != len(o.values) {
		return false
	}
	for i := range s.values {
		if s.values[i] != o.values[i] {
			return false
		}
	}
	return true
}

// InitializeObject replaces every occurrence of marker with its initialized
// class type.
func (s *Stack) InitializeObject(marker Type) {
	init := marker.Initialized()
	for i, v := range s.values {
		if v == marker {
			s.values[i] = init
		}
	}
}

// Merge joins o into s entry by entry and reports whether s changed. Stack
// contents must stay statically typed, so any pair that does not join to a
// reference is a rejection.
func (s *Stack) Merge(o *Stack, l lattice) (bool, error) {
	if len(s.values) != len(o.values) || s.SlotsUsed() != o.SlotsUsed() {
		return false, rejectf("cannot merge operand stacks of different sizes: %s and %s", s, o)
	}
	changed := false
	for i, mine := range s.values {
		theirs := o.values[i]
		if mine == theirs {
			continue
		}
		switch {
		case !mine.IsUninitialized() && theirs.IsUninitialized():
			return false, rejectf("backwards branch with an uninitialized object on the stack: %s", theirs)
		case mine.IsUninitialized():
			return false, rejectf("backwards branch with an uninitialized object on the stack: %s meets %s", mine, theirs)
		case mine.IsReference() && theirs.IsReference():
			joined, err := l.join(mine, theirs)
			if err != nil {
				return false, err
			}
			if joined != mine {
				s.values[i] = joined
				changed = true
			}
		default:
			return false, rejectf("cannot merge operand stacks: entry %d is %s and %s", i, mine, theirs)
		}
	}
	return changed, nil
}

func (s *Stack) String() string {
	if len(s.values) == 0 {
		return "[]"
	}
	parts := make([]string, len(s.values))
	for i, v := range s.values {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
