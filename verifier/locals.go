package verifier

import (
	"fmt"
	"strings"
)

// Locals is the simulated local variable array.
type Locals struct {
	values []Type
}

// NewLocals creates n slots, all Unknown.
func NewLocals(n int) *Locals {
	return &Locals{values: make([]Type, n)}
}

// MaxLocals returns the number of slots.
func (l *Locals) MaxLocals() int {
	return len(l.values)
}

// Get returns slot i.
func (l *Locals) Get(i int) Type {
	if i < 0 || i >= len(l.values) {
		panic(internalf("local variable %d out of range (max %d)", i, len(l.values)))
	}
	return l.values[i]
}

// Set stores t into slot i.
func (l *Locals) Set(i int, t Type) {
	if i < 0 || i >= len(l.values) {
		panic(internalf("local variable %d out of range (max %d)", i, len(l.values)))
	}
	l.values[i] = t
}

// Clone returns an independent copy.
func (l *Locals) Clone() *Locals {
	out := make([]Type, len(l.values))
	copy(out, l.values)
	return &Locals{values: out}
}

// Equal reports whether both arrays hold the same values.
func (l *Locals) Equal(o *Locals) bool {
	if len(l.values) != len(o.values) {
		return false
	}
	for i := range l.values {
		if l.values[i] != o.values[i] {
			return false
		}
	}
	return true
}

// InitializeObject replaces every occurrence of marker with its initialized
// class type.
func (l *Locals) InitializeObject(marker Type) {
	init := marker.Initialized()
	for i, v := range l.values {
		if v == marker {
			l.values[i] = init
		}
	}
}

// Merge joins o into l slot by slot and reports whether l changed. Slots
// that have nothing in common become Unknown and stay unusable until they
// are written again.
func (l *Locals) Merge(o *Locals, lat lattice) (bool, error) {
	if len(l.values) != len(o.values) {
		return false, internalf("merging local variable arrays of %d and %d slots", len(l.values), len(o.values))
	}
	changed := false
	for i := range l.values {
		c, err := l.mergeSlot(i, o.values[i], lat)
		if err != nil {
			return false, err
		}
		changed = changed || c
	}
	return changed, nil
}

func (l *Locals) mergeSlot(i int, theirs Type, lat lattice) (bool, error) {
	mine := l.values[i]
	if mine == theirs {
		return false, nil
	}
	if !mine.IsUninitialized() && theirs.IsUninitialized() {
		return false, rejectf("backwards branch with an uninitialized object in local variable %d: %s", i, theirs)
	}
	if mine.IsUninitialized() && theirs.IsUninitialized() {
		return false, rejectf("local variable %d holds two different uninitialized objects: %s and %s", i, mine, theirs)
	}

	merged := mine
	if merged.IsUninitialized() {
		// The other path already ran the constructor.
		merged = merged.Initialized()
	}
	switch {
	case merged == theirs:
	case merged.IsReference() && theirs.IsReference():
		joined, err := lat.join(merged, theirs)
		if err != nil {
			return false, err
		}
		merged = joined
	default:
		merged = Unknown
	}
	if merged == mine {
		return false, nil
	}
	l.values[i] = merged
	return true, nil
}

func (l *Locals) String() string {
	parts := make([]string, len(l.values))
	for i, v := range l.values {
		parts[i] = fmt.Sprintf("%d:%s", i, v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
