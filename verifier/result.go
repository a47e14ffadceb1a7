package verifier

import (
	"fmt"
	"strings"
)

// Status is the outcome of verifying one method.
type Status int

const (
	// Accepted means the method passed every check.
	Accepted Status = iota
	// Rejected means the method is unsound; Message says why.
	Rejected
	// NotYet means a prerequisite check failed and data flow never ran.
	NotYet
)

var statusNames = [...]string{
	Accepted: "accepted",
	Rejected: "rejected",
	NotYet:   "not yet verified",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is the verdict for one method.
type Result struct {
	RunID      string
	Class      string
	Method     string // name and descriptor
	Status     Status
	Message    string
	Diagnostic *Diagnostic
	Warnings   []string
	Steps      int // instruction executions performed
}

// OK reports whether the method was accepted.
func (r *Result) OK() bool {
	return r.Status == Accepted
}

func (r *Result) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s.%s: %s", r.Class, r.Method, r.Status)
	if r.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(r.Message)
	}
	for _, w := range r.Warnings {
		sb.WriteString("\n  warning: ")
		sb.WriteString(w)
	}
	if r.Diagnostic != nil {
		sb.WriteString("\n")
		sb.WriteString(r.Diagnostic.String())
	}
	return sb.String()
}
