// Package report collects verification results into reports and encodes
// them as CBOR, YAML or aligned text.
package report

import (
	"strings"

	"github.com/google/uuid"

	"github.com/chazu/bcverify/verifier"
)

// Tool names the producer in every report.
const Tool = "bcverify"

// Report is the outcome of one invocation over a set of methods.
type Report struct {
	RunID   string         `cbor:"1,keyasint" yaml:"run_id"`
	Tool    string         `cbor:"2,keyasint" yaml:"tool"`
	Methods []MethodReport `cbor:"3,keyasint" yaml:"methods"`
}

// MethodReport is the verdict for one method.
type MethodReport struct {
	Class      string   `cbor:"1,keyasint" yaml:"class"`
	Method     string   `cbor:"2,keyasint" yaml:"method"`
	Descriptor string   `cbor:"3,keyasint" yaml:"descriptor"`
	Status     string   `cbor:"4,keyasint" yaml:"status"`
	Message    string   `cbor:"5,keyasint,omitempty" yaml:"message,omitempty"`
	Trace      *Trace   `cbor:"6,keyasint,omitempty" yaml:"trace,omitempty"`
	Warnings   []string `cbor:"7,keyasint,omitempty" yaml:"warnings,omitempty"`
	Steps      int      `cbor:"8,keyasint" yaml:"steps"`
	RunID      string   `cbor:"9,keyasint" yaml:"run_id"`
	Cached     bool     `cbor:"10,keyasint,omitempty" yaml:"cached,omitempty"`
}

// Trace is the diagnostic of a rejection.
type Trace struct {
	Instruction string   `cbor:"1,keyasint" yaml:"instruction"`
	Offset      int      `cbor:"2,keyasint" yaml:"offset"`
	Stack       string   `cbor:"3,keyasint" yaml:"stack"`
	Locals      string   `cbor:"4,keyasint" yaml:"locals"`
	Chain       []string `cbor:"5,keyasint,omitempty" yaml:"chain,omitempty"`
	Elided      int      `cbor:"6,keyasint,omitempty" yaml:"elided,omitempty"`
}

// Summary counts verdicts.
type Summary struct {
	Accepted int
	Rejected int
	NotYet   int
	Cached   int
}

// Total returns the number of methods counted.
func (s Summary) Total() int {
	return s.Accepted + s.Rejected + s.NotYet
}

// New starts an empty report with a fresh run ID.
func New() *Report {
	return &Report{RunID: uuid.NewString(), Tool: Tool}
}

// Add appends a method verdict.
func (r *Report) Add(m MethodReport) {
	r.Methods = append(r.Methods, m)
}

// Summary counts the verdicts in the report.
func (r *Report) Summary() Summary {
	var s Summary
	for _, m := range r.Methods {
		switch m.Status {
		case verifier.Accepted.String():
			s.Accepted++
		case verifier.Rejected.String():
			s.Rejected++
		default:
			s.NotYet++
		}
		if m.Cached {
			s.Cached++
		}
	}
	return s
}

// OK reports whether every method was accepted.
func (r *Report) OK() bool {
	s := r.Summary()
	return s.Rejected == 0 && s.NotYet == 0
}

// FromResult converts a verifier result.
func FromResult(res *verifier.Result) MethodReport {
	name, desc := res.Method, ""
	if i := strings.IndexByte(res.Method, '('); i >= 0 {
		name, desc = res.Method[:i], res.Method[i:]
	}
	m := MethodReport{
		Class:      res.Class,
		Method:     name,
		Descriptor: desc,
		Status:     res.Status.String(),
		Message:    res.Message,
		Warnings:   res.Warnings,
		Steps:      res.Steps,
		RunID:      res.RunID,
	}
	if d := res.Diagnostic; d != nil {
		m.Trace = &Trace{
			Instruction: d.Instruction,
			Offset:      d.Offset,
			Stack:       d.Stack,
			Locals:      d.Locals,
			Chain:       d.Chain,
			Elided:      d.Elided,
		}
	}
	return m
}

// Accepted reports whether the method was accepted.
func (m *MethodReport) Accepted() bool {
	return m.Status == verifier.Accepted.String()
}
