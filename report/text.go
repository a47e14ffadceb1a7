package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/chazu/bcverify/verifier"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

func statusColor(m *MethodReport) string {
	switch m.Status {
	case verifier.Accepted.String():
		return colorGreen
	case verifier.Rejected.String():
		return colorRed
	}
	return colorYellow
}

// WriteText renders r as one aligned line per method, followed by its
// warnings and diagnostic, and a summary line. Columns are padded by
// display width so wide class names stay aligned.
func WriteText(w io.Writer, r *Report, color bool) error {
	bw := bufio.NewWriter(w)
	paint := func(c, s string) string {
		if !color {
			return s
		}
		return c + s + colorReset
	}

	classWidth, methodWidth, statusWidth := 0, 0, 0
	for i := range r.Methods {
		m := &r.Methods[i]
		classWidth = max(classWidth, runewidth.StringWidth(m.Class))
		methodWidth = max(methodWidth, runewidth.StringWidth(m.Method+m.Descriptor))
		statusWidth = max(statusWidth, runewidth.StringWidth(m.Status))
	}

	for i := range r.Methods {
		m := &r.Methods[i]
		line := runewidth.FillRight(m.Class, classWidth) + "  " +
			runewidth.FillRight(m.Method+m.Descriptor, methodWidth) + "  " +
			paint(statusColor(m), runewidth.FillRight(m.Status, statusWidth))
		if m.Cached {
			line += " " + paint(colorGray, "(cached)")
		}
		if m.Message != "" {
			line += "  " + m.Message
		}
		fmt.Fprintln(bw, strings.TrimRight(line, " "))

		for _, warn := range m.Warnings {
			fmt.Fprintf(bw, "    %s %s\n", paint(colorYellow, "warning:"), warn)
		}
		if t := m.Trace; t != nil {
			fmt.Fprintf(bw, "    Instruction: %s\n", t.Instruction)
			fmt.Fprintf(bw, "    Stack: %s\n", t.Stack)
			fmt.Fprintf(bw, "    Locals: %s\n", t.Locals)
			if len(t.Chain) > 0 || t.Elided > 0 {
				fmt.Fprintln(bw, "    Execution chain:")
				if t.Elided > 0 {
					fmt.Fprintf(bw, "      %s\n", paint(colorGray, fmt.Sprintf("... %d earlier instructions", t.Elided)))
				}
				for _, c := range t.Chain {
					fmt.Fprintf(bw, "      %s\n", c)
				}
			}
		}
	}

	s := r.Summary()
	summary := fmt.Sprintf("%d methods: %d accepted, %d rejected, %d not yet verified",
		s.Total(), s.Accepted, s.Rejected, s.NotYet)
	if s.Cached > 0 {
		summary += fmt.Sprintf(" (%d from cache)", s.Cached)
	}
	fmt.Fprintln(bw, summary)
	return bw.Flush()
}
