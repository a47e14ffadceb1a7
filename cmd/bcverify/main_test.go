package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/chazu/bcverify/report"
)

const zoo = "../../fixture/testdata/zoo.yaml"

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// writeConfig writes a bcverify.toml whose cache lives in a temp dir.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bcverify.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runCLI(t, "-version")
	if code != exitOK || !strings.HasPrefix(out, "bcverify ") {
		t.Errorf("-version = %d, %q", code, out)
	}
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no fixtures", []string{"-no-cache"}, "no fixture files given"},
		{"missing fixture", []string{"-no-cache", "nope.yaml"}, "cannot read nope.yaml"},
		{"bad format", []string{"-no-cache", "-format", "xml", zoo}, "invalid options"},
		{"bad filter", []string{"-no-cache", "-class", "zoo/Nope", zoo}, "no methods match"},
		{"bad flag", []string{"-bogus"}, "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != exitError {
				t.Errorf("exit = %d, want %d", code, exitError)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Errorf("stderr %q does not contain %q", stderr, tt.want)
			}
		})
	}
}

func TestRunZoo(t *testing.T) {
	code, out, _ := runCLI(t, "-no-cache", "-color", "never", zoo)
	if code != exitRejected {
		t.Errorf("exit = %d, want %d", code, exitRejected)
	}
	for _, want := range []string{
		"zoo/Dog",
		"safeDivide(II)I",
		"confused()I",
		"not yet verified",
		"Execution chain:",
		"methods: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("-color never produced escape codes")
	}
}

func TestRunExpect(t *testing.T) {
	code, _, stderr := runCLI(t, "-no-cache", "-expect", "-format", "yaml", zoo)
	if code != exitOK {
		t.Errorf("exit = %d, want %d; stderr:\n%s", code, exitOK, stderr)
	}
}

func TestRunFilters(t *testing.T) {
	code, out, _ := runCLI(t, "-no-cache", "-format", "yaml", "-class", "zoo/Dog", "-method", "speak,count", zoo)
	if code != exitOK {
		t.Errorf("exit = %d, want %d", code, exitOK)
	}
	var rep report.Report
	if err := yaml.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, m := range rep.Methods {
		got = append(got, m.Class+"."+m.Method)
	}
	if strings.Join(got, " ") != "zoo/Dog.speak zoo/Dog.count" {
		t.Errorf("selected methods = %v", got)
	}
}

func TestRunCache(t *testing.T) {
	dir := t.TempDir()
	config := writeConfig(t, "[cache]\nenabled = true\npath = \""+filepath.ToSlash(filepath.Join(dir, "v.db"))+"\"\n")
	out := filepath.Join(dir, "report.cbor")

	decode := func() *report.Report {
		t.Helper()
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		rep, err := report.Unmarshal(data)
		if err != nil {
			t.Fatal(err)
		}
		return rep
	}

	args := []string{"-config", config, "-format", "cbor", "-o", out, "-class", "zoo/Cat", zoo}
	if code, _, stderr := runCLI(t, args...); code != exitRejected {
		t.Fatalf("first run exit = %d; stderr:\n%s", code, stderr)
	}
	first := decode()
	if s := first.Summary(); s.Cached != 0 || s.Total() == 0 {
		t.Fatalf("first run summary = %+v", s)
	}

	if code, _, stderr := runCLI(t, args...); code != exitRejected {
		t.Fatalf("second run exit = %d; stderr:\n%s", code, stderr)
	}
	second := decode()
	s := second.Summary()
	if s.Cached != s.Total() {
		t.Errorf("second run summary = %+v, want every verdict cached", s)
	}
	for i, m := range second.Methods {
		if m.Status != first.Methods[i].Status || m.Message != first.Methods[i].Message {
			t.Errorf("%s: cached %s %q, fresh %s %q", m.Method,
				m.Status, m.Message, first.Methods[i].Status, first.Methods[i].Message)
		}
	}

	// Changing a verdict-relevant option misses the cache.
	if code, _, _ := runCLI(t, append([]string{"-lenient-handlers"}, args...)...); code != exitRejected {
		t.Fatalf("lenient run exit = %d", code)
	}
	if s := decode().Summary(); s.Cached != 0 {
		t.Errorf("lenient run reused %d strict verdicts", s.Cached)
	}
}

func TestSelection(t *testing.T) {
	sel := newSelection("a/B, c/D", "m,n(I)V")
	if !sel.class("a/B") || !sel.class("c/D") || sel.class("e/F") {
		t.Error("class filter")
	}
	if !sel.method("m", "()V") || !sel.method("n", "(I)V") || sel.method("n", "()V") {
		t.Error("method filter")
	}
	all := newSelection("", "")
	if !all.class("x/Y") || !all.method("any", "()V") {
		t.Error("empty selection should match everything")
	}
}

func TestCountFlag(t *testing.T) {
	cfg, _, err := parseFlags([]string{"-v", "-v", "-v"}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.verbose != 3 {
		t.Errorf("-v -v -v = %d", cfg.verbose)
	}
	cfg, _, _ = parseFlags([]string{"-v=2"}, &bytes.Buffer{})
	if cfg.verbose != 2 {
		t.Errorf("-v=2 = %d", cfg.verbose)
	}
}
