// bcverify - structural bytecode verifier for assembled class fixtures
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/bcverify/manifest"
	"github.com/chazu/bcverify/report"
)

// Version is set at link time.
var Version = "dev"

// Exit codes.
const (
	exitOK       = 0
	exitRejected = 1
	exitError    = 2
)

var log = commonlog.GetLogger("bcverify")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// countFlag counts repeated boolean flags such as -v -v.
type countFlag int

func (c *countFlag) String() string { return strconv.Itoa(int(*c)) }

func (c *countFlag) Set(s string) error {
	if s == "true" {
		*c++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expected a count, got %q", s)
	}
	*c = countFlag(n)
	return nil
}

func (c *countFlag) IsBoolFlag() bool { return true }

type config struct {
	configPath      string
	classes         string
	methods         string
	format          string
	output          string
	color           string
	verbose         countFlag
	noCache         bool
	lenientHandlers bool
	workers         int
	checkExpect     bool
	version         bool
}

func parseFlags(args []string, stderr io.Writer) (*config, []string, error) {
	var cfg config
	fs := flag.NewFlagSet("bcverify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.configPath, "config", "", "Configuration file (default: nearest "+manifest.FileName+")")
	fs.StringVar(&cfg.classes, "class", "", "Comma-separated classes to verify (default: all)")
	fs.StringVar(&cfg.methods, "method", "", "Comma-separated methods to verify, by name or name+descriptor")
	fs.StringVar(&cfg.format, "format", "", "Report format: text, yaml, cbor")
	fs.StringVar(&cfg.output, "o", "", "Write the report to this file instead of stdout")
	fs.StringVar(&cfg.color, "color", "", "Color text output: auto, always, never")
	fs.Var(&cfg.verbose, "v", "Increase log verbosity (repeatable)")
	fs.BoolVar(&cfg.noCache, "no-cache", false, "Do not read or write the verdict cache")
	fs.BoolVar(&cfg.lenientHandlers, "lenient-handlers", false, "Allow exception handlers inside subroutines")
	fs.IntVar(&cfg.workers, "workers", 0, "Methods verified at once (default from configuration)")
	fs.BoolVar(&cfg.checkExpect, "expect", false, "Compare verdicts with the fixtures' expect keys")
	fs.BoolVar(&cfg.version, "version", false, "Print the version and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: bcverify [options] fixture.yaml...\n\n")
		fmt.Fprintf(stderr, "Assembles the classes in the given fixtures and verifies their methods.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  bcverify zoo.yaml                       # Verify every method\n")
		fmt.Fprintf(stderr, "  bcverify -class zoo/Cat zoo.yaml        # One class\n")
		fmt.Fprintf(stderr, "  bcverify -method 'count(I)I' zoo.yaml   # One method\n")
		fmt.Fprintf(stderr, "  bcverify -format yaml -o out.yaml *.yaml\n")
		fmt.Fprintf(stderr, "  bcverify -expect -no-cache testdata/*.yaml\n")
		fmt.Fprintf(stderr, "\nExit status is 0 when every method is accepted, 1 when some are not, 2 on errors.\n")
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return &cfg, fs.Args(), nil
}

// loadManifest reads the configuration and applies flag overrides.
func loadManifest(cfg *config) (*manifest.Manifest, error) {
	var (
		m   *manifest.Manifest
		err error
	)
	if cfg.configPath != "" {
		m, err = manifest.LoadFile(cfg.configPath)
	} else {
		m, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}

	if cfg.format != "" {
		m.Output.Format = cfg.format
	}
	if cfg.color != "" {
		m.Output.Color = cfg.color
	}
	if cfg.workers > 0 {
		m.Verifier.Workers = cfg.workers
	}
	if cfg.lenientHandlers {
		m.Verifier.StrictSubroutineHandlers = false
	}
	if cfg.noCache {
		m.Cache.Enabled = false
	}
	m.Log.Verbosity = min(m.Log.Verbosity+int(cfg.verbose), 5)

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return m, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, paths, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return exitError
	}
	if cfg.version {
		fmt.Fprintf(stdout, "bcverify %s\n", Version)
		return exitOK
	}
	if len(paths) == 0 {
		fmt.Fprintln(stderr, "bcverify: no fixture files given")
		return exitError
	}

	m, err := loadManifest(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "bcverify: %v\n", err)
		return exitError
	}
	commonlog.Configure(m.Log.Verbosity, m.LogFile())

	sel := newSelection(cfg.classes, cfg.methods)
	rep, set, err := verifyFixtures(ctx, m, paths, sel)
	if err != nil {
		fmt.Fprintf(stderr, "bcverify: %v\n", err)
		return exitError
	}

	if err := writeReport(rep, m, cfg.output, stdout); err != nil {
		fmt.Fprintf(stderr, "bcverify: %v\n", err)
		return exitError
	}

	if cfg.checkExpect {
		mismatches := checkExpectations(rep, set)
		for _, line := range mismatches {
			fmt.Fprintf(stderr, "bcverify: %s\n", line)
		}
		if len(mismatches) > 0 {
			return exitRejected
		}
		return exitOK
	}
	if !rep.OK() {
		return exitRejected
	}
	return exitOK
}

func writeReport(rep *report.Report, m *manifest.Manifest, output string, stdout io.Writer) error {
	if output == "" {
		if err := report.Write(stdout, rep, m.Output.Format, useColor(m.Output.Color, stdout)); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		return nil
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := report.Write(f, rep, m.Output.Format, useColor(m.Output.Color, f)); err != nil {
		f.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	return f.Close()
}

func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// selection filters classes and methods by the -class and -method flags.
type selection struct {
	classes map[string]bool
	methods map[string]bool
}

func newSelection(classes, methods string) selection {
	return selection{classes: splitList(classes), methods: splitList(methods)}
}

func splitList(s string) map[string]bool {
	if s == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = true
		}
	}
	return set
}

func (s selection) class(name string) bool {
	return s.classes == nil || s.classes[name]
}

func (s selection) method(name, desc string) bool {
	return s.methods == nil || s.methods[name] || s.methods[name+desc]
}
