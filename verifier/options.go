package verifier

import (
	"runtime"

	"github.com/tliron/commonlog"
)

// defaultLogger is looked up per call so that a backend registered after
// package initialization still receives the output.
func defaultLogger() commonlog.Logger {
	return commonlog.GetLogger("bcverify.verifier")
}

// Options tunes a verification.
type Options struct {
	// Logger receives per-method progress. Defaults to the
	// "bcverify.verifier" logger.
	Logger commonlog.Logger

	// StrictSubroutineHandlers rejects exception handlers that protect
	// instructions inside a subroutine.
	StrictSubroutineHandlers bool

	// TraceLimit caps how many execution chain entries a diagnostic keeps.
	// Zero keeps them all.
	TraceLimit int

	// Workers bounds how many methods VerifyClass verifies at once.
	Workers int
}

// DefaultOptions returns the options the command line tool starts from.
func DefaultOptions() Options {
	return Options{
		Logger:                   defaultLogger(),
		StrictSubroutineHandlers: true,
		TraceLimit:               32,
		Workers:                  runtime.NumCPU(),
	}
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = defaultLogger()
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}
