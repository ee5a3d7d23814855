package platform

import (
	"errors"
	"strings"
)

// Construction-time failures. These are returned from the compile pipeline.
var (
	ErrInvalidInput             = errors.New("invalid input")
	ErrCompileFailure           = errors.New("compilation failed")
	ErrIsolationCreation        = errors.New("isolation context creation failed")
	ErrLoadFailure              = errors.New("failed to load compiled unit")
	ErrExtensionNotMarshallable = errors.New("extension instance cannot be marshalled")
)

// Failures raised by the isolation boundary. Evaluate collapses these to nil.
var (
	ErrUnknownEntryPoint = errors.New("unknown entry point")
	ErrUnknownField      = errors.New("unknown field")
	ErrBoundaryFault     = errors.New("isolation boundary fault")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDisposed          = errors.New("evaluator disposed")
	ErrEvaluation        = errors.New("expression raised an error")
)

// Diagnostic is one message reported by a compilation backend.
type Diagnostic struct {
	// Source names the expression or file the diagnostic refers to, may be empty.
	Source  string
	Message string
}

func (d Diagnostic) String() string {
	if d.Source == "" {
		return d.Message
	}
	return d.Source + ": " + d.Message
}

// CompileError carries the diagnostics of a rejected compilation unit. Its message is
// the first diagnostic, verbatim.
type CompileError struct {
	Diagnostics []Diagnostic
}

// NewCompileError builds a CompileError, it always holds at least one diagnostic.
func NewCompileError(diags ...Diagnostic) *CompileError {
	if len(diags) == 0 {
		diags = []Diagnostic{{Message: "unknown compilation error"}}
	}
	return &CompileError{Diagnostics: diags}
}

func (e *CompileError) Error() string {
	return e.Diagnostics[0].String()
}

func (e *CompileError) Unwrap() error {
	return ErrCompileFailure
}

// Summary renders every diagnostic, one per line.
func (e *CompileError) Summary() string {
	lines := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		lines = append(lines, d.String())
	}
	return strings.Join(lines, "\n")
}
