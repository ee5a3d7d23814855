package platform

import (
	"context"
	"io"
)

// EvalOnly is the evaluation half of a compiled expression set.
type EvalOnly interface {
	// Evaluate runs the entry point generated for expression and returns its value.
	//
	// Every failure is reported as nil: an expression that was never compiled, a fault
	// while crossing the isolation boundary, or an error raised by the expression itself.
	// Callers cannot tell a nil result apart from a failure.
	Evaluate(ctx context.Context, expression string) any
}

// Evaluator is a compiled expression set bound to its own isolation context.
// Close unloads the context and deletes the on-disk unit, and is safe to call more than once.
type Evaluator interface {
	EvalOnly
	io.Closer
}
