package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/robbyt/go-polyexpr/evaluator"
	"github.com/robbyt/go-polyexpr/platform"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type resultLine struct {
	Expression string `json:"expression"`
	Result     any    `json:"result"`
}

// printResults evaluates each expression and writes one JSON object per line.
func printResults(ctx context.Context, w io.Writer, ev *evaluator.Evaluator, exprs []string) error {
	enc := json.NewEncoder(w)
	for _, expr := range exprs {
		if err := enc.Encode(resultLine{Expression: expr, Result: ev.Evaluate(ctx, expr)}); err != nil {
			return fmt.Errorf("failed to encode result of %q: %w", expr, err)
		}
	}
	return nil
}

// reportCompileError writes every diagnostic of a rejected compilation to w.
func reportCompileError(w io.Writer, err error) {
	var compileErr *platform.CompileError
	if errors.As(err, &compileErr) && len(compileErr.Diagnostics) > 1 {
		_, _ = fmt.Fprintln(w, compileErr.Summary())
	}
}
