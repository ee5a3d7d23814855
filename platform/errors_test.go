package platform

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "x +: unexpected EOF", Diagnostic{Source: "x +", Message: "unexpected EOF"}.String())
	assert.Equal(t, "unexpected EOF", Diagnostic{Message: "unexpected EOF"}.String())
}

func TestCompileError(t *testing.T) {
	t.Parallel()

	err := NewCompileError(
		Diagnostic{Source: "a +", Message: "got end of file"},
		Diagnostic{Source: "b", Message: "undefined: b"},
	)
	assert.Equal(t, "a +: got end of file", err.Error())
	assert.Equal(t, "a +: got end of file\nb: undefined: b", err.Summary())
	require.ErrorIs(t, err, ErrCompileFailure)

	wrapped := fmt.Errorf("compile: %w", err)
	var compileErr *CompileError
	require.True(t, errors.As(wrapped, &compileErr))
	assert.Len(t, compileErr.Diagnostics, 2)
}

func TestCompileErrorWithoutDiagnostics(t *testing.T) {
	t.Parallel()

	err := NewCompileError()
	require.Len(t, err.Diagnostics, 1)
	assert.Equal(t, "unknown compilation error", err.Error())
}
