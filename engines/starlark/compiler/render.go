package compiler

import (
	"strings"

	"github.com/robbyt/go-polyexpr/platform/unit"
)

// span records which lines of the rendered container belong to an expression.
type span struct {
	method unit.Method
	first  int
	last   int
}

// render writes one function per method:
//
//	def MethodX():
//	    return (
//	<expression>
//	    )
//
// The expression sits on its own lines so a trailing comment cannot swallow the parenthesis.
func render(u *unit.Unit) (string, []span) {
	var b strings.Builder
	spans := make([]span, 0, len(u.Methods))
	line := 1

	for _, m := range u.Methods {
		b.WriteString("def " + m.Name + "():\n")
		b.WriteString("    return (\n")
		line += 2

		first := line
		b.WriteString(m.Expression)
		b.WriteString("\n")
		line += strings.Count(m.Expression, "\n") + 1

		b.WriteString("    )\n\n")
		spans = append(spans, span{method: m, first: first, last: line - 1})
		line += 2
	}
	return b.String(), spans
}

// locate finds the expression rendered on line, if any.
func locate(spans []span, line int) (unit.Method, bool) {
	for _, s := range spans {
		if line >= s.first && line <= s.last {
			return s.method, true
		}
	}
	return unit.Method{}, false
}
