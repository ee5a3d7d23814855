package language

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/robbyt/go-polyexpr/platform"
)

// Type names an expression language.
type Type string

const (
	Starlark Type = "starlark"
	Risor    Type = "risor"

	// Default is used when a request does not name a language.
	Default = Starlark
)

// All returns every supported language, in a stable order.
func All() []Type {
	return []Type{Starlark, Risor}
}

func (t Type) String() string {
	return string(t)
}

// Valid reports whether t is a supported language.
func (t Type) Valid() bool {
	switch t {
	case Starlark, Risor:
		return true
	}
	return false
}

// Parse matches a language name case-insensitively. An empty name selects Default.
func Parse(name string) (Type, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Default, nil
	}
	t := Type(strings.ToLower(name))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unsupported language %q", platform.ErrInvalidInput, name)
	}
	return t, nil
}

// IdentifierKey folds an identifier into the form used for uniqueness checks.
// Both supported languages compare identifiers case-sensitively.
func (t Type) IdentifierKey(name string) string {
	return name
}

// keywords holds the reserved words per language. Field names must not collide with them.
var keywords = map[Type]map[string]struct{}{
	Starlark: setOf(
		"and", "break", "continue", "def", "elif", "else", "for", "if", "in", "lambda",
		"load", "not", "or", "pass", "return", "while", "None", "True", "False",
		"as", "assert", "async", "await", "class", "del", "except", "finally", "from",
		"global", "import", "is", "nonlocal", "raise", "try", "with", "yield",
	),
	Risor: setOf(
		"break", "case", "const", "continue", "default", "defer", "else", "false", "for",
		"from", "func", "go", "if", "import", "in", "nil", "range", "return", "switch",
		"true", "var",
	),
}

func setOf(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// ValidIdentifier reports whether name can be used as a field or module name in t.
func (t Type) ValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(name)
	if first != '_' && !unicode.IsLetter(first) {
		return false
	}
	for _, r := range name {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	_, reserved := keywords[t][name]
	return !reserved
}
