package unit

import "github.com/robbyt/go-polyexpr/platform/language"

// DefaultImports are made available to every compiled container.
var DefaultImports = []string{"math"}

// DefaultLanguageImports are added after DefaultImports for the matching language.
var DefaultLanguageImports = map[language.Type][]string{
	language.Starlark: {"json", "struct"},
	language.Risor:    {"strings", "json"},
}

// DefaultReferences name the packages every compiled container depends on.
var DefaultReferences = []string{"github.com/robbyt/go-polyexpr/platform/boundary"}

// DefaultLanguageReferences are added after DefaultReferences for the matching language.
var DefaultLanguageReferences = map[language.Type][]string{
	language.Starlark: {"go.starlark.net/starlark"},
	language.Risor:    {"github.com/risor-io/risor"},
}
