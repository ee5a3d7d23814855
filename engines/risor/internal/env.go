package internal

import (
	"maps"
	"slices"
	"sync"

	risorLib "github.com/risor-io/risor"
)

// allowedBuiltins are the risor builtins that only compute. Anything touching goroutines,
// channels, output or the host is left out.
var allowedBuiltins = []string{
	"all", "any", "bool", "byte", "call", "chr", "chunk", "coalesce", "error", "float",
	"getattr", "int", "is_hashable", "iter", "keys", "len", "list", "map", "ord",
	"reversed", "set", "sorted", "sprintf", "string", "try", "type",
}

// allowedModules may be imported by name. os, exec, http, net, time and rand are not here.
var allowedModules = []string{
	"base64", "bytes", "errors", "json", "math", "regexp", "strconv", "strings",
}

var defaultGlobals = sync.OnceValue(func() map[string]any {
	return risorLib.NewConfig().Globals()
})

// AllowedModule reports whether name is a builtin module that may be imported.
func AllowedModule(name string) bool {
	if !slices.Contains(allowedModules, name) {
		return false
	}
	_, ok := defaultGlobals()[name]
	return ok
}

// Globals returns the restricted builtin set plus the requested modules.
func Globals(imports []string) map[string]any {
	defaults := defaultGlobals()
	out := make(map[string]any, len(allowedBuiltins)+len(imports))
	for _, name := range allowedBuiltins {
		if v, ok := defaults[name]; ok {
			out[name] = v
		}
	}
	for _, name := range imports {
		if AllowedModule(name) {
			out[name] = defaults[name]
		}
	}
	return out
}

// GlobalNames lists every global an expression may reference, sorted.
func GlobalNames(imports, fields []string) []string {
	names := slices.Collect(maps.Keys(Globals(imports)))
	names = append(names, fields...)
	slices.Sort(names)
	return slices.Compact(names)
}

// Options builds the evaluation options: no default globals, the restricted set, and the
// current field values.
func Options(imports []string, fields map[string]any) []risorLib.Option {
	opts := []risorLib.Option{risorLib.WithoutDefaultGlobals()}
	for name, v := range Globals(imports) {
		opts = append(opts, risorLib.WithGlobal(name, v))
	}
	for name, v := range fields {
		opts = append(opts, risorLib.WithGlobal(name, v))
	}
	return opts
}
