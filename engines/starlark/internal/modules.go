package internal

import (
	"maps"
	"slices"

	starlarkJSON "go.starlark.net/lib/json"
	starlarkMath "go.starlark.net/lib/math"
	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Module names that are always importable. time is left out on purpose: it reads the clock.
const (
	NamespaceJSON   = "json"
	NamespaceMath   = "math"
	NamespaceStruct = "struct"
)

var builtinModules = starlarkLib.StringDict{
	NamespaceJSON:   starlarkJSON.Module,
	NamespaceMath:   starlarkMath.Module,
	NamespaceStruct: starlarkLib.NewBuiltin(NamespaceStruct, starlarkstruct.Make),
}

// BuiltinModule returns the builtin module registered under name.
func BuiltinModule(name string) (starlarkLib.Value, bool) {
	v, ok := builtinModules[name]
	return v, ok
}

// BuiltinNames lists the builtin module names, sorted.
func BuiltinNames() []string {
	return slices.Sorted(maps.Keys(builtinModules))
}

// StandardModules returns a copy of the Starlark universe with the builtin modules added.
// Module scripts are executed against it.
func StandardModules() starlarkLib.StringDict {
	universe := maps.Clone(starlarkLib.Universe)
	maps.Copy(universe, builtinModules)
	return universe
}
