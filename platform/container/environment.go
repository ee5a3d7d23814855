package container

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/robbyt/go-polyexpr/platform/artifact"
)

// ModuleKind tells a loader how to bring a resolved dependency into the container.
type ModuleKind string

const (
	ModuleScript ModuleKind = "script"
	ModuleWasm   ModuleKind = "wasm"
)

var wasmMagic = []byte{0x00, 'a', 's', 'm'}

// Module is a non-standard dependency located through the resolver table.
type Module struct {
	Name   string
	Path   string
	Kind   ModuleKind
	Source []byte
}

// NewModule classifies source by content: WebAssembly binaries start with "\0asm",
// anything else is treated as script text.
func NewModule(name, path string, source []byte) *Module {
	kind := ModuleScript
	if bytes.HasPrefix(source, wasmMagic) {
		kind = ModuleWasm
	}
	return &Module{Name: name, Path: path, Kind: kind, Source: source}
}

// Resolver locates a non-standard dependency by name.
type Resolver interface {
	Resolve(name string) (*Module, error)
	// ResolvePath locates a module referenced by path from inside another module.
	ResolvePath(path string) (*Module, error)
}

// Limits bound the work a loaded container may do.
type Limits struct {
	MaxSteps       uint64
	MaxMemoryPages uint32
}

// Environment is what a language loader gets to work with inside the isolation context.
type Environment struct {
	Handler  slog.Handler
	Limits   Limits
	Resolver Resolver
}

// Loader turns a loadable unit into a capability table.
type Loader interface {
	Load(ctx context.Context, u *artifact.Unit, env *Environment) (*Table, error)
}
