package proxy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/robbyt/go-polyexpr/isolation"
	"github.com/robbyt/go-polyexpr/platform/container"
)

// resolver serves module lookups from the table installed by the host. Every read goes
// through the gate, so it only works while the proxy holds an elevation.
type resolver struct {
	gate    *isolation.Gate
	modules map[string]string
}

func newResolver(gate *isolation.Gate, modules map[string]string) *resolver {
	r := &resolver{gate: gate, modules: make(map[string]string, len(modules))}
	for name, path := range modules {
		abs := gate.Abs(path)
		r.modules[name] = abs
		gate.Allow(abs)
	}
	return r
}

func (r *resolver) Resolve(name string) (*container.Module, error) {
	path, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleUnknown, name)
	}
	return r.read(name, path)
}

// ResolvePath accepts a path registered in the table, or any path inside the anchor.
func (r *resolver) ResolvePath(path string) (*container.Module, error) {
	abs := r.gate.Abs(path)
	for name, p := range r.modules {
		if p == abs {
			return r.read(name, p)
		}
	}
	name := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	return r.read(name, abs)
}

func (r *resolver) read(name, path string) (*container.Module, error) {
	src, err := r.gate.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return container.NewModule(name, path, src), nil
}
