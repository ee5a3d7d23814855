package polyexpr

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/extension"
	"github.com/robbyt/go-polyexpr/platform/language"
	"github.com/robbyt/go-polyexpr/platform/unit"
)

// ExpressionMeta collects everything that goes into one compiled expression set. It is
// not safe for concurrent use; Request takes a snapshot that is.
type ExpressionMeta struct {
	lang        language.Type
	expressions []string
	seen        map[string]struct{}
	extensions  *extension.Set
	imports     []string
	references  []string
	modules     map[string]string
}

// NewMeta starts an expression set for the named language. An empty name selects the
// default language.
func NewMeta(lang string) (*ExpressionMeta, error) {
	t, err := language.Parse(lang)
	if err != nil {
		return nil, err
	}
	return &ExpressionMeta{
		lang:       t,
		seen:       make(map[string]struct{}),
		extensions: extension.NewSet(t),
		modules:    make(map[string]string),
	}, nil
}

func (m *ExpressionMeta) Language() language.Type {
	return m.lang
}

// AddExpression appends expr unless it is already present.
func (m *ExpressionMeta) AddExpression(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("%w: empty expression", platform.ErrInvalidInput)
	}
	if _, ok := m.seen[expr]; ok {
		return nil
	}
	m.seen[expr] = struct{}{}
	m.expressions = append(m.expressions, expr)
	return nil
}

// AddExpressions adds each of exprs in order, stopping at the first invalid one.
func (m *ExpressionMeta) AddExpressions(exprs ...string) error {
	for _, expr := range exprs {
		if err := m.AddExpression(expr); err != nil {
			return err
		}
	}
	return nil
}

// AddExtension binds ext.Instance to a field named ext.Name. Duplicate names and
// extensions without a resolvable type are rejected here rather than at compile time.
func (m *ExpressionMeta) AddExtension(ext extension.Extension) error {
	return m.extensions.Add(ext)
}

// AddImport makes a module available to every expression under its own name.
func (m *ExpressionMeta) AddImport(name string) error {
	if !m.lang.ValidIdentifier(name) {
		return fmt.Errorf("%w: invalid import name %q", platform.ErrInvalidInput, name)
	}
	if !slices.Contains(m.imports, name) {
		m.imports = append(m.imports, name)
	}
	return nil
}

// AddReference records a dependency of the compiled container.
func (m *ExpressionMeta) AddReference(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("%w: empty reference", platform.ErrInvalidInput)
	}
	if !slices.Contains(m.references, ref) {
		m.references = append(m.references, ref)
	}
	return nil
}

// AddModule registers a module file (a script or a WebAssembly binary) that the isolation
// context resolves by name. The module is imported into every expression under name.
func (m *ExpressionMeta) AddModule(name, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty module path for %q", platform.ErrInvalidInput, name)
	}
	if err := m.AddImport(name); err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %w", platform.ErrInvalidInput, err)
	}
	m.modules[name] = abs
	return m.AddReference(name)
}

// Expressions returns a copy of the expressions in insertion order.
func (m *ExpressionMeta) Expressions() []string {
	return slices.Clone(m.expressions)
}

// Extensions returns a copy of the extensions in insertion order.
func (m *ExpressionMeta) Extensions() []extension.Extension {
	return m.extensions.All()
}

// Modules returns a copy of the module table, name to absolute path.
func (m *ExpressionMeta) Modules() map[string]string {
	return maps.Clone(m.modules)
}

// Request snapshots the expression set. Later changes to m do not affect it.
func (m *ExpressionMeta) Request() unit.Request {
	return unit.Request{
		Language:    m.lang,
		Expressions: slices.Clone(m.expressions),
		Extensions:  m.extensions.All(),
		Imports:     slices.Clone(m.imports),
		References:  slices.Clone(m.references),
	}
}
