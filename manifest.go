package polyexpr

import (
	"slices"

	"github.com/robbyt/go-polyexpr/platform/extension"
	"github.com/robbyt/go-polyexpr/platform/manifest"
)

// FromManifest builds the expression set a manifest describes.
func FromManifest(m *manifest.Manifest) (*ExpressionMeta, error) {
	meta, err := NewMeta(m.Language)
	if err != nil {
		return nil, err
	}
	if err := meta.AddExpressions(m.Expressions...); err != nil {
		return nil, err
	}
	for _, name := range m.Imports {
		if err := meta.AddImport(name); err != nil {
			return nil, err
		}
	}
	for _, ref := range m.References {
		if err := meta.AddReference(ref); err != nil {
			return nil, err
		}
	}

	modules, err := m.ModulePaths()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := meta.AddModule(name, modules[name]); err != nil {
			return nil, err
		}
	}

	for _, name := range m.ExtensionNames() {
		if err := meta.AddExtension(extension.New(name, m.Extensions[name])); err != nil {
			return nil, err
		}
	}
	return meta, nil
}
