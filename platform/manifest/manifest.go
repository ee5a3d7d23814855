// Package manifest reads expression sets described in YAML.
//
//	language: starlark
//	expressions:
//	  - Ctx.X * 2
//	imports: [math]
//	modules:
//	  helpers: ./helpers.star
//	extensions:
//	  Ctx:
//	    X: 5
package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"slices"
	"strings"

	"github.com/robbyt/go-polyexpr/platform/language"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalid         = errors.New("invalid manifest")
	ErrRelativeModule  = errors.New("relative module path needs a file source")
	ErrSourceAvailable = errors.New("manifest source not available")
)

// Manifest is the YAML form of an expression set. Extension values are static data.
type Manifest struct {
	Language    string            `yaml:"language"`
	Expressions []string          `yaml:"expressions"`
	Imports     []string          `yaml:"imports,omitempty"`
	References  []string          `yaml:"references,omitempty"`
	Modules     map[string]string `yaml:"modules,omitempty"`
	Extensions  map[string]any    `yaml:"extensions,omitempty"`

	// BaseDir resolves relative module paths. Read sets it for file sources.
	BaseDir string `yaml:"-"`
}

// Source is anything that can produce a manifest document.
type Source interface {
	GetReader(ctx context.Context) (io.ReadCloser, error)
	GetSourceURL() *url.URL
}

// Parse decodes a single YAML document. Unknown keys are rejected.
func Parse(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Read fetches and parses the manifest behind src.
func Read(ctx context.Context, src Source) (*Manifest, error) {
	rc, err := src.GetReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceAvailable, err)
	}
	defer func() { _ = rc.Close() }()

	m, err := Parse(rc)
	if err != nil {
		return nil, err
	}
	if u := src.GetSourceURL(); u != nil && u.Scheme == "file" {
		m.BaseDir = filepath.Dir(u.Path)
	}
	return m, nil
}

func (m *Manifest) Validate() error {
	if _, err := language.Parse(m.Language); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for _, expr := range m.Expressions {
		if strings.TrimSpace(expr) == "" {
			return fmt.Errorf("%w: blank expression", ErrInvalid)
		}
	}
	for name, path := range m.Modules {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("%w: module %q has no path", ErrInvalid, name)
		}
	}
	return nil
}

// ModulePaths returns module names mapped to absolute paths.
func (m *Manifest) ModulePaths() (map[string]string, error) {
	out := make(map[string]string, len(m.Modules))
	for name, path := range m.Modules {
		if !filepath.IsAbs(path) {
			if m.BaseDir == "" {
				return nil, fmt.Errorf("%w: %s: %q", ErrRelativeModule, name, path)
			}
			path = filepath.Join(m.BaseDir, path)
		}
		out[name] = filepath.Clean(path)
	}
	return out, nil
}

// ExtensionNames is the sorted list of extension names.
func (m *Manifest) ExtensionNames() []string {
	names := make([]string, 0, len(m.Extensions))
	for name := range m.Extensions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
