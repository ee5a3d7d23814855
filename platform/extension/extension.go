// Package extension describes host objects that are bound into a compiled container as named fields.
package extension

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/language"
)

var (
	ErrNoType        = errors.New("extension has neither a type nor an instance")
	ErrTypeMismatch  = errors.New("extension instance is not assignable to its declared type")
	ErrInvalidName   = errors.New("extension name is not a valid identifier")
	ErrDuplicateName = errors.New("extension name already registered")
)

// Extension is a host object exposed to expressions under Name.
// Type is optional when Instance is set.
type Extension struct {
	Name     string
	Instance any
	Type     reflect.Type
}

// New describes an extension by its instance alone.
func New(name string, instance any) Extension {
	return Extension{Name: name, Instance: instance}
}

// ResolveType returns the declared type, or the dynamic type of the instance.
func (e Extension) ResolveType() (reflect.Type, error) {
	if e.Type != nil {
		if e.Instance != nil && !reflect.TypeOf(e.Instance).AssignableTo(e.Type) {
			return nil, fmt.Errorf("%w: %w: %s is not %s",
				platform.ErrInvalidInput, ErrTypeMismatch, reflect.TypeOf(e.Instance), e.Type)
		}
		return e.Type, nil
	}
	if e.Instance != nil {
		return reflect.TypeOf(e.Instance), nil
	}
	return nil, fmt.Errorf("%w: %w: %q", platform.ErrInvalidInput, ErrNoType, e.Name)
}

// Origin is the import path of the package that defines the resolved type.
// Builtin and unnamed types have no origin.
func (e Extension) Origin() (string, error) {
	t, err := e.ResolveType()
	if err != nil {
		return "", err
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.PkgPath(), nil
}

// Set is an ordered collection of extensions with unique names.
type Set struct {
	lang  language.Type
	items []Extension
	index map[string]int
}

// NewSet creates an empty collection using the identifier rules of lang.
func NewSet(lang language.Type) *Set {
	return &Set{lang: lang, index: make(map[string]int)}
}

// Add appends ext, rejecting invalid and duplicate names.
func (s *Set) Add(ext Extension) error {
	if !s.lang.ValidIdentifier(ext.Name) {
		return fmt.Errorf("%w: %w: %q", platform.ErrInvalidInput, ErrInvalidName, ext.Name)
	}
	key := s.lang.IdentifierKey(ext.Name)
	if _, exists := s.index[key]; exists {
		return fmt.Errorf("%w: %w: %q", platform.ErrInvalidInput, ErrDuplicateName, ext.Name)
	}
	if _, err := ext.ResolveType(); err != nil {
		return err
	}
	s.index[key] = len(s.items)
	s.items = append(s.items, ext)
	return nil
}

// Get returns the extension registered under name.
func (s *Set) Get(name string) (Extension, bool) {
	i, ok := s.index[s.lang.IdentifierKey(name)]
	if !ok {
		return Extension{}, false
	}
	return s.items[i], true
}

func (s *Set) Len() int {
	return len(s.items)
}

// All returns a copy of the extensions in insertion order.
func (s *Set) All() []Extension {
	out := make([]Extension, len(s.items))
	copy(out, s.items)
	return out
}
