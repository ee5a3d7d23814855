// Package unit assembles the language-neutral description of a compiled container.
package unit

import (
	"fmt"
	"slices"
	"strings"

	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/extension"
	"github.com/robbyt/go-polyexpr/platform/language"
	"github.com/robbyt/go-polyexpr/platform/naming"
)

// Request is everything needed to build a Unit. Callers must not mutate it after handing it over.
type Request struct {
	Language    language.Type
	Expressions []string
	Extensions  []extension.Extension
	Imports     []string
	References  []string
}

// Method is one zero-argument entry point returning the value of Expression.
type Method struct {
	Name       string
	Expression string
}

// Field is a named slot in the container that receives an extension instance after load.
type Field struct {
	Name   string
	Type   string
	Origin string
}

// Unit is the abstract compilation unit handed to a backend.
type Unit struct {
	Language   language.Type
	Namespace  string
	ClassName  string
	Methods    []Method
	Fields     []Field
	Imports    []string
	References []string
}

// TypeName is the qualified name of the container.
func (u *Unit) TypeName() string {
	return u.Namespace + "." + u.ClassName
}

// Method returns the entry point generated for name.
func (u *Unit) Method(name string) (Method, bool) {
	for _, m := range u.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// FieldNames lists the field names in declaration order.
func (u *Unit) FieldNames() []string {
	names := make([]string, len(u.Fields))
	for i, f := range u.Fields {
		names[i] = f.Name
	}
	return names
}

// Build turns a request into a Unit. It has no side effects.
func Build(req Request) (*Unit, error) {
	lang := req.Language
	if lang == "" {
		lang = language.Default
	}
	if !lang.Valid() {
		return nil, fmt.Errorf("%w: unsupported language %q", platform.ErrInvalidInput, lang)
	}

	u := &Unit{
		Language:  lang,
		Namespace: naming.Namespace,
		ClassName: naming.ClassName,
	}

	seen := make(map[string]struct{}, len(req.Expressions))
	for _, expr := range req.Expressions {
		name, err := naming.MethodName(expr)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		u.Methods = append(u.Methods, Method{Name: name, Expression: expr})
	}

	exts := extension.NewSet(lang)
	origins := make([]string, 0, len(req.Extensions))
	for _, ext := range req.Extensions {
		if err := exts.Add(ext); err != nil {
			return nil, err
		}
		t, err := ext.ResolveType()
		if err != nil {
			return nil, err
		}
		origin, err := ext.Origin()
		if err != nil {
			return nil, err
		}
		u.Fields = append(u.Fields, Field{Name: ext.Name, Type: t.String(), Origin: origin})
		if origin != "" {
			origins = append(origins, origin)
		}
	}

	u.Imports = dedupe(DefaultImports, DefaultLanguageImports[lang], req.Imports)
	u.References = dedupe(DefaultReferences, DefaultLanguageReferences[lang], req.References, origins)

	for _, f := range u.Fields {
		if slices.Contains(u.Imports, f.Name) {
			return nil, fmt.Errorf("%w: field %q shadows an import", platform.ErrInvalidInput, f.Name)
		}
	}

	return u, nil
}

// dedupe concatenates lists, dropping blanks and keeping the first occurrence of each entry.
func dedupe(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, item := range list {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
