// Package artifact persists compiled units as single files on disk.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/robbyt/go-polyexpr/platform/language"
	"github.com/robbyt/go-polyexpr/platform/unit"
)

const (
	// Version is bumped whenever the envelope layout changes.
	Version = 1

	// Extension is the file suffix of every artifact.
	Extension = ".pxu"
)

// Unit is the loadable form of a compiled container. Payload is backend specific.
type Unit struct {
	Version    int           `json:"version"`
	Language   language.Type `json:"language"`
	TypeName   string        `json:"type_name"`
	Methods    []unit.Method `json:"methods"`
	Fields     []unit.Field  `json:"fields"`
	Imports    []string      `json:"imports"`
	References []string      `json:"references"`
	Payload    []byte        `json:"payload"`
}

// FromAbstract copies the descriptive parts of u into a loadable unit carrying payload.
func FromAbstract(u *unit.Unit, payload []byte) *Unit {
	return &Unit{
		Version:    Version,
		Language:   u.Language,
		TypeName:   u.TypeName(),
		Methods:    u.Methods,
		Fields:     u.Fields,
		Imports:    u.Imports,
		References: u.References,
		Payload:    payload,
	}
}

// HasMethod reports whether the unit declares an entry point called name.
func (u *Unit) HasMethod(name string) bool {
	for _, m := range u.Methods {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Handle locates a written artifact.
type Handle struct {
	Path     string
	TypeName string
}

// Dir is the directory holding the artifact.
func (h *Handle) Dir() string {
	return filepath.Dir(h.Path)
}

// Write stores u in dir under a fresh unique name. A partially written file is removed.
func Write(dir string, u *Unit) (*Handle, error) {
	if dir == "" {
		return nil, ErrEmptyDir
	}
	data, err := Encode(u)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+Extension)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = Remove(path)
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}
	return &Handle{Path: path, TypeName: u.TypeName}, nil
}

// Encode serializes u.
func Encode(u *Unit) ([]byte, error) {
	if u == nil {
		return nil, fmt.Errorf("%w: nil unit", ErrMalformed)
	}
	data, err := jsoniter.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return data, nil
}

// Decode parses an artifact produced by Encode.
func Decode(data []byte) (*Unit, error) {
	var u Unit
	if err := jsoniter.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if u.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersionMismatch, u.Version)
	}
	if u.TypeName == "" || !u.Language.Valid() {
		return nil, fmt.Errorf("%w: missing type name or language", ErrMalformed)
	}
	return &u, nil
}

// Remove deletes the artifact at path. A file that is already gone is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
