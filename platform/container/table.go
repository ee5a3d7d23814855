// Package container holds the capability table a language loader builds for a loaded unit,
// and the environment the loader runs in.
package container

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/robbyt/go-polyexpr/platform"
	"github.com/robbyt/go-polyexpr/platform/boundary"
)

// Invoker runs one zero-argument entry point.
type Invoker func(ctx context.Context) (*boundary.Value, error)

// Setter assigns a field of the loaded container.
type Setter func(v *boundary.Value) error

// Table maps entry-point and field names to the functions that serve them.
// It is built once by a Loader and never changes afterwards, apart from Close.
type Table struct {
	typeName  string
	invokers  map[string]Invoker
	setters   map[string]Setter
	closers   []func() error
	closeOnce sync.Once
	closeErr  error
}

func NewTable(typeName string) *Table {
	return &Table{
		typeName: typeName,
		invokers: make(map[string]Invoker),
		setters:  make(map[string]Setter),
	}
}

func (t *Table) TypeName() string {
	return t.typeName
}

func (t *Table) AddInvoker(name string, fn Invoker) error {
	if _, ok := t.invokers[name]; ok {
		return fmt.Errorf("%w: entry point %q", ErrDuplicateEntry, name)
	}
	t.invokers[name] = fn
	return nil
}

func (t *Table) AddSetter(name string, fn Setter) error {
	if _, ok := t.setters[name]; ok {
		return fmt.Errorf("%w: field %q", ErrDuplicateEntry, name)
	}
	t.setters[name] = fn
	return nil
}

// OnClose registers a function run by Close, in reverse registration order.
func (t *Table) OnClose(fn func() error) {
	t.closers = append(t.closers, fn)
}

// Invoke calls the entry point registered under name.
func (t *Table) Invoke(ctx context.Context, name string) (*boundary.Value, error) {
	fn, ok := t.invokers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s", platform.ErrUnknownEntryPoint, name, t.typeName)
	}
	return fn(ctx)
}

// Set assigns v to the field registered under name.
func (t *Table) Set(name string, v *boundary.Value) error {
	fn, ok := t.setters[name]
	if !ok {
		return fmt.Errorf("%w: %q on %s", platform.ErrUnknownField, name, t.typeName)
	}
	return fn(v)
}

// Methods lists the entry-point names, sorted.
func (t *Table) Methods() []string {
	return sortedKeys(t.invokers)
}

// Fields lists the field names, sorted.
func (t *Table) Fields() []string {
	return sortedKeys(t.setters)
}

// Close releases everything registered with OnClose. Later calls return the first result.
func (t *Table) Close() error {
	t.closeOnce.Do(func() {
		var errs []error
		for _, fn := range slices.Backward(t.closers) {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		t.closeErr = errors.Join(errs...)
	})
	return t.closeErr
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
