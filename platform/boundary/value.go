package boundary

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/robbyt/go-polyexpr/platform"
)

// Kind tags the shape of a Value.
type Kind string

const (
	KindNil    Kind = "nil"
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "string"
	KindList   Kind = "list"
	KindMap    Kind = "map"
)

// Value is the only shape data takes when it crosses the isolation boundary.
// Integers and floats stay distinct. Floats travel as text so NaN and infinities survive.
type Value struct {
	Kind  Kind              `json:"k"`
	Bool  bool              `json:"b,omitempty"`
	Int   int64             `json:"i,omitempty"`
	Float string            `json:"f,omitempty"`
	Str   string            `json:"s,omitempty"`
	List  []*Value          `json:"l,omitempty"`
	Map   map[string]*Value `json:"m,omitempty"`
}

func Nil() *Value { return &Value{Kind: KindNil} }
func Bool(b bool) *Value { return &Value{Kind: KindBool, Bool: b} }
func Int(i int64) *Value { return &Value{Kind: KindInt, Int: i} }
func String(s string) *Value { return &Value{Kind: KindString, Str: s} }
func List(items ...*Value) *Value { return &Value{Kind: KindList, List: items} }

func Float(f float64) *Value {
	return &Value{Kind: KindFloat, Float: strconv.FormatFloat(f, 'g', -1, 64)}
}

// Map wraps entries, a nil map becomes an empty one.
func Map(entries map[string]*Value) *Value {
	if entries == nil {
		entries = map[string]*Value{}
	}
	return &Value{Kind: KindMap, Map: entries}
}

// Keys returns the map keys in sorted order.
func (v *Value) Keys() []string {
	keys := make([]string, 0, len(v.Map))
	for k := range v.Map {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToGo converts v into plain Go values: nil, bool, int64, float64, string, []any, map[string]any.
func (v *Value) ToGo() any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		f, err := strconv.ParseFloat(v.Float, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case KindString:
		return v.Str
	case KindList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = item.ToGo()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, item := range v.Map {
			out[k] = item.ToGo()
		}
		return out
	default:
		return nil
	}
}

// number covers both encoding/json.Number and jsoniter.Number.
type number interface {
	String() string
	Int64() (int64, error)
	Float64() (float64, error)
}

// maxDepth bounds how deeply nested a host value may be.
const maxDepth = 100

var (
	errCyclic  = errors.New("value contains a reference cycle")
	errTooDeep = fmt.Errorf("value nested deeper than %d levels", maxDepth)

	jsonMarshaler = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshaler = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// FromGo converts a Go value into a Value. Structs and other composite host types are
// encoded through their JSON form. Values with no such form, self-referencing values and
// values nested deeper than maxDepth fail with platform.ErrExtensionNotMarshallable.
func FromGo(in any) (*Value, error) {
	c := &converter{path: make(map[visit]struct{})}
	return c.value(in, 0)
}

// visit identifies a reference-typed value on the current conversion path.
type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

// converter tracks the maps, slices and pointers being converted so a cycle is
// reported instead of recursing forever.
type converter struct {
	path map[visit]struct{}
}

func (c *converter) value(in any, depth int) (*Value, error) {
	if depth > maxDepth {
		return nil, notMarshallable(in, errTooDeep)
	}

	switch x := in.(type) {
	case nil:
		return Nil(), nil
	case *Value:
		if x == nil {
			return Nil(), nil
		}
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case []byte:
		return String(string(x)), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint:
		return fromUnsigned(uint64(x))
	case uint64:
		return fromUnsigned(x)
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, notMarshallable(in, err)
		}
		return Float(f), nil
	case []any:
		return c.fromSlice(in, reflect.ValueOf(x), depth)
	case map[string]any:
		return c.fromMap(in, reflect.ValueOf(x), depth)
	}

	rv := reflect.ValueOf(in)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Nil(), nil
		}
		return c.fromSlice(in, rv, depth)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return c.fromJSON(in, depth)
		}
		if rv.IsNil() {
			return Nil(), nil
		}
		return c.fromMap(in, rv, depth)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, notMarshallable(in, fmt.Errorf("unsupported kind %s", rv.Kind()))
	default:
		return c.fromJSON(in, depth)
	}
}

func fromUnsigned(u uint64) (*Value, error) {
	if u > math.MaxInt64 {
		return Float(float64(u)), nil
	}
	return Int(int64(u)), nil
}

// enter records a map, slice or pointer on the conversion path. Arrays and empty
// slices carry no shared identity and are never recorded.
func (c *converter) enter(rv reflect.Value) (visit, bool, error) {
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
	default:
		return visit{}, false, nil
	}
	if rv.IsNil() || (rv.Kind() != reflect.Pointer && rv.Len() == 0) {
		return visit{}, false, nil
	}
	v := visit{ptr: uintptr(rv.UnsafePointer()), typ: rv.Type(), len: -1}
	if rv.Kind() == reflect.Slice {
		v.len = rv.Len()
	}
	if _, ok := c.path[v]; ok {
		return visit{}, false, errCyclic
	}
	c.path[v] = struct{}{}
	return v, true, nil
}

func (c *converter) fromSlice(in any, rv reflect.Value, depth int) (*Value, error) {
	v, entered, err := c.enter(rv)
	if err != nil {
		return nil, notMarshallable(in, err)
	}
	if entered {
		defer delete(c.path, v)
	}

	items := make([]*Value, rv.Len())
	for i := range rv.Len() {
		item, err := c.value(rv.Index(i).Interface(), depth+1)
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	return List(items...), nil
}

func (c *converter) fromMap(in any, rv reflect.Value, depth int) (*Value, error) {
	v, entered, err := c.enter(rv)
	if err != nil {
		return nil, notMarshallable(in, err)
	}
	if entered {
		defer delete(c.path, v)
	}

	entries := make(map[string]*Value, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		item, err := c.value(iter.Value().Interface(), depth+1)
		if err != nil {
			return nil, err
		}
		entries[iter.Key().String()] = item
	}
	return Map(entries), nil
}

// walk visits everything the JSON encoder would visit and fails on a cycle or on
// excessive nesting. Types with their own marshalers are not descended into.
func (c *converter) walk(rv reflect.Value, depth int) error {
	if depth > maxDepth {
		return errTooDeep
	}
	if !rv.IsValid() {
		return nil
	}
	t := rv.Type()
	if t.Implements(jsonMarshaler) || t.Implements(textMarshaler) {
		return nil
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return c.walk(rv.Elem(), depth+1)
	case reflect.Pointer, reflect.Map, reflect.Slice:
		v, entered, err := c.enter(rv)
		if err != nil {
			return err
		}
		if !entered {
			return nil
		}
		defer delete(c.path, v)

		switch rv.Kind() {
		case reflect.Pointer:
			return c.walk(rv.Elem(), depth+1)
		case reflect.Map:
			iter := rv.MapRange()
			for iter.Next() {
				if err := c.walk(iter.Value(), depth+1); err != nil {
					return err
				}
			}
		default:
			for i := range rv.Len() {
				if err := c.walk(rv.Index(i), depth+1); err != nil {
					return err
				}
			}
		}
	case reflect.Array:
		for i := range rv.Len() {
			if err := c.walk(rv.Index(i), depth+1); err != nil {
				return err
			}
		}
	case reflect.Struct:
		for i := range t.NumField() {
			if f := t.Field(i); !f.IsExported() && !f.Anonymous {
				continue
			}
			if err := c.walk(rv.Field(i), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

var hostCodec = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// fromJSON encodes a host object through its JSON form and converts the decoded tree.
// The object is walked first since the encoder itself does not stop on cycles.
func (c *converter) fromJSON(in any, depth int) (*Value, error) {
	if err := c.walk(reflect.ValueOf(in), depth); err != nil {
		return nil, notMarshallable(in, err)
	}
	data, err := hostCodec.Marshal(in)
	if err != nil {
		return nil, notMarshallable(in, err)
	}
	var tree any
	if err := hostCodec.Unmarshal(data, &tree); err != nil {
		return nil, notMarshallable(in, err)
	}
	// a host type whose JSON form is itself unconvertible would recurse forever
	switch tree.(type) {
	case map[string]any, []any, string, bool, nil, number:
		return c.value(tree, depth)
	default:
		return nil, notMarshallable(in, fmt.Errorf("unexpected JSON form %T", tree))
	}
}

func notMarshallable(in any, err error) error {
	return fmt.Errorf("%w: %T: %w", platform.ErrExtensionNotMarshallable, in, err)
}
