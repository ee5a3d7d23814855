package internal

import (
	"fmt"
	"sort"

	"github.com/robbyt/go-polyexpr/platform/boundary"
	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// FromStarlark converts a Starlark value into a boundary value.
func FromStarlark(v starlarkLib.Value) (*boundary.Value, error) {
	if v == nil {
		return boundary.Nil(), nil
	}

	switch v := v.(type) {
	case starlarkLib.NoneType:
		return boundary.Nil(), nil
	case starlarkLib.Bool:
		return boundary.Bool(bool(v)), nil
	case starlarkLib.Int:
		if i, ok := v.Int64(); ok {
			return boundary.Int(i), nil
		}
		f, _ := starlarkLib.AsFloat(v)
		return boundary.Float(f), nil
	case starlarkLib.Float:
		return boundary.Float(float64(v)), nil
	case starlarkLib.String:
		return boundary.String(string(v)), nil
	case starlarkLib.Bytes:
		return boundary.String(string(v)), nil
	case *starlarkLib.List:
		return fromIterable(v, v.Len())
	case starlarkLib.Tuple:
		return fromIterable(v, v.Len())
	case *starlarkLib.Set:
		return fromIterable(v, v.Len())
	case *starlarkLib.Dict:
		entries := make(map[string]*boundary.Value, v.Len())
		for _, item := range v.Items() {
			key, ok := item[0].(starlarkLib.String)
			if !ok {
				key = starlarkLib.String(item[0].String())
			}
			val, err := FromStarlark(item[1])
			if err != nil {
				return nil, fmt.Errorf("failed to convert dict value %s: %w", key, err)
			}
			entries[string(key)] = val
		}
		return boundary.Map(entries), nil
	case *starlarkstruct.Struct:
		entries := make(map[string]*boundary.Value)
		for _, name := range v.AttrNames() {
			attr, err := v.Attr(name)
			if err != nil {
				return nil, err
			}
			val, err := FromStarlark(attr)
			if err != nil {
				return nil, fmt.Errorf("failed to convert struct field %s: %w", name, err)
			}
			entries[name] = val
		}
		return boundary.Map(entries), nil
	default:
		return nil, fmt.Errorf("unsupported Starlark type %s", v.Type())
	}
}

func fromIterable(v starlarkLib.Iterable, size int) (*boundary.Value, error) {
	items := make([]*boundary.Value, 0, size)
	iter := v.Iterate()
	defer iter.Done()
	var elem starlarkLib.Value
	for iter.Next(&elem) {
		item, err := FromStarlark(elem)
		if err != nil {
			return nil, fmt.Errorf("failed to convert element: %w", err)
		}
		items = append(items, item)
	}
	return boundary.List(items...), nil
}

// ToStarlark converts a boundary value into a frozen Starlark value.
// Maps become structs, so host objects read naturally as Ctx.X.
func ToStarlark(v *boundary.Value) (starlarkLib.Value, error) {
	out, err := toStarlark(v)
	if err != nil {
		return nil, err
	}
	out.Freeze()
	return out, nil
}

func toStarlark(v *boundary.Value) (starlarkLib.Value, error) {
	if v == nil {
		return starlarkLib.None, nil
	}

	switch v.Kind {
	case boundary.KindNil:
		return starlarkLib.None, nil
	case boundary.KindBool:
		return starlarkLib.Bool(v.Bool), nil
	case boundary.KindInt:
		return starlarkLib.MakeInt64(v.Int), nil
	case boundary.KindFloat:
		f, ok := v.ToGo().(float64)
		if !ok {
			return nil, fmt.Errorf("malformed float %q", v.Float)
		}
		return starlarkLib.Float(f), nil
	case boundary.KindString:
		return starlarkLib.String(v.Str), nil
	case boundary.KindList:
		elems := make([]starlarkLib.Value, len(v.List))
		for i, item := range v.List {
			elem, err := toStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("failed to convert list element: %w", err)
			}
			elems[i] = elem
		}
		return starlarkLib.NewList(elems), nil
	case boundary.KindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make(starlarkLib.StringDict, len(keys))
		for _, k := range keys {
			elem, err := toStarlark(v.Map[k])
			if err != nil {
				return nil, fmt.Errorf("failed to convert map value %q: %w", k, err)
			}
			fields[k] = elem
		}
		return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
	default:
		return nil, fmt.Errorf("unsupported boundary kind %q", v.Kind)
	}
}
