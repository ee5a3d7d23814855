package internal

import (
	"fmt"

	"github.com/risor-io/risor/object"
	"github.com/robbyt/go-polyexpr/platform/boundary"
)

// FromObject converts a risor result into a boundary value.
func FromObject(obj object.Object) (*boundary.Value, error) {
	if obj == nil {
		return boundary.Nil(), nil
	}

	switch v := obj.(type) {
	case *object.NilType:
		return boundary.Nil(), nil
	case *object.Bool:
		return boundary.Bool(v.Value()), nil
	case *object.Int:
		return boundary.Int(v.Value()), nil
	case *object.Byte:
		return boundary.Int(int64(v.Value())), nil
	case *object.Float:
		return boundary.Float(v.Value()), nil
	case *object.String:
		return boundary.String(v.Value()), nil
	case *object.ByteSlice:
		return boundary.String(string(v.Value())), nil
	case *object.List:
		items := make([]*boundary.Value, 0, len(v.Value()))
		for _, item := range v.Value() {
			converted, err := FromObject(item)
			if err != nil {
				return nil, fmt.Errorf("failed to convert list element: %w", err)
			}
			items = append(items, converted)
		}
		return boundary.List(items...), nil
	case *object.Map:
		entries := make(map[string]*boundary.Value, len(v.Value()))
		for k, item := range v.Value() {
			converted, err := FromObject(item)
			if err != nil {
				return nil, fmt.Errorf("failed to convert map value %q: %w", k, err)
			}
			entries[k] = converted
		}
		return boundary.Map(entries), nil
	case *object.Error:
		return nil, fmt.Errorf("expression returned an error value: %s", v.Inspect())
	default:
		return nil, fmt.Errorf("unsupported risor type %s", obj.Type())
	}
}
