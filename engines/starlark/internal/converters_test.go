package internal

import (
	"math"
	"testing"

	"github.com/robbyt/go-polyexpr/platform/boundary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

func TestFromStarlark(t *testing.T) {
	t.Parallel()

	bigInt := starlarkLib.MakeInt64(math.MaxInt64).Add(starlarkLib.MakeInt(1))

	tests := []struct {
		name     string
		input    starlarkLib.Value
		expected any
		wantErr  bool
	}{
		// Primitive types
		{
			name:     "nil value",
			input:    nil,
			expected: nil,
		},
		{
			name:     "none",
			input:    starlarkLib.None,
			expected: nil,
		},
		{
			name:     "bool true",
			input:    starlarkLib.Bool(true),
			expected: true,
		},
		{
			name:     "int",
			input:    starlarkLib.MakeInt(42),
			expected: int64(42),
		},
		{
			name:     "int beyond int64",
			input:    bigInt,
			expected: float64(math.MaxInt64) + 1,
		},
		{
			name:     "float",
			input:    starlarkLib.Float(3.14),
			expected: 3.14,
		},
		{
			name:     "string",
			input:    starlarkLib.String("hello"),
			expected: "hello",
		},
		{
			name:     "bytes",
			input:    starlarkLib.Bytes("raw"),
			expected: "raw",
		},

		// Sequence types
		{
			name:     "empty list",
			input:    starlarkLib.NewList(nil),
			expected: []any{},
		},
		{
			name: "mixed type list",
			input: starlarkLib.NewList([]starlarkLib.Value{
				starlarkLib.MakeInt(1),
				starlarkLib.String("two"),
				starlarkLib.Bool(true),
			}),
			expected: []any{int64(1), "two", true},
		},
		{
			name:     "tuple",
			input:    starlarkLib.Tuple{starlarkLib.MakeInt(1), starlarkLib.None},
			expected: []any{int64(1), nil},
		},

		// Mapping types
		{
			name: "dict with non string key",
			input: func() *starlarkLib.Dict {
				d := starlarkLib.NewDict(2)
				_ = d.SetKey(starlarkLib.String("a"), starlarkLib.MakeInt(1))
				_ = d.SetKey(starlarkLib.MakeInt(2), starlarkLib.String("b"))
				return d
			}(),
			expected: map[string]any{"a": int64(1), "2": "b"},
		},
		{
			name: "struct",
			input: starlarkstruct.FromStringDict(starlarkstruct.Default, starlarkLib.StringDict{
				"X": starlarkLib.MakeInt(5),
			}),
			expected: map[string]any{"X": int64(5)},
		},

		// Unsupported
		{
			name:    "builtin function",
			input:   starlarkLib.Universe["len"],
			wantErr: true,
		},
		{
			name:    "list holding a function",
			input:   starlarkLib.NewList([]starlarkLib.Value{starlarkLib.Universe["len"]}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := FromStarlark(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.ToGo())
		})
	}
}

func TestToStarlark(t *testing.T) {
	t.Parallel()

	t.Run("map becomes frozen struct", func(t *testing.T) {
		t.Parallel()
		v, err := ToStarlark(boundary.Map(map[string]*boundary.Value{
			"X":    boundary.Int(5),
			"Tags": boundary.List(boundary.String("a")),
		}))
		require.NoError(t, err)

		s, ok := v.(*starlarkstruct.Struct)
		require.True(t, ok)
		x, err := s.Attr("X")
		require.NoError(t, err)
		assert.Equal(t, "5", x.String())

		tags, err := s.Attr("Tags")
		require.NoError(t, err)
		list, ok := tags.(*starlarkLib.List)
		require.True(t, ok)
		require.Error(t, list.Append(starlarkLib.String("b")), "nested values are frozen")
	})

	t.Run("scalars", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			in   *boundary.Value
			want starlarkLib.Value
		}{
			{nil, starlarkLib.None},
			{boundary.Nil(), starlarkLib.None},
			{boundary.Bool(true), starlarkLib.True},
			{boundary.Int(-3), starlarkLib.MakeInt(-3)},
			{boundary.Float(1.5), starlarkLib.Float(1.5)},
			{boundary.String("s"), starlarkLib.String("s")},
		}
		for _, tt := range tests {
			got, err := ToStarlark(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Type(), got.Type())
			assert.Equal(t, tt.want.String(), got.String())
		}
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		in := boundary.Map(map[string]*boundary.Value{
			"n":    boundary.Int(1),
			"list": boundary.List(boundary.Float(2.5), boundary.Nil()),
		})
		sv, err := ToStarlark(in)
		require.NoError(t, err)
		out, err := FromStarlark(sv)
		require.NoError(t, err)
		assert.Equal(t, in.ToGo(), out.ToGo())
	})

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()
		_, err := ToStarlark(&boundary.Value{Kind: "weird"})
		require.Error(t, err)
	})
}

func TestStandardModules(t *testing.T) {
	t.Parallel()

	mods := StandardModules()
	for _, name := range BuiltinNames() {
		assert.True(t, mods.Has(name), name)
	}
	assert.True(t, mods.Has("len"), "universe is included")
	assert.False(t, mods.Has("time"))
	assert.Equal(t, []string{"json", "math", "struct"}, BuiltinNames())

	_, ok := starlarkLib.Universe["math"]
	assert.False(t, ok, "global universe is untouched")

	_, ok = BuiltinModule("time")
	assert.False(t, ok)
}
