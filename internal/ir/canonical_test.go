package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalScalarsAndContainers(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"bool", IRBool(false), "false"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"go map", map[string]any{"b": int64(1), "a": "x"}, `{"a":"x","b":1}`},
		{"go slice", []any{1, "two", true}, `[1,"two",true]`},
		{"nested keys sorted", IRObject{"z": IRObject{"b": IRInt(1), "a": IRInt(2)}, "a": IRInt(3)}, `{"a":3,"z":{"a":2,"b":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	// U+10000 encodes as surrogate 0xD800 which sorts before 0xE000.
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRObject{"hint": IRString("<b>a & b</b>")})
	require.NoError(t, err)
	assert.Equal(t, `{"hint":"<b>a & b</b>"}`, string(result))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	for name, input := range map[string]any{
		"float64": 3.14,
		"float32": float32(1.5),
		"nested":  map[string]any{"a": 0.5},
		"missing": IRObject{"a": nil},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := MarshalCanonical(input)
			require.Error(t, err)
		})
	}
}

func TestMarshalCanonicalNull(t *testing.T) {
	result, err := MarshalCanonical(IRObject{
		"editor":          IRString("single_line"),
		"field_extension": IRNull{},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"editor":"single_line","field_extension":null}`, string(result))

	result, err = MarshalCanonical(nil)
	require.NoError(t, err)
	assert.Equal(t, `null`, string(result))
}

func TestMarshalCanonicalReservesReferenceKey(t *testing.T) {
	_, err := MarshalCanonical(IRObject{"validators": IRObject{ReferenceKey: IRString("field:title")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")

	ref, err := MarshalCanonical(IRObject{"id": FieldRef("title")})
	require.NoError(t, err)
	assert.Equal(t, `{"id":{"$ref":"field:title"}}`, string(ref))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	composed, err := MarshalCanonical(IRObject{"caf\u00e9": IRString("caf\u00e9")})
	require.NoError(t, err)
	decomposed, err := MarshalCanonical(IRObject{"cafe\u0301": IRString("cafe\u0301")})
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"U+2028 literal", "a\u2028b", "\"a\u2028b\""},
		{"U+2029 literal", "a\u2029b", "\"a\u2029b\""},
		{"backslash text kept", `see \u2028`, `"see \\u2028"`},
		{"mixed", "x \\u2028 y \u2028", "\"x \\\\u2028 y \u2028\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(IRString(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalReferenceUsesDescription(t *testing.T) {
	result, err := MarshalCanonical(IRObject{
		"item_types": IRArray{FieldRef("title")},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"item_types":[{"$ref":"field:title"}]}`, string(result))
}

func TestMarshalCanonicalReferenceWithoutDescription(t *testing.T) {
	_, err := MarshalCanonical(IRArray{Reference{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "description")
}

func TestMarshalCanonicalIdempotent(t *testing.T) {
	values := []IRValue{
		IRString("hello"),
		IRArray{IRInt(1), IRString("two"), IRBool(false)},
		IRObject{"nested": IRObject{"list": IRArray{IRInt(1)}}, "s": IRString("v")},
		IRObject{"hint": IRNull{}},
	}

	for _, original := range values {
		first, err := MarshalCanonical(original)
		require.NoError(t, err)

		decoded, err := UnmarshalIRValue(first)
		require.NoError(t, err)

		second, err := MarshalCanonical(decoded)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func FuzzMarshalCanonicalIdempotent(f *testing.F) {
	f.Add(`{"a":1,"b":"test"}`)
	f.Add(`[1,2,3]`)
	f.Add(`{"validators":{"length":{"min":1}}}`)

	f.Fuzz(func(t *testing.T, input string) {
		val, err := UnmarshalIRValue([]byte(input))
		if err != nil {
			t.Skip()
		}
		first, err := MarshalCanonical(val)
		if err != nil {
			t.Skip()
		}
		decoded, err := UnmarshalIRValue(first)
		require.NoError(t, err)
		second, err := MarshalCanonical(decoded)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}
