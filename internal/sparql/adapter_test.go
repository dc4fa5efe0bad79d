package sparql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/derefd/internal/namespace"
)

const xsdString = "http://www.w3.org/2001/XMLSchema#string"

type unknownAtom struct{}

func (unknownAtom) atomKind() string { return "unknown" }

func TestAdaptTypedLiteral(t *testing.T) {
	a := NewAdapter(namespace.New())

	tests := []struct {
		name string
		atom TypedLiteralAtom
		want string
	}{
		{
			name: "bare value",
			atom: TypedLiteralAtom{Value: ExpressionAtom{Text: "foo"}, XSDType: xsdString},
			want: `"foo"^^<` + xsdString + `>`,
		},
		{
			name: "already quoted",
			atom: TypedLiteralAtom{Value: ExpressionAtom{Text: `"foo"`}, XSDType: xsdString},
			want: `"foo"^^<` + xsdString + `>`,
		},
		{
			name: "string atom",
			atom: TypedLiteralAtom{Value: StringAtom{Value: "foo"}, XSDType: xsdString},
			want: `"foo"^^<` + xsdString + `>`,
		},
		{
			name: "number with curie type",
			atom: TypedLiteralAtom{Value: NumberAtom{Lexical: "42"}, XSDType: "xsd:int"},
			want: `"42"^^<http://www.w3.org/2001/XMLSchema#int>`,
		},
		{
			name: "bracketed type",
			atom: TypedLiteralAtom{Value: ExpressionAtom{Text: "1"}, XSDType: "<" + xsdString + ">"},
			want: `"1"^^<` + xsdString + `>`,
		},
		{
			name: "leading quote only",
			atom: TypedLiteralAtom{Value: ExpressionAtom{Text: `"foo`}, XSDType: xsdString},
			want: `"foo"^^<` + xsdString + `>`,
		},
		{
			name: "trailing quote inside text is kept",
			atom: TypedLiteralAtom{Value: ExpressionAtom{Text: `foo"bar`}, XSDType: xsdString},
			want: `"foo"bar"^^<` + xsdString + `>`,
		},
		{
			name: "variable",
			atom: TypedLiteralAtom{Value: VariableAtom{Name: "x"}, XSDType: "xsd:date"},
			want: `"?x"^^<http://www.w3.org/2001/XMLSchema#date>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := a.Adapt(tt.atom)
			require.NoError(t, err)
			assert.Equal(t, KindFunction, obj.Kind)
			assert.Equal(t, tt.want, obj.String())
		})
	}
}

func TestAdaptAtoms(t *testing.T) {
	a := NewAdapter(namespace.New())

	obj, err := a.Adapt(ResourceAtom{URI: "rdfs:label"})
	require.NoError(t, err)
	assert.Equal(t, "<"+namespace.RDFS+"label>", obj.Text)

	obj, err = a.Adapt(VariableAtom{Name: "?s"})
	require.NoError(t, err)
	assert.Equal(t, Object{Kind: KindVariable, Text: "?s"}, obj)

	obj, err = a.Adapt(StringAtom{Value: `say "hi"`})
	require.NoError(t, err)
	assert.Equal(t, `"say \"hi\""`, obj.Text)
}

func TestAdaptErrors(t *testing.T) {
	a := NewAdapter(nil)

	_, err := a.Adapt(unknownAtom{})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = a.Adapt(nil)
	assert.ErrorIs(t, err, ErrUnavailableObject)

	_, err = a.Adapt(TypedLiteralAtom{XSDType: xsdString})
	assert.ErrorIs(t, err, ErrUnavailableObject)

	_, err = a.Adapt(TypedLiteralAtom{Value: ExpressionAtom{Text: "foo"}, XSDType: "  "})
	assert.ErrorIs(t, err, ErrUnavailableObject)

	_, err = a.Adapt(TypedLiteralAtom{Value: unknownAtom{}, XSDType: xsdString})
	var callErr *AtomCallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, "unknown", callErr.Atom)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = a.Adapt(NumberAtom{Lexical: "abc"})
	assert.ErrorIs(t, err, ErrUnavailableObject)
}

func TestQuoteString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Paris", want: `"Paris"`},
		{name: "quote and backslash", in: `a"b\c`, want: `"a\"b\\c"`},
		{name: "grammar escapes", in: "\t\b\n\r\f", want: `"\t\b\n\r\f"`},
		{name: "single quote kept", in: "l'eau", want: `"l'eau"`},
		{name: "bell and vertical tab", in: "\a\v", want: `"\u0007\u000B"`},
		{name: "nul and delete", in: "\x00\x7f", want: `"\u0000\u007F"`},
		{name: "non ascii kept", in: "Zürich 東京", want: `"Zürich 東京"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, quoteString(tt.in))
		})
	}
}
