// Package sparql renders rule atoms as SPARQL text.
package sparql

// Atom is a rule construct the Adapter knows how to render.
type Atom interface {
	atomKind() string
}

// ExpressionAtom is an already rendered SPARQL expression, used verbatim.
type ExpressionAtom struct {
	Text string
}

// StringAtom is a plain string literal.
type StringAtom struct {
	Value string
}

// NumberAtom is a numeric literal in its lexical form ("42", "-3.5e2").
type NumberAtom struct {
	Lexical string
}

// VariableAtom is a query variable, rendered as ?Name.
type VariableAtom struct {
	Name string
}

// ResourceAtom is an IRI or CURIE.
type ResourceAtom struct {
	URI string
}

// TypedLiteralAtom pairs a value expression with an XSD datatype.
type TypedLiteralAtom struct {
	Value   Atom
	XSDType string
}

func (ExpressionAtom) atomKind() string   { return "expression" }
func (StringAtom) atomKind() string       { return "string" }
func (NumberAtom) atomKind() string       { return "number" }
func (VariableAtom) atomKind() string     { return "variable" }
func (ResourceAtom) atomKind() string     { return "resource" }
func (TypedLiteralAtom) atomKind() string { return "typed-literal" }
