package sparql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/MrSnakeDoc/derefd/internal/namespace"
)

var (
	ErrUnsupportedType   = errors.New("sparql: unsupported atom type")
	ErrUnavailableObject = errors.New("sparql: required rule object is unavailable")
)

// AtomCallError reports a failure while adapting a nested atom.
type AtomCallError struct {
	Atom string
	Err  error
}

func (e *AtomCallError) Error() string {
	return fmt.Sprintf("sparql: adapting %s atom: %v", e.Atom, e.Err)
}

func (e *AtomCallError) Unwrap() error { return e.Err }

// Kind tells what an Object renders to.
type Kind string

const (
	KindTerm     Kind = "term"
	KindVariable Kind = "variable"
	KindFunction Kind = "function"
)

// Object is the SPARQL rendering of an atom.
type Object struct {
	Kind Kind
	Text string
}

func (o Object) String() string { return o.Text }

// Adapter converts atoms to SPARQL objects. Prefixes may be nil, in which
// case CURIEs are left unexpanded.
type Adapter struct {
	Prefixes *namespace.Prefixes
}

func NewAdapter(prefixes *namespace.Prefixes) *Adapter {
	return &Adapter{Prefixes: prefixes}
}

// Adapt renders atom.
func (a *Adapter) Adapt(atom Atom) (Object, error) {
	switch at := atom.(type) {
	case nil:
		return Object{}, ErrUnavailableObject
	case ExpressionAtom:
		return Object{Kind: KindTerm, Text: at.Text}, nil
	case StringAtom:
		return Object{Kind: KindTerm, Text: quoteString(at.Value)}, nil
	case NumberAtom:
		if _, err := strconv.ParseFloat(at.Lexical, 64); err != nil {
			return Object{}, fmt.Errorf("%w: %q is not numeric", ErrUnavailableObject, at.Lexical)
		}
		return Object{Kind: KindTerm, Text: at.Lexical}, nil
	case VariableAtom:
		name := strings.TrimPrefix(at.Name, "?")
		if name == "" {
			return Object{}, fmt.Errorf("%w: empty variable name", ErrUnavailableObject)
		}
		return Object{Kind: KindVariable, Text: "?" + name}, nil
	case ResourceAtom:
		iri, err := a.resolveIRI(at.URI)
		if err != nil {
			return Object{}, err
		}
		return Object{Kind: KindTerm, Text: "<" + iri + ">"}, nil
	case TypedLiteralAtom:
		return a.adaptTypedLiteral(at)
	default:
		return Object{}, fmt.Errorf("%w: %T", ErrUnsupportedType, atom)
	}
}

// adaptTypedLiteral renders value^^<xsdType>. The value gets a leading quote
// when it has none and a trailing quote when it has none.
func (a *Adapter) adaptTypedLiteral(at TypedLiteralAtom) (Object, error) {
	if at.Value == nil {
		return Object{}, fmt.Errorf("%w: typed literal without value", ErrUnavailableObject)
	}
	xsd, err := a.resolveIRI(at.XSDType)
	if err != nil {
		return Object{}, err
	}

	obj, err := a.Adapt(at.Value)
	if err != nil {
		return Object{}, &AtomCallError{Atom: at.Value.atomKind(), Err: err}
	}

	value := obj.Text
	if !strings.HasPrefix(value, `"`) {
		value = `"` + value
	}
	if !strings.HasSuffix(value, `"`) {
		value += `"`
	}
	return Object{Kind: KindFunction, Text: value + "^^<" + xsd + ">"}, nil
}

func (a *Adapter) resolveIRI(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimSuffix(strings.TrimPrefix(ref, "<"), ">")
	if ref == "" {
		return "", fmt.Errorf("%w: missing IRI", ErrUnavailableObject)
	}
	return a.Prefixes.Expand(ref), nil
}

// quoteString renders s as a double-quoted SPARQL string. Only the escapes of
// the SPARQL grammar are used; other control characters become \uXXXX.
func quoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\f':
			b.WriteString(`\f`)
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			if unicode.IsControl(r) {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
