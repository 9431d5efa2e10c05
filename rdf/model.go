package rdf

import (
	"fmt"
	"net/url"
	"strings"
)

// TermKind identifies RDF term types.
type TermKind uint8

const (
	// TermIRI represents an IRI term.
	TermIRI TermKind = iota
	// TermBlankNode represents a blank node term.
	TermBlankNode
	// TermLiteral represents a literal term.
	TermLiteral
	// TermTriple represents an RDF-star triple term.
	TermTriple
)

func (k TermKind) String() string {
	switch k {
	case TermIRI:
		return "iri"
	case TermBlankNode:
		return "bnode"
	case TermLiteral:
		return "literal"
	case TermTriple:
		return "triple"
	default:
		return fmt.Sprintf("TermKind(%d)", uint8(k))
	}
}

// Term is a value that can appear in RDF statements and query bindings.
type Term interface {
	Kind() TermKind
	String() string
}

// Common datatype IRIs.
const (
	XSDString  = "http://www.w3.org/2001/XMLSchema#string"
	XSDInteger = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDecimal = "http://www.w3.org/2001/XMLSchema#decimal"
	XSDDouble  = "http://www.w3.org/2001/XMLSchema#double"
	XSDBoolean = "http://www.w3.org/2001/XMLSchema#boolean"
	RDFType    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	RDFLangStr = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
)

// IRI represents an RDF IRI.
type IRI struct {
	// Value is the IRI string value.
	Value string
}

// Kind returns TermIRI.
func (i IRI) Kind() TermKind { return TermIRI }

// String returns the IRI value.
func (i IRI) String() string { return i.Value }

// IsZero reports whether the IRI is unset.
func (i IRI) IsZero() bool { return i.Value == "" }

// BlankNode represents an RDF blank node.
type BlankNode struct {
	// ID is the blank node identifier.
	ID string
}

// Kind returns TermBlankNode.
func (b BlankNode) Kind() TermKind { return TermBlankNode }

// String returns the blank node identifier prefixed with "_:".
func (b BlankNode) String() string { return "_:" + b.ID }

// Literal represents an RDF literal.
type Literal struct {
	// Lexical is the lexical form of the literal.
	Lexical string
	// Datatype is the datatype IRI, if any.
	Datatype IRI
	// Lang is the language tag, if any.
	Lang string
}

// Kind returns TermLiteral.
func (l Literal) Kind() TermKind { return TermLiteral }

// String returns the literal in N-Triples notation.
func (l Literal) String() string {
	return RenderTerm(l)
}

// TripleTerm is an RDF-star quoted triple term.
type TripleTerm struct {
	S Term
	P IRI
	O Term
}

// Kind returns TermTriple.
func (t TripleTerm) Kind() TermKind { return TermTriple }

// String returns a string representation of the triple term.
func (t TripleTerm) String() string {
	return fmt.Sprintf("<<%s %s %s>>", RenderTerm(t.S), RenderTerm(t.P), RenderTerm(t.O))
}

// Quad is an RDF statement with an optional graph name.
type Quad struct {
	S Term
	P IRI
	O Term
	// G is the graph name, or nil for the default graph.
	G Term
}

// IsZero reports whether the quad has no subject/predicate/object.
func (q Quad) IsZero() bool {
	return q.S == nil && q.P.Value == "" && q.O == nil && q.G == nil
}

// InDefaultGraph reports whether the quad is in the default graph.
func (q Quad) InDefaultGraph() bool {
	return q.G == nil
}

// LexicalForm returns the plain string value of a term: the full IRI, the
// literal text without quotes, tag or datatype, or the blank node identifier
// without its "_:" prefix. Terms of any other kind fall back to String.
// A nil term yields "".
func LexicalForm(t Term) string {
	switch v := t.(type) {
	case nil:
		return ""
	case IRI:
		return v.Value
	case Literal:
		return v.Lexical
	case BlankNode:
		return v.ID
	default:
		return t.String()
	}
}

// EffectiveDatatype returns the datatype of a literal, defaulting to
// xsd:string for simple literals and rdf:langString for tagged ones.
func (l Literal) EffectiveDatatype() IRI {
	if l.Lang != "" {
		return IRI{Value: RDFLangStr}
	}
	if l.Datatype.Value == "" {
		return IRI{Value: XSDString}
	}
	return l.Datatype
}

// IsAbsoluteIRI reports whether value starts with a URI scheme.
func IsAbsoluteIRI(value string) bool {
	colon := strings.IndexByte(value, ':')
	if colon <= 0 {
		return false
	}
	for i := 0; i < colon; i++ {
		ch := value[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case i > 0 && (ch >= '0' && ch <= '9' || ch == '+' || ch == '-' || ch == '.'):
		default:
			return false
		}
	}
	return true
}

// ParseIRI validates value as an absolute IRI.
func ParseIRI(value string) (IRI, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return IRI{}, fmt.Errorf("rdf: empty IRI")
	}
	if !IsAbsoluteIRI(value) {
		return IRI{}, fmt.Errorf("rdf: not an absolute IRI: %s", value)
	}
	if strings.ContainsAny(value, "<> \"{}|\\^`") {
		return IRI{}, fmt.Errorf("rdf: invalid character in IRI: %s", value)
	}
	return IRI{Value: value}, nil
}

// ResolveIRI resolves ref against base. Absolute references and an empty
// base return ref unchanged. A trailing '#' on ref survives resolution.
func ResolveIRI(base, ref string) string {
	if base == "" || IsAbsoluteIRI(ref) {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return base + ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return base + ref
	}
	resolved := b.ResolveReference(r)
	out := resolved.String()
	if strings.HasSuffix(ref, "#") && resolved.Fragment == "" && !strings.HasSuffix(out, "#") {
		out += "#"
	}
	return out
}
