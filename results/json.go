package results

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/geoknoesis/sparql-rows/rdf"
	"github.com/geoknoesis/sparql-rows/repository"
)

// ContentTypeJSON is the media type of SPARQL 1.1 JSON results.
const ContentTypeJSON = "application/sparql-results+json"

// ErrNotTupleResult is returned when a document holds a boolean (ASK) result.
var ErrNotTupleResult = errors.New("results: not a tuple result")

type jsonDocument struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Boolean *bool `json:"boolean,omitempty"`
	Results *struct {
		Bindings []map[string]jsonTerm `json:"bindings"`
	} `json:"results,omitempty"`
}

type jsonTerm struct {
	Type     string          `json:"type"`
	Value    json.RawMessage `json:"value"`
	Lang     string          `json:"xml:lang,omitempty"`
	Datatype string          `json:"datatype,omitempty"`
}

type jsonTriple struct {
	Subject   jsonTerm `json:"subject"`
	Predicate jsonTerm `json:"predicate"`
	Object    jsonTerm `json:"object"`
}

// DecodeJSON reads a SPARQL JSON results document. The whole document is
// decoded before the result is returned.
func DecodeJSON(r io.Reader) (repository.TupleResult, error) {
	var doc jsonDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("results: decode json: %w", err)
	}
	if doc.Boolean != nil || doc.Results == nil {
		return nil, ErrNotTupleResult
	}
	names := doc.Head.Vars
	if names == nil {
		names = []string{}
	}
	rows := make([]repository.BindingSet, 0, len(doc.Results.Bindings))
	for i, binding := range doc.Results.Bindings {
		row := make(repository.BindingSet, len(names))
		for name, value := range binding {
			term, err := value.toTerm()
			if err != nil {
				return nil, fmt.Errorf("results: row %d, ?%s: %w", i, name, err)
			}
			row[name] = term
		}
		rows = append(rows, row)
	}
	return repository.NewSliceResult(names, rows), nil
}

func (t jsonTerm) toTerm() (rdf.Term, error) {
	if t.Type == "triple" {
		var triple jsonTriple
		if err := json.Unmarshal(t.Value, &triple); err != nil {
			return nil, err
		}
		s, err := triple.Subject.toTerm()
		if err != nil {
			return nil, err
		}
		p, err := triple.Predicate.toTerm()
		if err != nil {
			return nil, err
		}
		o, err := triple.Object.toTerm()
		if err != nil {
			return nil, err
		}
		pred, ok := p.(rdf.IRI)
		if !ok {
			return nil, fmt.Errorf("triple predicate must be an IRI")
		}
		return rdf.TripleTerm{S: s, P: pred, O: o}, nil
	}

	var value string
	if err := json.Unmarshal(t.Value, &value); err != nil {
		return nil, err
	}
	switch t.Type {
	case "uri":
		return rdf.IRI{Value: value}, nil
	case "bnode":
		return rdf.BlankNode{ID: value}, nil
	case "literal", "typed-literal":
		lit := rdf.Literal{Lexical: value, Lang: t.Lang}
		if t.Lang == "" && t.Datatype != "" && t.Datatype != rdf.XSDString {
			lit.Datatype = rdf.IRI{Value: t.Datatype}
		}
		return lit, nil
	default:
		return nil, fmt.Errorf("unknown term type %q", t.Type)
	}
}

// EncodeJSON writes result as a SPARQL JSON results document. It does not
// close result.
func EncodeJSON(w io.Writer, result repository.TupleResult) error {
	names := result.BindingNames()
	bindings := make([]map[string]jsonTerm, 0)
	for {
		row, err := result.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		binding := make(map[string]jsonTerm, len(names))
		for _, name := range names {
			if term := row[name]; term != nil {
				encoded, err := fromTerm(term)
				if err != nil {
					return err
				}
				binding[name] = encoded
			}
		}
		bindings = append(bindings, binding)
	}

	var doc jsonDocument
	doc.Head.Vars = names
	doc.Results = &struct {
		Bindings []map[string]jsonTerm `json:"bindings"`
	}{Bindings: bindings}

	bw := bufio.NewWriter(w)
	if err := json.NewEncoder(bw).Encode(doc); err != nil {
		return err
	}
	return bw.Flush()
}

func fromTerm(term rdf.Term) (jsonTerm, error) {
	switch v := term.(type) {
	case rdf.IRI:
		return plainTerm("uri", v.Value, "", "")
	case rdf.BlankNode:
		return plainTerm("bnode", v.ID, "", "")
	case rdf.Literal:
		datatype := ""
		if v.Lang == "" && v.Datatype.Value != "" && v.Datatype.Value != rdf.XSDString {
			datatype = v.Datatype.Value
		}
		return plainTerm("literal", v.Lexical, v.Lang, datatype)
	case rdf.TripleTerm:
		s, err := fromTerm(v.S)
		if err != nil {
			return jsonTerm{}, err
		}
		p, err := fromTerm(v.P)
		if err != nil {
			return jsonTerm{}, err
		}
		o, err := fromTerm(v.O)
		if err != nil {
			return jsonTerm{}, err
		}
		raw, err := json.Marshal(jsonTriple{Subject: s, Predicate: p, Object: o})
		if err != nil {
			return jsonTerm{}, err
		}
		return jsonTerm{Type: "triple", Value: raw}, nil
	default:
		return jsonTerm{}, fmt.Errorf("results: unsupported term %T", term)
	}
}

func plainTerm(kind, value, lang, datatype string) (jsonTerm, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return jsonTerm{}, err
	}
	return jsonTerm{Type: kind, Value: raw, Lang: lang, Datatype: datatype}, nil
}
