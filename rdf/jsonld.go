package rdf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	ld "github.com/piprate/json-gold/ld"
)

// jsonldDecoder expands a whole JSON-LD document up front and then replays
// the resulting quads.
type jsonldDecoder struct {
	quads []Quad
	pos   int
}

func newJSONLDDecoder(ctx context.Context, r io.Reader, opts Options) (Decoder, error) {
	quads, err := ParseJSONLD(ctx, r, opts.BaseIRI)
	if err != nil {
		return nil, err
	}
	return &jsonldDecoder{quads: quads}, nil
}

func (d *jsonldDecoder) Next() (Quad, error) {
	if d.pos >= len(d.quads) {
		return Quad{}, io.EOF
	}
	q := d.quads[d.pos]
	d.pos++
	return q, nil
}

func (d *jsonldDecoder) Err() error   { return nil }
func (d *jsonldDecoder) Close() error { return nil }

// ParseJSONLD converts a JSON-LD document to quads. Remote contexts are
// resolved by json-gold's default document loader.
func ParseJSONLD(ctx context.Context, r io.Reader, baseIRI string) ([]Quad, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var input interface{}
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return nil, &ParseError{Format: string(FormatJSONLD), Err: err}
	}

	proc := ld.NewJsonLdProcessor()
	options := ld.NewJsonLdOptions(baseIRI)
	result, err := proc.ToRDF(input, options)
	if err != nil {
		return nil, &ParseError{Format: string(FormatJSONLD), Err: err}
	}
	dataset, ok := result.(*ld.RDFDataset)
	if !ok {
		return nil, fmt.Errorf("jsonld: unexpected ToRDF result %T", result)
	}

	// Graph iteration order is randomized by the map; sort for stable loads.
	names := make([]string, 0, len(dataset.Graphs))
	for name := range dataset.Graphs {
		names = append(names, name)
	}
	sort.Strings(names)

	var quads []Quad
	for _, name := range names {
		var graph Term
		if name != "@default" {
			graph = fromLDGraphName(name)
		}
		for _, q := range dataset.Graphs[name] {
			if q == nil {
				continue
			}
			subject := fromLDNode(q.Subject)
			predicate, ok := fromLDNode(q.Predicate).(IRI)
			object := fromLDNode(q.Object)
			if subject == nil || !ok || object == nil {
				continue
			}
			quads = append(quads, Quad{S: subject, P: predicate, O: object, G: graph})
		}
	}
	return quads, nil
}

func fromLDGraphName(name string) Term {
	if strings.HasPrefix(name, "_:") {
		return BlankNode{ID: name[2:]}
	}
	return IRI{Value: name}
}

func fromLDNode(node ld.Node) Term {
	switch n := node.(type) {
	case ld.IRI:
		return IRI{Value: n.Value}
	case ld.BlankNode:
		return BlankNode{ID: strings.TrimPrefix(n.Attribute, "_:")}
	case ld.Literal:
		lit := Literal{Lexical: n.Value, Lang: n.Language}
		if n.Language == "" && n.Datatype != "" && n.Datatype != XSDString {
			lit.Datatype = IRI{Value: n.Datatype}
		}
		return lit
	default:
		return nil
	}
}
