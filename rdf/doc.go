// Package rdf provides the RDF term model shared by the repositories and the
// reader, plus the decoders used to load data into the embedded store.
//
// Terms form a small tagged variant: IRI, BlankNode, Literal and TripleTerm,
// each reporting its Kind. LexicalForm reduces any term to the plain string a
// template wants to print; RenderTerm gives the N-Triples notation used by the
// TSV results writer.
//
// Supported input formats are N-Triples, N-Quads, Turtle and JSON-LD
// (through json-gold). Line-oriented decoders stream; Turtle and JSON-LD
// documents are read whole first.
//
//	err := rdf.ParseFile(ctx, "data.nq", func(q rdf.Quad) error {
//	    // q.S, q.P, q.O, q.G
//	    return nil
//	})
package rdf
