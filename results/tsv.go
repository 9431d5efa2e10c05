package results

import (
	"bufio"
	"io"
	"regexp"

	"github.com/geoknoesis/sparql-rows/rdf"
	"github.com/geoknoesis/sparql-rows/repository"
)

// ContentTypeTSV is the media type of SPARQL 1.1 TSV results.
const ContentTypeTSV = "text/tab-separated-values"

var (
	integerLexical = regexp.MustCompile(`^[+-]?[0-9]+$`)
	decimalLexical = regexp.MustCompile(`^[+-]?[0-9]*\.[0-9]+$`)
	doubleLexical  = regexp.MustCompile(`^[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)[eE][+-]?[0-9]+$`)
)

// WriteTSV streams result as SPARQL TSV: a header of ?-prefixed variable
// names, then one line per solution with terms in N-Triples notation and an
// empty field for unbound variables. It does not close result.
func WriteTSV(w io.Writer, result repository.TupleResult) error {
	bw := bufio.NewWriter(w)
	names := result.BindingNames()
	for i, name := range names {
		if i > 0 {
			bw.WriteByte('\t')
		}
		bw.WriteString("?" + name)
	}
	bw.WriteByte('\n')

	for {
		row, err := result.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		for i, name := range names {
			if i > 0 {
				bw.WriteByte('\t')
			}
			bw.WriteString(tsvTerm(row[name]))
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func tsvTerm(term rdf.Term) string {
	lit, ok := term.(rdf.Literal)
	if !ok || lit.Lang != "" {
		return rdf.RenderTerm(term)
	}
	// Numbers and booleans in canonical shape use the Turtle short form.
	switch lit.Datatype.Value {
	case rdf.XSDInteger:
		if integerLexical.MatchString(lit.Lexical) {
			return lit.Lexical
		}
	case rdf.XSDDecimal:
		if decimalLexical.MatchString(lit.Lexical) {
			return lit.Lexical
		}
	case rdf.XSDDouble:
		if doubleLexical.MatchString(lit.Lexical) {
			return lit.Lexical
		}
	case rdf.XSDBoolean:
		if lit.Lexical == "true" || lit.Lexical == "false" {
			return lit.Lexical
		}
	}
	return rdf.RenderTerm(term)
}
