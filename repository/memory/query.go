package memory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/geoknoesis/sparql-rows/rdf"
)

// node is a pattern position: either a variable or a constant term.
type node struct {
	variable string
	term     rdf.Term
}

func (n node) isVar() bool { return n.variable != "" }

type triplePattern struct {
	s, p, o node
}

// element is one member of a group graph pattern.
type element interface{ element() }

type triplesBlock []triplePattern
type optionalGroup struct{ group *groupPattern }
type groupPattern struct{ elements []element }

func (triplesBlock) element()  {}
func (optionalGroup) element() {}
func (*groupPattern) element() {}

type orderKey struct {
	variable   string
	descending bool
}

type selectQuery struct {
	distinct bool
	// projection is nil for SELECT *.
	projection []string
	from       []rdf.IRI
	where      *groupPattern
	order      []orderKey
	limit      int // -1 when absent
	offset     int
	// seen lists variables in order of first appearance.
	seen []string
}

// unsupportedKeywords name SPARQL features outside the evaluated subset.
var unsupportedKeywords = map[string]bool{
	"ASK": true, "CONSTRUCT": true, "DESCRIBE": true, "FILTER": true, "UNION": true,
	"GRAPH": true, "MINUS": true, "BIND": true, "VALUES": true, "SERVICE": true,
	"GROUP": true, "HAVING": true, "INSERT": true, "DELETE": true, "NAMED": true,
}

type parser struct {
	tokens   []token
	pos      int
	base     string
	prefixes map[string]string
	anon     int
	q        *selectQuery
	seenSet  map[string]bool
}

func parseQuery(input string) (*selectQuery, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{
		tokens:   tokens,
		prefixes: map[string]string{},
		q:        &selectQuery{limit: -1},
		seenSet:  map[string]bool{},
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.q, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isKeyword(kw string) bool {
	tok := p.peek()
	return tok.kind == tokWord && strings.EqualFold(tok.value, kw)
}

func (p *parser) acceptKeyword(kw string) bool {
	if p.isKeyword(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) isPunct(value string) bool {
	tok := p.peek()
	return tok.kind == tokPunct && tok.value == value
}

func (p *parser) acceptPunct(value string) bool {
	if p.isPunct(value) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectPunct(value string) error {
	if !p.acceptPunct(value) {
		return p.unexpected("'" + value + "'")
	}
	return nil
}

func (p *parser) unexpected(expected string) error {
	tok := p.peek()
	if tok.kind == tokWord && unsupportedKeywords[strings.ToUpper(tok.value)] {
		return errorAt(tok.pos, "unsupported SPARQL feature %s", strings.ToUpper(tok.value))
	}
	return errorAt(tok.pos, "expected %s, found %s", expected, tok)
}

func (p *parser) parse() error {
	if err := p.parsePrologue(); err != nil {
		return err
	}
	if !p.acceptKeyword("SELECT") {
		return p.unexpected("SELECT")
	}
	if p.acceptKeyword("DISTINCT") || p.acceptKeyword("REDUCED") {
		p.q.distinct = true
	}
	if !p.acceptPunct("*") {
		for p.peek().kind == tokVar {
			p.q.projection = append(p.q.projection, p.advance().value)
		}
		if len(p.q.projection) == 0 {
			return p.unexpected("variable or '*'")
		}
	}
	for p.acceptKeyword("FROM") {
		iri, err := p.parseIRI()
		if err != nil {
			return err
		}
		p.q.from = append(p.q.from, iri)
	}
	p.acceptKeyword("WHERE")
	where, err := p.parseGroup()
	if err != nil {
		return err
	}
	p.q.where = where
	if err := p.parseModifiers(); err != nil {
		return err
	}
	if p.peek().kind != tokEOF {
		return p.unexpected("end of query")
	}
	return nil
}

func (p *parser) parsePrologue() error {
	for {
		switch {
		case p.acceptKeyword("BASE"):
			tok := p.advance()
			if tok.kind != tokIRI {
				return errorAt(tok.pos, "expected IRI after BASE")
			}
			p.base = p.resolve(tok.value)
		case p.acceptKeyword("PREFIX"):
			tok := p.advance()
			if tok.kind != tokPName || !strings.HasSuffix(tok.value, ":") || strings.Count(tok.value, ":") != 1 {
				return errorAt(tok.pos, "expected prefix name after PREFIX")
			}
			iri := p.advance()
			if iri.kind != tokIRI {
				return errorAt(iri.pos, "expected IRI after prefix name")
			}
			p.prefixes[strings.TrimSuffix(tok.value, ":")] = p.resolve(iri.value)
		default:
			return nil
		}
	}
}

func (p *parser) parseModifiers() error {
	if p.acceptKeyword("ORDER") {
		if !p.acceptKeyword("BY") {
			return p.unexpected("BY")
		}
		for {
			switch {
			case p.peek().kind == tokVar:
				p.q.order = append(p.q.order, orderKey{variable: p.advance().value})
				continue
			case p.isKeyword("ASC") || p.isKeyword("DESC"):
				desc := strings.EqualFold(p.advance().value, "DESC")
				if err := p.expectPunct("("); err != nil {
					return err
				}
				tok := p.advance()
				if tok.kind != tokVar {
					return errorAt(tok.pos, "expected variable in ORDER BY")
				}
				if err := p.expectPunct(")"); err != nil {
					return err
				}
				p.q.order = append(p.q.order, orderKey{variable: tok.value, descending: desc})
				continue
			}
			break
		}
		if len(p.q.order) == 0 {
			return p.unexpected("ORDER BY condition")
		}
	}
	for {
		switch {
		case p.acceptKeyword("LIMIT"):
			n, err := p.parseCount()
			if err != nil {
				return err
			}
			p.q.limit = n
		case p.acceptKeyword("OFFSET"):
			n, err := p.parseCount()
			if err != nil {
				return err
			}
			p.q.offset = n
		default:
			return nil
		}
	}
}

func (p *parser) parseCount() (int, error) {
	tok := p.advance()
	if tok.kind != tokNumber {
		return 0, errorAt(tok.pos, "expected integer, found %s", tok)
	}
	n, err := strconv.Atoi(tok.value)
	if err != nil || n < 0 {
		return 0, errorAt(tok.pos, "expected non-negative integer, found %s", tok)
	}
	return n, nil
}

func (p *parser) parseGroup() (*groupPattern, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	group := &groupPattern{}
	var block triplesBlock
	flush := func() {
		if len(block) > 0 {
			group.elements = append(group.elements, block)
			block = nil
		}
	}
	for {
		switch {
		case p.acceptPunct("}"):
			flush()
			return group, nil
		case p.acceptKeyword("OPTIONAL"):
			flush()
			sub, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			group.elements = append(group.elements, optionalGroup{group: sub})
		case p.isPunct("{"):
			flush()
			sub, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			group.elements = append(group.elements, sub)
		case p.acceptPunct("."):
		default:
			patterns, err := p.parseTriplesSameSubject()
			if err != nil {
				return nil, err
			}
			block = append(block, patterns...)
			if !p.isPunct("}") && !p.acceptPunct(".") && !p.isKeyword("OPTIONAL") && !p.isPunct("{") {
				return nil, p.unexpected("'.' or '}'")
			}
		}
	}
}

func (p *parser) parseTriplesSameSubject() ([]triplePattern, error) {
	var patterns []triplePattern
	if p.acceptPunct("[") {
		subject := p.freshVar()
		if !p.isPunct("]") {
			nested, err := p.parsePropertyList(subject)
			if err != nil {
				return nil, err
			}
			patterns = append(patterns, nested...)
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		if p.isPunct(".") || p.isPunct("}") {
			return patterns, nil
		}
		rest, err := p.parsePropertyList(subject)
		if err != nil {
			return nil, err
		}
		return append(patterns, rest...), nil
	}

	subject, err := p.parseNode(false)
	if err != nil {
		return nil, err
	}
	rest, err := p.parsePropertyList(subject)
	if err != nil {
		return nil, err
	}
	return append(patterns, rest...), nil
}

func (p *parser) parsePropertyList(subject node) ([]triplePattern, error) {
	var patterns []triplePattern
	for {
		verb, err := p.parseVerb()
		if err != nil {
			return nil, err
		}
		for {
			var object node
			if p.acceptPunct("[") {
				object = p.freshVar()
				if !p.isPunct("]") {
					nested, err := p.parsePropertyList(object)
					if err != nil {
						return nil, err
					}
					patterns = append(patterns, nested...)
				}
				if err := p.expectPunct("]"); err != nil {
					return nil, err
				}
			} else {
				object, err = p.parseNode(true)
				if err != nil {
					return nil, err
				}
			}
			patterns = append(patterns, triplePattern{s: subject, p: verb, o: object})
			if !p.acceptPunct(",") {
				break
			}
		}
		if !p.acceptPunct(";") {
			return patterns, nil
		}
		for p.acceptPunct(";") {
		}
		// A trailing ';' may close the property list.
		if p.isPunct(".") || p.isPunct("}") || p.isPunct("]") {
			return patterns, nil
		}
	}
}

func (p *parser) parseVerb() (node, error) {
	tok := p.peek()
	if tok.kind == tokWord && tok.value == "a" {
		p.pos++
		return node{term: rdf.IRI{Value: rdf.RDFType}}, nil
	}
	switch tok.kind {
	case tokVar:
		p.pos++
		return p.variable(tok.value), nil
	case tokIRI, tokPName:
		iri, err := p.parseIRI()
		if err != nil {
			return node{}, err
		}
		return node{term: iri}, nil
	}
	return node{}, p.unexpected("predicate")
}

func (p *parser) parseNode(allowLiteral bool) (node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokVar:
		p.pos++
		return p.variable(tok.value), nil
	case tokBlank:
		p.pos++
		return node{variable: "_:" + tok.value}, nil
	case tokIRI, tokPName:
		iri, err := p.parseIRI()
		if err != nil {
			return node{}, err
		}
		return node{term: iri}, nil
	}
	if !allowLiteral {
		return node{}, p.unexpected("subject")
	}
	switch {
	case tok.kind == tokString:
		lit, err := p.parseLiteral()
		if err != nil {
			return node{}, err
		}
		return node{term: lit}, nil
	case tok.kind == tokNumber:
		p.pos++
		return node{term: numericLiteral(tok.value)}, nil
	case tok.kind == tokWord && (tok.value == "true" || tok.value == "false"):
		p.pos++
		return node{term: rdf.Literal{Lexical: tok.value, Datatype: rdf.IRI{Value: rdf.XSDBoolean}}}, nil
	}
	return node{}, p.unexpected("object")
}

func (p *parser) parseLiteral() (rdf.Literal, error) {
	tok := p.advance()
	lexical, err := rdf.UnescapeString(tok.value)
	if err != nil {
		return rdf.Literal{}, errorAt(tok.pos, "%v", err)
	}
	lit := rdf.Literal{Lexical: lexical}
	switch p.peek().kind {
	case tokLangTag:
		lit.Lang = p.advance().value
	case tokDatatype:
		p.pos++
		dt, err := p.parseIRI()
		if err != nil {
			return rdf.Literal{}, err
		}
		if dt.Value != rdf.XSDString {
			lit.Datatype = dt
		}
	}
	return lit, nil
}

func numericLiteral(value string) rdf.Literal {
	datatype := rdf.XSDInteger
	switch {
	case strings.ContainsAny(value, "eE"):
		datatype = rdf.XSDDouble
	case strings.Contains(value, "."):
		datatype = rdf.XSDDecimal
	}
	return rdf.Literal{Lexical: value, Datatype: rdf.IRI{Value: datatype}}
}

func (p *parser) parseIRI() (rdf.IRI, error) {
	tok := p.advance()
	switch tok.kind {
	case tokIRI:
		value, err := rdf.UnescapeString(tok.value)
		if err != nil {
			return rdf.IRI{}, errorAt(tok.pos, "%v", err)
		}
		return rdf.IRI{Value: p.resolve(value)}, nil
	case tokPName:
		colon := strings.IndexByte(tok.value, ':')
		prefix, local := tok.value[:colon], tok.value[colon+1:]
		ns, ok := p.prefixes[prefix]
		if !ok {
			return rdf.IRI{}, errorAt(tok.pos, "undefined prefix %q", prefix)
		}
		return rdf.IRI{Value: ns + unescapeLocal(local)}, nil
	}
	return rdf.IRI{}, errorAt(tok.pos, "expected IRI, found %s", tok)
}

func unescapeLocal(local string) string {
	if !strings.Contains(local, "\\") {
		return local
	}
	var b strings.Builder
	for i := 0; i < len(local); i++ {
		if local[i] == '\\' && i+1 < len(local) {
			i++
		}
		b.WriteByte(local[i])
	}
	return b.String()
}

func (p *parser) resolve(value string) string {
	return rdf.ResolveIRI(p.base, value)
}

func (p *parser) variable(name string) node {
	if !p.seenSet[name] {
		p.seenSet[name] = true
		p.q.seen = append(p.q.seen, name)
	}
	return node{variable: name}
}

func (p *parser) freshVar() node {
	p.anon++
	return node{variable: fmt.Sprintf("_:anon%d", p.anon)}
}
