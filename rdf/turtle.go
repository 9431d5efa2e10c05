package rdf

import (
	"context"
	"fmt"
	"io"
	"strings"
)

const (
	rdfFirst = "http://www.w3.org/1999/02/22-rdf-syntax-ns#first"
	rdfRest  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#rest"
	rdfNil   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#nil"
)

// turtleDecoder reads a whole Turtle document and parses it one statement at
// a time. Collections and blank node property lists expand into extra
// triples that are queued behind the statement that produced them.
type turtleDecoder struct {
	cursor  *turtleCursor
	pending []Quad
	err     error
}

func newTurtleDecoder(ctx context.Context, r io.Reader, opts Options) (Decoder, error) {
	data, err := io.ReadAll(&contextReader{ctx: ctx, r: r})
	if err != nil {
		return nil, err
	}
	return &turtleDecoder{cursor: &turtleCursor{
		input:    string(data),
		prefixes: map[string]string{},
		base:     opts.BaseIRI,
	}}, nil
}

func (d *turtleDecoder) Next() (Quad, error) {
	for len(d.pending) == 0 {
		if d.err != nil {
			return Quad{}, d.err
		}
		if err := d.cursor.parseStatement(); err != nil {
			if err != io.EOF {
				err = d.cursor.wrapError(err)
			}
			d.err = err
			continue
		}
		d.pending = d.cursor.emitted
		d.cursor.emitted = nil
	}
	q := d.pending[0]
	d.pending = d.pending[1:]
	return q, nil
}

func (d *turtleDecoder) Err() error {
	if d.err == io.EOF {
		return nil
	}
	return d.err
}

func (d *turtleDecoder) Close() error { return nil }

type turtleCursor struct {
	input     string
	pos       int
	stmtStart int
	prefixes  map[string]string
	base      string
	emitted   []Quad
	blankSeq  int
}

// parseStatement consumes one directive or triples statement. It returns
// io.EOF at the end of the document.
func (c *turtleCursor) parseStatement() error {
	c.skipWS()
	c.stmtStart = c.pos
	if c.pos >= len(c.input) {
		return io.EOF
	}
	if handled, err := c.parseDirective(); handled || err != nil {
		return err
	}

	subject, err := c.parseSubject()
	if err != nil {
		return err
	}
	c.skipWS()
	// "[ ex:p ex:o ] ." is a complete statement on its own.
	if _, isList := subject.(BlankNode); isList && c.input[c.stmtStart] == '[' && c.consume('.') {
		return nil
	}
	if err := c.parsePredicateObjectList(subject, '.'); err != nil {
		return err
	}
	if !c.consume('.') {
		return c.errorf("expected '.' at end of statement")
	}
	return nil
}

// parseDirective handles @prefix, @base and their SPARQL-style forms.
func (c *turtleCursor) parseDirective() (bool, error) {
	rest := c.input[c.pos:]
	var keyword string
	atForm := false
	switch {
	case strings.HasPrefix(rest, "@prefix"):
		keyword, atForm = "prefix", true
	case strings.HasPrefix(rest, "@base"):
		keyword, atForm = "base", true
	case hasKeywordFold(rest, "PREFIX"):
		keyword = "prefix"
	case hasKeywordFold(rest, "BASE"):
		keyword = "base"
	default:
		return false, nil
	}
	if atForm {
		c.pos += len(keyword) + 1
	} else {
		c.pos += len(keyword)
	}

	if keyword == "prefix" {
		c.skipWS()
		start := c.pos
		for c.pos < len(c.input) && c.input[c.pos] != ':' && !isWhitespace(c.input[c.pos]) {
			c.pos++
		}
		if c.pos >= len(c.input) || c.input[c.pos] != ':' {
			return true, c.errorf("expected prefix name ending in ':'")
		}
		name := c.input[start:c.pos]
		c.pos++
		iri, err := c.parseIRI()
		if err != nil {
			return true, err
		}
		c.prefixes[name] = iri.Value
	} else {
		iri, err := c.parseIRI()
		if err != nil {
			return true, err
		}
		c.base = iri.Value
	}

	if atForm && !c.consume('.') {
		return true, c.errorf("expected '.' after directive")
	}
	return true, nil
}

func hasKeywordFold(s, keyword string) bool {
	if len(s) <= len(keyword) || !strings.EqualFold(s[:len(keyword)], keyword) {
		return false
	}
	return isWhitespace(s[len(keyword)])
}

func (c *turtleCursor) skipWS() {
	for c.pos < len(c.input) {
		switch c.input[c.pos] {
		case ' ', '\t', '\r', '\n':
			c.pos++
		case '#':
			for c.pos < len(c.input) && c.input[c.pos] != '\n' {
				c.pos++
			}
		default:
			return
		}
	}
}

func (c *turtleCursor) consume(ch byte) bool {
	c.skipWS()
	if c.pos < len(c.input) && c.input[c.pos] == ch {
		c.pos++
		return true
	}
	return false
}

func (c *turtleCursor) peek() byte {
	c.skipWS()
	if c.pos >= len(c.input) {
		return 0
	}
	return c.input[c.pos]
}

func (c *turtleCursor) emit(s Term, p IRI, o Term) {
	c.emitted = append(c.emitted, Quad{S: s, P: p, O: o})
}

func (c *turtleCursor) parseSubject() (Term, error) {
	term, err := c.parseTerm(false)
	if err != nil {
		return nil, err
	}
	return term, nil
}

func (c *turtleCursor) parsePredicate() (IRI, error) {
	c.skipWS()
	if c.pos < len(c.input) && c.input[c.pos] == 'a' && (c.pos+1 >= len(c.input) || isTurtleTerminator(c.input[c.pos+1], c.peekNext(2))) {
		c.pos++
		return IRI{Value: RDFType}, nil
	}
	term, err := c.parseTerm(false)
	if err != nil {
		return IRI{}, err
	}
	iri, ok := term.(IRI)
	if !ok {
		return IRI{}, c.errorf("predicate must be an IRI")
	}
	return iri, nil
}

// parsePredicateObjectList reads "p o1, o2; p2 o3" up to, but not including,
// the closing character.
func (c *turtleCursor) parsePredicateObjectList(subject Term, closing byte) error {
	for {
		predicate, err := c.parsePredicate()
		if err != nil {
			return err
		}
		for {
			object, err := c.parseTerm(true)
			if err != nil {
				return err
			}
			c.emit(subject, predicate, object)
			if !c.consume(',') {
				break
			}
		}
		if !c.consume(';') {
			return nil
		}
		// Repeated and trailing semicolons are allowed.
		for c.consume(';') {
		}
		if next := c.peek(); next == closing || next == 0 {
			return nil
		}
	}
}

func (c *turtleCursor) parseTerm(allowLiteral bool) (Term, error) {
	c.skipWS()
	if c.pos >= len(c.input) {
		return nil, c.errorf("unexpected end of input")
	}
	rest := c.input[c.pos:]
	switch {
	case rest[0] == '<':
		return c.parseIRI()
	case strings.HasPrefix(rest, "_:"):
		return c.parseBlankNode()
	case rest[0] == '[':
		return c.parseBlankNodePropertyList()
	case rest[0] == '(':
		return c.parseCollection()
	case rest[0] == '"' || rest[0] == '\'':
		if !allowLiteral {
			return nil, c.errorf("literal not allowed here")
		}
		return c.parseLiteral()
	}
	if allowLiteral {
		if lit, ok := c.tryParseNumericLiteral(); ok {
			return lit, nil
		}
		if lit, ok := c.tryParseBooleanLiteral(); ok {
			return lit, nil
		}
	}
	return c.parsePrefixedName()
}

func (c *turtleCursor) parseIRI() (IRI, error) {
	if !c.consume('<') {
		return IRI{}, c.errorf("expected IRI")
	}
	start := c.pos
	for c.pos < len(c.input) && c.input[c.pos] != '>' {
		if isWhitespace(c.input[c.pos]) {
			return IRI{}, c.errorf("whitespace in IRI")
		}
		c.pos++
	}
	if c.pos >= len(c.input) {
		return IRI{}, c.errorf("unterminated IRI")
	}
	value, err := UnescapeString(c.input[start:c.pos])
	if err != nil {
		return IRI{}, c.errorf("%v", err)
	}
	c.pos++
	return IRI{Value: c.resolve(value)}, nil
}

// resolve makes value absolute against the current base.
func (c *turtleCursor) resolve(value string) string {
	return ResolveIRI(c.base, value)
}

func (c *turtleCursor) parseBlankNode() (Term, error) {
	c.pos += 2
	start := c.pos
	for c.pos < len(c.input) && !isTurtleTerminator(c.input[c.pos], c.peekNext(1)) && c.input[c.pos] != ':' {
		c.pos++
	}
	if start == c.pos {
		return nil, c.errorf("blank node label missing")
	}
	return BlankNode{ID: c.input[start:c.pos]}, nil
}

func (c *turtleCursor) newBlankNode() BlankNode {
	c.blankSeq++
	return BlankNode{ID: fmt.Sprintf("genid%d", c.blankSeq)}
}

// parseBlankNodePropertyList reads "[ p o ; ... ]" and returns its node.
func (c *turtleCursor) parseBlankNodePropertyList() (Term, error) {
	c.pos++
	node := c.newBlankNode()
	if c.consume(']') {
		return node, nil
	}
	if err := c.parsePredicateObjectList(node, ']'); err != nil {
		return nil, err
	}
	if !c.consume(']') {
		return nil, c.errorf("expected ']'")
	}
	return node, nil
}

// parseCollection reads "( o1 o2 )" into an rdf:first/rdf:rest list.
func (c *turtleCursor) parseCollection() (Term, error) {
	c.pos++
	var items []Term
	for !c.consume(')') {
		if c.pos >= len(c.input) {
			return nil, c.errorf("unterminated collection")
		}
		item, err := c.parseTerm(true)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return IRI{Value: rdfNil}, nil
	}
	head := c.newBlankNode()
	current := head
	for i, item := range items {
		c.emit(current, IRI{Value: rdfFirst}, item)
		if i == len(items)-1 {
			c.emit(current, IRI{Value: rdfRest}, IRI{Value: rdfNil})
			break
		}
		next := c.newBlankNode()
		c.emit(current, IRI{Value: rdfRest}, next)
		current = next
	}
	return head, nil
}

func (c *turtleCursor) parseLiteral() (Term, error) {
	quote := c.input[c.pos]
	long := strings.Repeat(string(quote), 3)
	var raw string
	if strings.HasPrefix(c.input[c.pos:], long) {
		c.pos += 3
		start := c.pos
		for {
			if c.pos >= len(c.input) {
				return nil, c.errorf("unterminated long string")
			}
			if c.input[c.pos] == '\\' {
				c.pos += 2
				continue
			}
			if strings.HasPrefix(c.input[c.pos:], long) {
				// A closing run may be longer than three quotes.
				for c.pos+3 < len(c.input) && c.input[c.pos+3] == quote {
					c.pos++
				}
				raw = c.input[start:c.pos]
				c.pos += 3
				break
			}
			c.pos++
		}
	} else {
		c.pos++
		start := c.pos
		for {
			if c.pos >= len(c.input) || c.input[c.pos] == '\n' || c.input[c.pos] == '\r' {
				return nil, c.errorf("unterminated string")
			}
			if c.input[c.pos] == '\\' {
				c.pos += 2
				continue
			}
			if c.input[c.pos] == quote {
				raw = c.input[start:c.pos]
				c.pos++
				break
			}
			c.pos++
		}
	}
	lexical, err := UnescapeString(raw)
	if err != nil {
		return nil, c.errorf("%v", err)
	}

	switch {
	case strings.HasPrefix(c.input[c.pos:], "@"):
		c.pos++
		start := c.pos
		for c.pos < len(c.input) && (isAlnumByte(c.input[c.pos]) || c.input[c.pos] == '-') {
			c.pos++
		}
		if start == c.pos {
			return nil, c.errorf("language tag missing")
		}
		return Literal{Lexical: lexical, Lang: c.input[start:c.pos]}, nil
	case strings.HasPrefix(c.input[c.pos:], "^^"):
		c.pos += 2
		dt, err := c.parseTerm(false)
		if err != nil {
			return nil, err
		}
		iri, ok := dt.(IRI)
		if !ok {
			return nil, c.errorf("datatype must be an IRI")
		}
		if iri.Value == XSDString {
			iri = IRI{}
		}
		return Literal{Lexical: lexical, Datatype: iri}, nil
	}
	return Literal{Lexical: lexical}, nil
}

func (c *turtleCursor) tryParseNumericLiteral() (Literal, bool) {
	start := c.pos
	if c.pos < len(c.input) && (c.input[c.pos] == '+' || c.input[c.pos] == '-') {
		c.pos++
	}
	digits, dot, exponent := false, false, false
	for c.pos < len(c.input) {
		ch := c.input[c.pos]
		switch {
		case ch >= '0' && ch <= '9':
			digits = true
			c.pos++
			continue
		case ch == '.' && !dot && !exponent:
			// A dot is a decimal point only when a digit or exponent follows.
			if next := c.peekNext(1); (next >= '0' && next <= '9') || ((next == 'e' || next == 'E') && digits) {
				dot = true
				c.pos++
				continue
			}
		case (ch == 'e' || ch == 'E') && !exponent && digits:
			exponent = true
			c.pos++
			if c.pos < len(c.input) && (c.input[c.pos] == '+' || c.input[c.pos] == '-') {
				c.pos++
			}
			if c.pos >= len(c.input) || c.input[c.pos] < '0' || c.input[c.pos] > '9' {
				c.pos = start
				return Literal{}, false
			}
			continue
		}
		break
	}
	if !digits || (c.pos < len(c.input) && !isTurtleTerminator(c.input[c.pos], c.peekNext(1))) {
		c.pos = start
		return Literal{}, false
	}
	lit := Literal{Lexical: c.input[start:c.pos]}
	switch {
	case exponent:
		lit.Datatype = IRI{Value: XSDDouble}
	case dot:
		lit.Datatype = IRI{Value: XSDDecimal}
	default:
		lit.Datatype = IRI{Value: XSDInteger}
	}
	return lit, true
}

func (c *turtleCursor) tryParseBooleanLiteral() (Literal, bool) {
	for _, word := range []string{"true", "false"} {
		if !strings.HasPrefix(c.input[c.pos:], word) {
			continue
		}
		end := c.pos + len(word)
		if end < len(c.input) && !isTurtleTerminator(c.input[end], byteAt(c.input, end+1)) {
			continue
		}
		c.pos = end
		return Literal{Lexical: word, Datatype: IRI{Value: XSDBoolean}}, true
	}
	return Literal{}, false
}

func (c *turtleCursor) parsePrefixedName() (Term, error) {
	start := c.pos
	for c.pos < len(c.input) {
		ch := c.input[c.pos]
		if ch == '\\' {
			c.pos += 2
			continue
		}
		if isTurtleTerminator(ch, c.peekNext(1)) {
			break
		}
		c.pos++
	}
	if c.pos > len(c.input) {
		c.pos = len(c.input)
	}
	token := c.input[start:c.pos]
	colon := strings.IndexByte(token, ':')
	if colon < 0 {
		c.pos = start
		return nil, c.errorf("unexpected token %q", token)
	}
	prefix, local := token[:colon], token[colon+1:]
	ns, ok := c.prefixes[prefix]
	if !ok {
		c.pos = start
		return nil, c.errorf("unknown prefix %q", prefix)
	}
	return IRI{Value: ns + unescapeLocalName(local)}, nil
}

// unescapeLocalName drops the backslash of reserved character escapes.
func unescapeLocalName(local string) string {
	if strings.IndexByte(local, '\\') < 0 {
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

func (c *turtleCursor) peekNext(n int) byte {
	return byteAt(c.input, c.pos+n)
}

func byteAt(s string, i int) byte {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

// isTurtleTerminator reports whether ch ends a bare token. A dot only ends a
// token when it is not followed by more name characters.
func isTurtleTerminator(ch, next byte) bool {
	switch ch {
	case ' ', '\t', '\r', '\n', ';', ',', '(', ')', '[', ']', '<', '"', '\'', '#':
		return true
	case '.':
		return next == 0 || isWhitespace(next) || strings.IndexByte(";,)]#", next) >= 0
	}
	return false
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}

func isAlnumByte(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

func (c *turtleCursor) errorf(format string, args ...interface{}) error {
	return &cursorError{column: c.pos, msg: fmt.Sprintf(format, args...)}
}

// wrapError turns an offset-based cursor error into a ParseError with the
// line and column in the document.
func (c *turtleCursor) wrapError(err error) error {
	offset := c.pos
	if ce, ok := err.(*cursorError); ok {
		offset = ce.column
	}
	offset = min(offset, len(c.input))
	line := 1 + strings.Count(c.input[:offset], "\n")
	lineStart := strings.LastIndexByte(c.input[:offset], '\n') + 1
	lineEnd := strings.IndexByte(c.input[lineStart:], '\n')
	if lineEnd < 0 {
		lineEnd = len(c.input)
	} else {
		lineEnd += lineStart
	}
	return &ParseError{
		Format:    string(FormatTurtle),
		Statement: strings.TrimRight(c.input[lineStart:lineEnd], "\r"),
		Line:      line,
		Column:    offset - lineStart + 1,
		Err:       err,
	}
}
