package memory

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIRI
	tokPName
	tokVar
	tokString
	tokLangTag
	tokDatatype // ^^
	tokNumber
	tokBlank
	tokWord
	tokPunct
)

type token struct {
	kind  tokenKind
	value string
	pos   int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of query"
	}
	return fmt.Sprintf("%q", t.value)
}

// syntaxError carries the byte offset where tokenizing or parsing failed.
type syntaxError struct {
	pos int
	msg string
}

func (e *syntaxError) Error() string { return e.msg }

func errorAt(pos int, format string, args ...interface{}) error {
	return &syntaxError{pos: pos, msg: fmt.Sprintf(format, args...)}
}

type lexer struct {
	input string
	pos   int
}

func tokenize(input string) ([]token, error) {
	l := &lexer{input: input}
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.input) {
		switch ch := l.input[l.pos]; {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			l.pos++
		case ch == '#':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	start := l.pos
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: start}, nil
	}
	ch := l.input[l.pos]
	switch {
	case ch == '<':
		end := strings.IndexByte(l.input[l.pos+1:], '>')
		if end < 0 {
			return token{}, errorAt(start, "unterminated IRI")
		}
		value := l.input[l.pos+1 : l.pos+1+end]
		if strings.ContainsAny(value, " \t\r\n\"{}|^`") {
			return token{}, errorAt(start, "invalid character in IRI")
		}
		l.pos += end + 2
		return token{kind: tokIRI, value: value, pos: start}, nil
	case ch == '?' || ch == '$':
		l.pos++
		name := l.scanName()
		if name == "" {
			return token{}, errorAt(start, "variable name missing")
		}
		return token{kind: tokVar, value: name, pos: start}, nil
	case ch == '"' || ch == '\'':
		return l.scanString()
	case ch == '@':
		l.pos++
		tag := l.scanWhile(func(c byte) bool { return isAlnum(c) || c == '-' })
		if tag == "" {
			return token{}, errorAt(start, "language tag missing")
		}
		return token{kind: tokLangTag, value: tag, pos: start}, nil
	case ch == '^':
		if strings.HasPrefix(l.input[l.pos:], "^^") {
			l.pos += 2
			return token{kind: tokDatatype, value: "^^", pos: start}, nil
		}
		return token{}, errorAt(start, "unexpected '^'")
	case ch == '_' && strings.HasPrefix(l.input[l.pos:], "_:"):
		l.pos += 2
		label := l.scanName()
		if label == "" {
			return token{}, errorAt(start, "blank node label missing")
		}
		return token{kind: tokBlank, value: label, pos: start}, nil
	case isDigit(ch) || ((ch == '+' || ch == '-' || ch == '.') && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])):
		return l.scanNumber(), nil
	case strings.IndexByte("{}.;,()*[]", ch) >= 0:
		l.pos++
		return token{kind: tokPunct, value: string(ch), pos: start}, nil
	case isAlpha(ch) || ch == ':':
		word := l.scanWhile(func(c byte) bool { return isAlnum(c) || c == '_' || c == '-' || c == '.' || c == ':' || c == '%' })
		// A prefixed name never ends with '.', that dot closes the triple.
		for strings.HasSuffix(word, ".") {
			word = word[:len(word)-1]
			l.pos--
		}
		if strings.Contains(word, ":") {
			return token{kind: tokPName, value: word, pos: start}, nil
		}
		return token{kind: tokWord, value: word, pos: start}, nil
	default:
		return token{}, errorAt(start, "unexpected character %q", ch)
	}
}

func (l *lexer) scanWhile(accept func(byte) bool) string {
	start := l.pos
	for l.pos < len(l.input) && accept(l.input[l.pos]) {
		l.pos++
	}
	return l.input[start:l.pos]
}

func (l *lexer) scanName() string {
	return l.scanWhile(func(c byte) bool { return isAlnum(c) || c == '_' || c >= 0x80 })
}

func (l *lexer) scanNumber() token {
	start := l.pos
	if c := l.input[l.pos]; c == '+' || c == '-' {
		l.pos++
	}
	l.scanWhile(isDigit)
	// Only treat '.' as a decimal point when a digit follows.
	if l.pos+1 < len(l.input) && l.input[l.pos] == '.' && isDigit(l.input[l.pos+1]) {
		l.pos++
		l.scanWhile(isDigit)
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		if l.scanWhile(isDigit) == "" {
			l.pos = save
		}
	}
	return token{kind: tokNumber, value: l.input[start:l.pos], pos: start}
}

func (l *lexer) scanString() (token, error) {
	start := l.pos
	quote := l.input[l.pos]
	long := strings.Repeat(string(quote), 3)
	if strings.HasPrefix(l.input[l.pos:], long) {
		l.pos += 3
		contentStart := l.pos
		for l.pos < len(l.input) {
			if l.input[l.pos] == '\\' {
				l.pos += 2
				continue
			}
			if strings.HasPrefix(l.input[l.pos:], long) {
				raw := l.input[contentStart:l.pos]
				l.pos += 3
				return token{kind: tokString, value: raw, pos: start}, nil
			}
			l.pos++
		}
		return token{}, errorAt(start, "unterminated string")
	}
	l.pos++
	contentStart := l.pos
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case '\\':
			l.pos += 2
			continue
		case '\n', '\r':
			return token{}, errorAt(start, "newline in string")
		case quote:
			raw := l.input[contentStart:l.pos]
			l.pos++
			return token{kind: tokString, value: raw, pos: start}, nil
		}
		l.pos++
	}
	return token{}, errorAt(start, "unterminated string")
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80 }
func isAlnum(c byte) bool { return isDigit(c) || isAlpha(c) }
