package rdf

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	unicodeSurrogateHighStart = 0xD800
	unicodeSurrogateHighEnd   = 0xDBFF
	unicodeSurrogateLowStart  = 0xDC00
	unicodeSurrogateLowEnd    = 0xDFFF
	unicodeSurrogateBase      = 0x10000
)

// UnescapeString decodes the escape sequences allowed in N-Triples and SPARQL
// string literals: \n \t \r \b \f \" \' \\, \uXXXX (with surrogate pairs) and
// \UXXXXXXXX.
func UnescapeString(s string) (string, error) {
	if strings.IndexByte(s, '\\') < 0 {
		return s, nil
	}
	var builder strings.Builder
	builder.Grow(len(s))
	pos := 0
	for pos < len(s) {
		ch := s[pos]
		if ch != '\\' {
			builder.WriteByte(ch)
			pos++
			continue
		}
		if pos+1 >= len(s) {
			return "", fmt.Errorf("unterminated escape")
		}
		switch next := s[pos+1]; next {
		case 'n':
			builder.WriteByte('\n')
		case 't':
			builder.WriteByte('\t')
		case 'r':
			builder.WriteByte('\r')
		case 'b':
			builder.WriteByte('\b')
		case 'f':
			builder.WriteByte('\f')
		case '"', '\'', '\\':
			builder.WriteByte(next)
		case 'u':
			advance, err := unescapeUnicode(&builder, s, pos)
			if err != nil {
				return "", err
			}
			pos += advance
			continue
		case 'U':
			if pos+10 > len(s) {
				return "", fmt.Errorf("invalid escape sequence")
			}
			codePoint := decodeUChar(s[pos+2 : pos+10])
			if !isValidUnicodeCodePoint(codePoint) {
				return "", fmt.Errorf("invalid escape sequence")
			}
			builder.WriteRune(codePoint)
			pos += 10
			continue
		default:
			return "", fmt.Errorf("invalid escape sequence \\%c", next)
		}
		pos += 2
	}
	return builder.String(), nil
}

// unescapeUnicode handles \uXXXX, including surrogate pairs.
func unescapeUnicode(builder *strings.Builder, s string, pos int) (int, error) {
	if pos+6 > len(s) {
		return 0, fmt.Errorf("invalid escape sequence")
	}
	codePoint := decodeUChar(s[pos+2 : pos+6])
	switch {
	case codePoint < 0:
		return 0, fmt.Errorf("invalid escape sequence")
	case codePoint >= unicodeSurrogateHighStart && codePoint <= unicodeSurrogateHighEnd:
		if pos+12 > len(s) || s[pos+6] != '\\' || s[pos+7] != 'u' {
			return 0, fmt.Errorf("invalid escape sequence")
		}
		low := decodeUChar(s[pos+8 : pos+12])
		if low < unicodeSurrogateLowStart || low > unicodeSurrogateLowEnd {
			return 0, fmt.Errorf("invalid escape sequence")
		}
		combined := unicodeSurrogateBase + ((codePoint - unicodeSurrogateHighStart) << 10) + (low - unicodeSurrogateLowStart)
		builder.WriteRune(combined)
		return 12, nil
	case !isValidUnicodeCodePoint(codePoint):
		return 0, fmt.Errorf("invalid escape sequence")
	}
	builder.WriteRune(codePoint)
	return 6, nil
}

func decodeUChar(hexStr string) rune {
	var codePoint rune
	for i := 0; i < len(hexStr); i++ {
		ch := hexStr[i]
		var digit rune
		switch {
		case ch >= '0' && ch <= '9':
			digit = rune(ch - '0')
		case ch >= 'a' && ch <= 'f':
			digit = rune(ch-'a') + 10
		case ch >= 'A' && ch <= 'F':
			digit = rune(ch-'A') + 10
		default:
			return -1
		}
		codePoint = codePoint*16 + digit
	}
	return codePoint
}

func isValidUnicodeCodePoint(codePoint rune) bool {
	if codePoint < 0 || codePoint > utf8.MaxRune {
		return false
	}
	return codePoint < unicodeSurrogateHighStart || codePoint > unicodeSurrogateLowEnd
}

// EscapeString escapes a literal's lexical form for N-Triples output.
func EscapeString(s string) string {
	var builder strings.Builder
	builder.Grow(len(s) + 2)
	for _, r := range s {
		switch r {
		case '\\':
			builder.WriteString(`\\`)
		case '"':
			builder.WriteString(`\"`)
		case '\n':
			builder.WriteString(`\n`)
		case '\r':
			builder.WriteString(`\r`)
		case '\t':
			builder.WriteString(`\t`)
		default:
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// RenderTerm renders a term in N-Triples notation. Unknown or nil terms render
// as the empty string.
func RenderTerm(term Term) string {
	switch value := term.(type) {
	case IRI:
		return "<" + value.Value + ">"
	case BlankNode:
		return value.String()
	case Literal:
		lexical := `"` + EscapeString(value.Lexical) + `"`
		if value.Lang != "" {
			return lexical + "@" + value.Lang
		}
		if value.Datatype.Value != "" && value.Datatype.Value != XSDString {
			return lexical + "^^<" + value.Datatype.Value + ">"
		}
		return lexical
	case TripleTerm:
		return value.String()
	default:
		return ""
	}
}
