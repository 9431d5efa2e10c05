package reader

import (
	"strings"

	"github.com/geoknoesis/sparql-rows/rdf"
	"github.com/geoknoesis/sparql-rows/repository"
)

// StringRow maps binding names to string values. Unbound values are nil; the
// key is still present.
type StringRow map[string]*string

// Lookup returns the value of name and whether it is bound.
func (r StringRow) Lookup(name string) (string, bool) {
	v, ok := r[name]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// Value returns the value of name, the first fallback when it is missing or
// unbound, or "" when there is no fallback.
func (r StringRow) Value(name string, fallback ...string) string {
	if v, ok := r.Lookup(name); ok {
		return v
	}
	if len(fallback) > 0 {
		return fallback[0]
	}
	return ""
}

// ProjectRow reduces every bound term to its lexical form.
func ProjectRow(row repository.BindingSet) StringRow {
	out := make(StringRow, len(row))
	for name, term := range row {
		if term == nil {
			out[name] = nil
			continue
		}
		s := rdf.LexicalForm(term)
		out[name] = &s
	}
	return out
}

// StringValues projects rows in order. The result is never nil.
func StringValues(rows []repository.BindingSet) []StringRow {
	out := make([]StringRow, len(rows))
	for i, row := range rows {
		out[i] = ProjectRow(row)
	}
	return out
}

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

// EscapeXML replaces the five XML special characters with entities.
func EscapeXML(s string) string {
	return xmlReplacer.Replace(s)
}

// EscapeRowsXML escapes every bound value in place and returns rows.
func EscapeRowsXML(rows []StringRow) []StringRow {
	for _, row := range rows {
		for name, v := range row {
			if v == nil {
				continue
			}
			escaped := EscapeXML(*v)
			row[name] = &escaped
		}
	}
	return rows
}
