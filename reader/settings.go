package reader

import (
	"strings"

	"github.com/geoknoesis/sparql-rows/rdf"
	"github.com/geoknoesis/sparql-rows/repository"
)

// Settings is an immutable snapshot of the reader configuration. Each query
// reads exactly one snapshot.
type Settings struct {
	header  string
	context rdf.IRI
	verbose bool
}

// QueryHeader returns the text prepended to every query.
func (s Settings) QueryHeader() string { return s.header }

// Context returns the named graph queries are restricted to, if any.
func (s Settings) Context() (rdf.IRI, bool) { return s.context, !s.context.IsZero() }

// Verbose reports whether queries are logged.
func (s Settings) Verbose() bool { return s.verbose }

// decorate prepends the header unless it is blank.
func (s Settings) decorate(query string) string {
	if strings.TrimSpace(s.header) == "" {
		return query
	}
	return s.header + query
}

// dataset turns the context into the read scope handed to the repository.
func (s Settings) dataset() repository.Dataset {
	if s.context.IsZero() {
		return repository.Dataset{}
	}
	return repository.Dataset{DefaultGraphs: []rdf.IRI{s.context}}
}
