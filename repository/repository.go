// Package repository defines the contract between the reader and the triple
// store it delegates to: connection acquisition, tuple query evaluation and
// binding-set iteration.
//
// Implementations live in the subpackages sparqlhttp (a remote SPARQL 1.1
// protocol endpoint) and memory (an embedded SQLite-backed store).
package repository

import (
	"context"
	"io"

	"github.com/geoknoesis/sparql-rows/rdf"
)

// Repository is a connection factory for a triple store. ShutDown releases it
// and must be called exactly once.
type Repository interface {
	Connection(ctx context.Context) (Connection, error)
	ShutDown() error
}

// Connection evaluates queries. A connection is used by one caller at a time
// and must be closed when done.
type Connection interface {
	// Evaluate runs a SPARQL SELECT query restricted to dataset.
	Evaluate(ctx context.Context, query string, dataset Dataset) (TupleResult, error)
	Close() error
}

// TupleResult iterates the solutions of a SELECT query. Next returns io.EOF
// after the last binding set.
type TupleResult interface {
	// BindingNames lists the projected variables in order.
	BindingNames() []string
	Next() (BindingSet, error)
	Close() error
}

// BindingSet maps each projected variable to its value. Every binding name is
// present; unbound variables map to nil.
type BindingSet map[string]rdf.Term

// Value returns the value bound to name, or nil.
func (b BindingSet) Value(name string) rdf.Term {
	return b[name]
}

// Dataset restricts which graphs a query reads. The zero value means the
// repository default.
type Dataset struct {
	DefaultGraphs []rdf.IRI
}

// IsZero reports whether the dataset leaves the repository default in place.
func (d Dataset) IsZero() bool {
	return len(d.DefaultGraphs) == 0
}

// Collect drains a result into a slice. The returned slice is never nil.
func Collect(result TupleResult) ([]BindingSet, error) {
	rows := make([]BindingSet, 0)
	for {
		row, err := result.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// SliceResult is a TupleResult over binding sets held in memory.
type SliceResult struct {
	names []string
	rows  []BindingSet
	pos   int
}

// NewSliceResult returns a result replaying rows. Missing binding names are
// filled with nil so every row carries the full set of names.
func NewSliceResult(names []string, rows []BindingSet) *SliceResult {
	for _, row := range rows {
		for _, name := range names {
			if _, ok := row[name]; !ok {
				row[name] = nil
			}
		}
	}
	return &SliceResult{names: names, rows: rows}
}

func (r *SliceResult) BindingNames() []string { return r.names }

func (r *SliceResult) Next() (BindingSet, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

func (r *SliceResult) Close() error { return nil }
