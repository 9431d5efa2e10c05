package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/geoknoesis/sparql-rows/rdf"
	"github.com/geoknoesis/sparql-rows/repository"
)

// solution holds the bound variables of one partial result.
type solution map[string]rdf.Term

func (s solution) extend(name string, value rdf.Term) (solution, bool) {
	if existing, ok := s[name]; ok {
		return s, rdf.RenderTerm(existing) == rdf.RenderTerm(value)
	}
	out := make(solution, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[name] = value
	return out, true
}

type connection struct {
	conn   *sql.Conn
	closed bool
}

// Evaluate runs a SELECT query. The supported subset is BASE and PREFIX
// declarations, SELECT [DISTINCT|REDUCED] with variables or '*', FROM,
// basic graph patterns, nested groups, OPTIONAL, ORDER BY, LIMIT and OFFSET.
// A non-zero dataset takes precedence over FROM. Without either, the
// default graph is the union of every graph in the store.
func (c *connection) Evaluate(ctx context.Context, query string, dataset repository.Dataset) (repository.TupleResult, error) {
	if c.closed {
		return nil, repository.ErrClosed
	}
	q, err := parseQuery(query)
	if err != nil {
		offset := -1
		var se *syntaxError
		if errors.As(err, &se) {
			offset = se.pos
		}
		return nil, &repository.QueryError{Query: query, Offset: offset, Err: err}
	}

	graphs := dataset.DefaultGraphs
	if len(graphs) == 0 {
		graphs = q.from
	}
	ev := &evaluator{conn: c.conn, graphs: graphs}
	solutions, err := ev.evalGroup(ctx, q.where, []solution{{}})
	if err != nil {
		return nil, err
	}

	if len(q.order) > 0 {
		sortSolutions(solutions, q.order)
	}

	names := q.projection
	if names == nil {
		names = q.seen
	}
	if names == nil {
		names = []string{}
	}
	rows := make([]repository.BindingSet, 0, len(solutions))
	seen := map[string]bool{}
	for _, sol := range solutions {
		row := make(repository.BindingSet, len(names))
		for _, name := range names {
			row[name] = sol[name]
		}
		if q.distinct {
			key := rowKey(row, names)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		rows = append(rows, row)
	}

	if q.offset > 0 {
		if q.offset >= len(rows) {
			rows = rows[:0]
		} else {
			rows = rows[q.offset:]
		}
	}
	if q.limit >= 0 && q.limit < len(rows) {
		rows = rows[:q.limit]
	}
	return repository.NewSliceResult(names, rows), nil
}

func (c *connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

type evaluator struct {
	conn   *sql.Conn
	graphs []rdf.IRI
}

func (ev *evaluator) evalGroup(ctx context.Context, group *groupPattern, input []solution) ([]solution, error) {
	solutions := input
	for _, elem := range group.elements {
		var err error
		switch e := elem.(type) {
		case triplesBlock:
			for _, pattern := range e {
				solutions, err = ev.join(ctx, solutions, pattern)
				if err != nil {
					return nil, err
				}
				if len(solutions) == 0 {
					return solutions, nil
				}
			}
		case optionalGroup:
			var out []solution
			for _, sol := range solutions {
				extended, err := ev.evalGroup(ctx, e.group, []solution{sol})
				if err != nil {
					return nil, err
				}
				if len(extended) == 0 {
					out = append(out, sol)
					continue
				}
				out = append(out, extended...)
			}
			solutions = out
		case *groupPattern:
			solutions, err = ev.evalGroup(ctx, e, solutions)
			if err != nil {
				return nil, err
			}
		}
	}
	return solutions, nil
}

// join extends every solution with the quads matching pattern.
func (ev *evaluator) join(ctx context.Context, solutions []solution, pattern triplePattern) ([]solution, error) {
	var out []solution
	for _, sol := range solutions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := ev.match(ctx, bind(pattern.s, sol), bind(pattern.p, sol), bind(pattern.o, sol))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			next, ok := sol, true
			for i, n := range []node{pattern.s, pattern.p, pattern.o} {
				if !n.isVar() {
					continue
				}
				next, ok = next.extend(n.variable, m[i])
				if !ok {
					break
				}
			}
			if ok {
				out = append(out, next)
			}
		}
	}
	return out, nil
}

// bind substitutes a variable already bound in sol.
func bind(n node, sol solution) node {
	if n.isVar() {
		if value, ok := sol[n.variable]; ok && value != nil {
			return node{term: value}
		}
	}
	return n
}

func (ev *evaluator) match(ctx context.Context, s, p, o node) ([][3]rdf.Term, error) {
	var (
		where []string
		args  []interface{}
	)
	for _, col := range []struct {
		name string
		n    node
	}{{"s", s}, {"p", p}, {"o", o}} {
		if col.n.isVar() {
			continue
		}
		where = append(where, col.name+" = ?")
		args = append(args, rdf.RenderTerm(col.n.term))
	}
	if len(ev.graphs) > 0 {
		marks := make([]string, len(ev.graphs))
		for i, g := range ev.graphs {
			marks[i] = "?"
			args = append(args, rdf.RenderTerm(g))
		}
		where = append(where, "g IN ("+strings.Join(marks, ", ")+")")
	}

	stmt := "SELECT DISTINCT s, p, o FROM quads"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := ev.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrConnectivity, err)
	}
	defer rows.Close()

	var matches [][3]rdf.Term
	for rows.Next() {
		var cols [3]string
		if err := rows.Scan(&cols[0], &cols[1], &cols[2]); err != nil {
			return nil, err
		}
		var m [3]rdf.Term
		for i, col := range cols {
			term, err := rdf.ParseTerm(col)
			if err != nil {
				return nil, fmt.Errorf("memory: corrupt term %q: %w", col, err)
			}
			m[i] = term
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrConnectivity, err)
	}
	return matches, nil
}

func rowKey(row repository.BindingSet, names []string) string {
	var b strings.Builder
	for _, name := range names {
		b.WriteString(rdf.RenderTerm(row[name]))
		b.WriteByte(0)
	}
	return b.String()
}

func sortSolutions(solutions []solution, keys []orderKey) {
	sort.SliceStable(solutions, func(i, j int) bool {
		for _, key := range keys {
			c := compareTerms(solutions[i][key.variable], solutions[j][key.variable])
			if c == 0 {
				continue
			}
			if key.descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// compareTerms orders unbound < blank nodes < IRIs < literals. Numeric
// literals compare by value, other literals by lexical form.
func compareTerms(a, b rdf.Term) int {
	ra, rb := termRank(a), termRank(b)
	if ra != rb {
		return ra - rb
	}
	if a == nil {
		return 0
	}
	la, aok := a.(rdf.Literal)
	lb, bok := b.(rdf.Literal)
	if aok && bok {
		if fa, ok := numericValue(la); ok {
			if fb, ok := numericValue(lb); ok {
				switch {
				case fa < fb:
					return -1
				case fa > fb:
					return 1
				}
				return 0
			}
		}
		if c := strings.Compare(la.Lexical, lb.Lexical); c != 0 {
			return c
		}
		return strings.Compare(la.Lang+la.Datatype.Value, lb.Lang+lb.Datatype.Value)
	}
	return strings.Compare(rdf.LexicalForm(a), rdf.LexicalForm(b))
}

func termRank(t rdf.Term) int {
	if t == nil {
		return 0
	}
	switch t.Kind() {
	case rdf.TermBlankNode:
		return 1
	case rdf.TermIRI:
		return 2
	case rdf.TermLiteral:
		return 3
	default:
		return 4
	}
}

const xsdNamespace = "http://www.w3.org/2001/XMLSchema#"

func numericValue(l rdf.Literal) (float64, bool) {
	switch strings.TrimPrefix(l.Datatype.Value, xsdNamespace) {
	case "integer", "decimal", "double", "float", "int", "long", "short", "byte",
		"nonNegativeInteger", "positiveInteger", "negativeInteger", "nonPositiveInteger",
		"unsignedInt", "unsignedLong", "unsignedShort", "unsignedByte":
		if !strings.HasPrefix(l.Datatype.Value, xsdNamespace) {
			return 0, false
		}
		f, err := strconv.ParseFloat(l.Lexical, 64)
		return f, err == nil
	}
	return 0, false
}
