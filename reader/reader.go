// Package reader runs SPARQL queries for text-generation templates and hands
// back the results as ordered rows of plain strings.
//
// A Reader wraps a repository.Repository. Every query is prefixed with the
// configured query header, restricted to the configured context graph and
// evaluated on a connection that is opened and closed within the call:
//
//	r := reader.New(repo, reader.WithLogger(logger))
//	r.SetQueryHeader("PREFIX ex: <http://example.org/>\n")
//	rows, err := r.ExecuteQueryStringValue(ctx, "SELECT ?name WHERE { ?s ex:name ?name }")
//
// Configuration is published as immutable Settings snapshots, so changing the
// header or context never affects a query that is already running.
package reader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/geoknoesis/sparql-rows/rdf"
	"github.com/geoknoesis/sparql-rows/repository"
)

// Reader executes queries against a repository.
type Reader struct {
	repo   repository.Repository
	logger *slog.Logger

	// mu serializes writers; readers load settings without locking.
	mu       sync.Mutex
	settings atomic.Pointer[Settings]
}

// Option configures a Reader.
type Option func(*Reader, *Settings)

// WithLogger sets the logger used in verbose mode.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader, _ *Settings) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithQueryHeader sets the initial query header.
func WithQueryHeader(header string) Option {
	return func(_ *Reader, s *Settings) {
		s.header = header
	}
}

// WithContext restricts queries to a named graph.
func WithContext(graph rdf.IRI) Option {
	return func(_ *Reader, s *Settings) {
		s.context = graph
	}
}

// WithVerbose enables query logging.
func WithVerbose(verbose bool) Option {
	return func(_ *Reader, s *Settings) {
		s.verbose = verbose
	}
}

// New returns a Reader that owns repo. Call ShutDown to release it.
func New(repo repository.Repository, opts ...Option) *Reader {
	r := &Reader{
		repo:   repo,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	s := &Settings{}
	for _, opt := range opts {
		opt(r, s)
	}
	r.settings.Store(s)
	return r
}

// Repository returns the wrapped repository.
func (r *Reader) Repository() repository.Repository { return r.repo }

// Settings returns the current configuration snapshot.
func (r *Reader) Settings() Settings { return *r.settings.Load() }

func (r *Reader) update(fn func(*Settings)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := *r.settings.Load()
	fn(&next)
	r.settings.Store(&next)
}

// SetQueryHeader replaces the text prepended to every query.
func (r *Reader) SetQueryHeader(header string) {
	r.update(func(s *Settings) { s.header = header })
}

// AppendQueryHeader appends text to the current query header.
func (r *Reader) AppendQueryHeader(text string) {
	r.update(func(s *Settings) { s.header += text })
}

// QueryHeader returns the current query header.
func (r *Reader) QueryHeader() string { return r.Settings().QueryHeader() }

// SetContext restricts subsequent queries to graph.
func (r *Reader) SetContext(graph rdf.IRI) {
	r.update(func(s *Settings) { s.context = graph })
}

// SetContextString parses graph as an absolute IRI and restricts subsequent
// queries to it. An empty or all-whitespace string leaves the current context
// unchanged.
func (r *Reader) SetContextString(graph string) error {
	if strings.TrimSpace(graph) == "" {
		return nil
	}
	iri, err := rdf.ParseIRI(graph)
	if err != nil {
		return fmt.Errorf("reader: context: %w", err)
	}
	r.SetContext(iri)
	return nil
}

// Context returns the named graph queries are restricted to, if any.
func (r *Reader) Context() (rdf.IRI, bool) { return r.Settings().Context() }

// SetVerbose toggles logging of query text, duration and row count.
func (r *Reader) SetVerbose(verbose bool) {
	r.update(func(s *Settings) { s.verbose = verbose })
}

// Verbose reports whether verbose logging is on.
func (r *Reader) Verbose() bool { return r.Settings().Verbose() }

// ExecuteQuery runs query and returns the typed rows in engine order.
func (r *Reader) ExecuteQuery(ctx context.Context, query string) ([]repository.BindingSet, error) {
	return r.execute(ctx, *r.settings.Load(), query)
}

func (r *Reader) execute(ctx context.Context, s Settings, query string) (rows []repository.BindingSet, err error) {
	conn, err := r.repo.Connection(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	result, err := conn.Evaluate(ctx, s.decorate(query), s.dataset())
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := result.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return repository.Collect(result)
}

// ExecuteQueryStringValue runs query and returns rows of lexical forms. In
// verbose mode the query is logged before execution and its duration and
// row count after.
func (r *Reader) ExecuteQueryStringValue(ctx context.Context, query string) ([]StringRow, error) {
	s := *r.settings.Load()
	if !s.verbose {
		rows, err := r.execute(ctx, s, query)
		if err != nil {
			return nil, err
		}
		return StringValues(rows), nil
	}

	id := uuid.NewString()
	r.logger.Info("query", "query_id", id, "query", query)
	start := time.Now()
	rows, err := r.execute(ctx, s, query)
	if err != nil {
		return nil, err
	}
	out := StringValues(rows)
	r.logger.Info("query executed",
		"query_id", id,
		"query", query,
		"duration_ms", time.Since(start).Milliseconds(),
		"num_rows", len(out),
	)
	return out, nil
}

// ExecuteQueryStringValueXML is ExecuteQueryStringValue with every bound
// value XML escaped.
func (r *Reader) ExecuteQueryStringValueXML(ctx context.Context, query string) ([]StringRow, error) {
	rows, err := r.ExecuteQueryStringValue(ctx, query)
	if err != nil {
		return nil, err
	}
	return EscapeRowsXML(rows), nil
}

// ShutDown releases the repository. It must be called once, after all
// queries have returned.
func (r *Reader) ShutDown() error {
	return r.repo.ShutDown()
}
