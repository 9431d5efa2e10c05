// Package memory implements an embedded repository on top of SQLite.
//
// Quads are kept in a single table, one N-Triples rendered term per column,
// so equality of RDF terms is equality of strings. The store is transient
// with the ":memory:" path and persistent with a file path.
//
// Queries are evaluated by a small SPARQL SELECT engine; see Evaluate on the
// connection for the supported subset.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/geoknoesis/sparql-rows/rdf"
	"github.com/geoknoesis/sparql-rows/repository"
)

// InMemory is the path that opens a transient store.
const InMemory = ":memory:"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS quads (
	s TEXT NOT NULL,
	p TEXT NOT NULL,
	o TEXT NOT NULL,
	g TEXT NOT NULL DEFAULT '',
	UNIQUE (s, p, o, g)
);
CREATE INDEX IF NOT EXISTS idx_quads_p ON quads(p);
CREATE INDEX IF NOT EXISTS idx_quads_o ON quads(o);
CREATE INDEX IF NOT EXISTS idx_quads_g ON quads(g);
`

// Store is an embedded repository.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	baseIRI string

	mu     sync.Mutex
	closed bool
}

var _ repository.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBaseIRI sets the base IRI used to resolve relative IRIs in Turtle and JSON-LD input.
func WithBaseIRI(base string) Option {
	return func(s *Store) {
		s.baseIRI = base
	}
}

// Open creates or opens a store at path. Use InMemory for a transient store.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = InMemory
	}
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// An in-memory database lives and dies with its connection, and a file
	// database only takes one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func dsn(path string) string {
	if path == InMemory {
		return path
	}
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000"
}

// Connection acquires a pooled database connection.
func (s *Store) Connection(ctx context.Context) (repository.Connection, error) {
	if s.isClosed() {
		return nil, repository.ErrClosed
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrConnectivity, err)
	}
	return &connection{conn: conn}, nil
}

// ShutDown closes the database. It may be called once.
func (s *Store) ShutDown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return repository.ErrClosed
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Add inserts quads. Duplicates are ignored.
func (s *Store) Add(ctx context.Context, quads ...rdf.Quad) error {
	if s.isClosed() {
		return repository.ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO quads (s, p, o, g) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, q := range quads {
		if err := validateQuad(q); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, rdf.RenderTerm(q.S), rdf.RenderTerm(q.P), rdf.RenderTerm(q.O), graphKey(q.G)); err != nil {
			return fmt.Errorf("insert quad: %w", err)
		}
	}
	return tx.Commit()
}

func validateQuad(q rdf.Quad) error {
	switch {
	case q.S == nil || q.P.Value == "" || q.O == nil:
		return errors.New("memory: incomplete statement")
	case q.S.Kind() == rdf.TermLiteral:
		return errors.New("memory: literal subject")
	case q.G != nil && q.G.Kind() != rdf.TermIRI && q.G.Kind() != rdf.TermBlankNode:
		return fmt.Errorf("memory: invalid graph name %s", q.G)
	}
	return nil
}

func graphKey(g rdf.Term) string {
	if g == nil {
		return ""
	}
	return rdf.RenderTerm(g)
}

// Load reads statements in format from r. A non-nil graph replaces the graph
// of every statement.
func (s *Store) Load(ctx context.Context, r io.Reader, format rdf.Format, graph rdf.Term) error {
	const batchSize = 1000
	batch := make([]rdf.Quad, 0, batchSize)
	total := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.Add(ctx, batch...); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	err := rdf.Parse(ctx, r, format, func(q rdf.Quad) error {
		if graph != nil {
			q.G = graph
		}
		batch = append(batch, q)
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	}, rdf.OptBaseIRI(s.baseIRI))
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}
	s.logger.Debug("statements loaded", "format", format, "count", total)
	return nil
}

// LoadFile loads a file, inferring its format from the extension.
func (s *Store) LoadFile(ctx context.Context, path string, graph rdf.Term) error {
	format, err := rdf.FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := s.Load(ctx, f, format, graph); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Size counts the stored quads.
func (s *Store) Size(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quads`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Clear removes every quad, or only those of the given graphs.
func (s *Store) Clear(ctx context.Context, graphs ...rdf.Term) error {
	if len(graphs) == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM quads`)
		return err
	}
	for _, g := range graphs {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM quads WHERE g = ?`, graphKey(g)); err != nil {
			return err
		}
	}
	return nil
}
