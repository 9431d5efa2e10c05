// Package sparqlhttp implements a repository backed by a remote SPARQL 1.1
// protocol endpoint, such as an RDF4J server repository.
package sparqlhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/geoknoesis/sparql-rows/repository"
	"github.com/geoknoesis/sparql-rows/results"
)

// maxErrorBody bounds how much of an error response is kept in the error.
const maxErrorBody = 4 << 10

// Repository talks to one SPARQL query endpoint.
type Repository struct {
	endpoint string
	client   *http.Client
	username string
	password string
	logger   *slog.Logger

	timeout    time.Duration
	hasTimeout bool

	mu     sync.Mutex
	closed bool
}

var _ repository.Repository = (*Repository)(nil)

// Option configures a Repository.
type Option func(*Repository)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Repository) {
		if client != nil {
			r.client = client
		}
	}
}

// WithTimeout bounds each request. Zero means no timeout. It applies to the
// client given by WithHTTPClient regardless of option order, without
// modifying that client.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Repository) {
		r.timeout = timeout
		r.hasTimeout = true
	}
}

// WithBasicAuth sends HTTP basic credentials with every request.
func WithBasicAuth(username, password string) Option {
	return func(r *Repository) {
		r.username = username
		r.password = password
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New returns a repository for an RDF4J-style server: queries go to
// address/repositories/repositoryID.
func New(address, repositoryID string, opts ...Option) (*Repository, error) {
	if repositoryID == "" {
		return nil, errors.New("sparqlhttp: repository id is required")
	}
	base := strings.TrimRight(address, "/")
	return NewEndpoint(base+"/repositories/"+url.PathEscape(repositoryID), opts...)
}

// NewEndpoint returns a repository for a bare SPARQL query endpoint URL.
func NewEndpoint(endpoint string, opts ...Option) (*Repository, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("sparqlhttp: invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("sparqlhttp: unsupported endpoint scheme %q", u.Scheme)
	}
	r := &Repository{
		endpoint: endpoint,
		client:   &http.Client{Transport: http.DefaultTransport},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.hasTimeout {
		c := *r.client
		c.Timeout = r.timeout
		r.client = &c
	}
	return r, nil
}

// Endpoint returns the query URL.
func (r *Repository) Endpoint() string { return r.endpoint }

// Connection returns a connection bound to the endpoint. No network traffic
// happens until a query is evaluated.
func (r *Repository) Connection(ctx context.Context) (repository.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, repository.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &connection{repo: r}, nil
}

// ShutDown releases idle HTTP connections. It may be called once.
func (r *Repository) ShutDown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return repository.ErrClosed
	}
	r.closed = true
	r.client.CloseIdleConnections()
	return nil
}

type connection struct {
	repo   *Repository
	closed bool
}

// Evaluate POSTs the query with the dataset as default-graph-uri parameters.
func (c *connection) Evaluate(ctx context.Context, query string, dataset repository.Dataset) (repository.TupleResult, error) {
	if c.closed {
		return nil, repository.ErrClosed
	}
	form := url.Values{}
	form.Set("query", query)
	for _, g := range dataset.DefaultGraphs {
		form.Add("default-graph-uri", g.Value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.repo.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("sparqlhttp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", results.ContentTypeJSON)
	if c.repo.username != "" {
		req.SetBasicAuth(c.repo.username, c.repo.password)
	}

	resp, err := c.repo.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", repository.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	c.repo.logger.Debug("sparql request", "endpoint", c.repo.endpoint, "status", resp.StatusCode)

	if resp.StatusCode == http.StatusBadRequest {
		return nil, &repository.QueryError{Query: query, Offset: -1, Err: errors.New(readErrorBody(resp.Body))}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: %s", repository.ErrConnectivity, resp.Status, readErrorBody(resp.Body))
	}

	result, err := results.DecodeJSON(resp.Body)
	if err != nil {
		if errors.Is(err, results.ErrNotTupleResult) {
			return nil, &repository.QueryError{Query: query, Offset: -1, Err: err}
		}
		return nil, fmt.Errorf("%w: %v", repository.ErrConnectivity, err)
	}
	return result, nil
}

func (c *connection) Close() error {
	c.closed = true
	return nil
}

func readErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return "no response body"
	}
	return msg
}
