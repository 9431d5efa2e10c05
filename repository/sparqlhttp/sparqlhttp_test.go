package sparqlhttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoknoesis/sparql-rows/rdf"
	"github.com/geoknoesis/sparql-rows/repository"
	"github.com/geoknoesis/sparql-rows/results"
)

const helloResult = `{
  "head": {"vars": ["s", "o"]},
  "results": {"bindings": [
    {"s": {"type": "uri", "value": "http://example.org/s"}, "o": {"type": "literal", "value": "hello"}},
    {"s": {"type": "bnode", "value": "b0"}}
  ]}
}`

type capturedRequest struct {
	method      string
	contentType string
	accept      string
	query       string
	graphs      []string
	user, pass  string
	hasAuth     bool
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		captured.method = r.Method
		captured.contentType = r.Header.Get("Content-Type")
		captured.accept = r.Header.Get("Accept")
		captured.query = r.PostForm.Get("query")
		captured.graphs = r.PostForm["default-graph-uri"]
		captured.user, captured.pass, captured.hasAuth = r.BasicAuth()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func evaluate(t *testing.T, repo *Repository, query string, dataset repository.Dataset) ([]repository.BindingSet, error) {
	t.Helper()
	ctx := context.Background()
	conn, err := repo.Connection(ctx)
	require.NoError(t, err)
	defer conn.Close()

	result, err := conn.Evaluate(ctx, query, dataset)
	if err != nil {
		return nil, err
	}
	defer result.Close()
	return repository.Collect(result)
}

func TestEvaluateSendsProtocolRequest(t *testing.T) {
	srv, captured := newServer(t, http.StatusOK, helloResult)
	repo, err := NewEndpoint(srv.URL)
	require.NoError(t, err)

	dataset := repository.Dataset{DefaultGraphs: []rdf.IRI{{Value: "http://example.org/g1"}, {Value: "http://example.org/g2"}}}
	rows, err := evaluate(t, repo, "SELECT * WHERE { ?s ?p ?o }", dataset)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, captured.method)
	assert.Equal(t, "application/x-www-form-urlencoded", captured.contentType)
	assert.Equal(t, results.ContentTypeJSON, captured.accept)
	assert.Equal(t, "SELECT * WHERE { ?s ?p ?o }", captured.query)
	assert.Equal(t, []string{"http://example.org/g1", "http://example.org/g2"}, captured.graphs)
	assert.False(t, captured.hasAuth)

	require.Len(t, rows, 2)
	assert.Equal(t, rdf.IRI{Value: "http://example.org/s"}, rows[0]["s"])
	assert.Equal(t, rdf.Literal{Lexical: "hello"}, rows[0]["o"])
	assert.Equal(t, rdf.BlankNode{ID: "b0"}, rows[1]["s"])
	o, present := rows[1]["o"]
	assert.True(t, present)
	assert.Nil(t, o)
}

func TestEvaluateWithoutDataset(t *testing.T) {
	srv, captured := newServer(t, http.StatusOK, helloResult)
	repo, err := NewEndpoint(srv.URL)
	require.NoError(t, err)

	_, err = evaluate(t, repo, "SELECT ?s WHERE { ?s ?p ?o }", repository.Dataset{})
	require.NoError(t, err)
	assert.Empty(t, captured.graphs)
}

func TestEvaluateBasicAuth(t *testing.T) {
	srv, captured := newServer(t, http.StatusOK, helloResult)
	repo, err := NewEndpoint(srv.URL, WithBasicAuth("reader", "secret"))
	require.NoError(t, err)

	_, err = evaluate(t, repo, "SELECT ?s WHERE { ?s ?p ?o }", repository.Dataset{})
	require.NoError(t, err)
	assert.True(t, captured.hasAuth)
	assert.Equal(t, "reader", captured.user)
	assert.Equal(t, "secret", captured.pass)
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   repository.ErrorCode
		text   string
	}{
		{"bad request", http.StatusBadRequest, "MALFORMED QUERY: line 1", repository.ErrCodeQuery, "MALFORMED QUERY"},
		{"server error", http.StatusInternalServerError, "", repository.ErrCodeConnectivity, "no response body"},
		{"not found", http.StatusNotFound, "unknown repository", repository.ErrCodeConnectivity, "404"},
		{"boolean result", http.StatusOK, `{"head": {}, "boolean": true}`, repository.ErrCodeQuery, "not a tuple result"},
		{"garbage", http.StatusOK, `<html>`, repository.ErrCodeConnectivity, "decode json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.status, tt.body)
			repo, err := NewEndpoint(srv.URL)
			require.NoError(t, err)

			_, err = evaluate(t, repo, "SELECT ?s WHERE { ?s ?p ?o }", repository.Dataset{})
			require.Error(t, err)
			assert.Equal(t, tt.code, repository.Code(err))
			assert.Contains(t, err.Error(), tt.text)
		})
	}
}

func TestEvaluateUnreachable(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, helloResult)
	url := srv.URL
	srv.Close()

	repo, err := NewEndpoint(url)
	require.NoError(t, err)
	_, err = evaluate(t, repo, "SELECT ?s WHERE { ?s ?p ?o }", repository.Dataset{})
	assert.ErrorIs(t, err, repository.ErrConnectivity)
}

func TestEvaluateCanceled(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, helloResult)
	repo, err := NewEndpoint(srv.URL)
	require.NoError(t, err)

	conn, err := repo.Connection(context.Background())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = conn.Evaluate(ctx, "SELECT ?s WHERE { ?s ?p ?o }", repository.Dataset{})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewBuildsRepositoryURL(t *testing.T) {
	repo, err := New("http://localhost:8080/rdf4j-server/", "gtfs feed")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/rdf4j-server/repositories/gtfs%20feed", repo.Endpoint())

	_, err = New("http://localhost:8080", "")
	assert.Error(t, err)
	_, err = NewEndpoint("ftp://example.org/sparql")
	assert.ErrorContains(t, err, "unsupported endpoint scheme")
}

func TestTimeoutAppliesToCustomClient(t *testing.T) {
	custom := &http.Client{}
	for _, opts := range [][]Option{
		{WithTimeout(time.Second), WithHTTPClient(custom)},
		{WithHTTPClient(custom), WithTimeout(time.Second)},
	} {
		repo, err := NewEndpoint("http://localhost:1/sparql", opts...)
		require.NoError(t, err)
		assert.Equal(t, time.Second, repo.client.Timeout)
	}
	assert.Zero(t, custom.Timeout, "caller's client is left untouched")

	repo, err := NewEndpoint("http://localhost:1/sparql", WithHTTPClient(custom))
	require.NoError(t, err)
	assert.Same(t, custom, repo.client)
}

func TestShutDown(t *testing.T) {
	repo, err := NewEndpoint("http://localhost:1/sparql")
	require.NoError(t, err)

	conn, err := repo.Connection(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	_, err = conn.Evaluate(context.Background(), "SELECT ?s WHERE { ?s ?p ?o }", repository.Dataset{})
	assert.ErrorIs(t, err, repository.ErrClosed)

	require.NoError(t, repo.ShutDown())
	assert.ErrorIs(t, repo.ShutDown(), repository.ErrClosed)
	_, err = repo.Connection(context.Background())
	assert.ErrorIs(t, err, repository.ErrClosed)
}
