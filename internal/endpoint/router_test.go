package endpoint

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoknoesis/sparql-rows/rdf"
	"github.com/geoknoesis/sparql-rows/repository"
	"github.com/geoknoesis/sparql-rows/repository/memory"
	"github.com/geoknoesis/sparql-rows/repository/sparqlhttp"
	"github.com/geoknoesis/sparql-rows/results"
)

const feedNQ = `<http://example.org/stop1> <http://example.org/name> "Central" <http://example.org/g1> .
<http://example.org/stop2> <http://example.org/name> "Harbour" <http://example.org/g2> .
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := memory.Open(memory.InMemory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.ShutDown() })
	require.NoError(t, store.Load(context.Background(), strings.NewReader(feedNQ), rdf.FormatNQuads, nil))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewRouter(map[string]repository.Repository{"feed": store}, logger))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))
}

func TestQueryThroughProtocolClient(t *testing.T) {
	srv := newTestServer(t)
	repo, err := sparqlhttp.New(srv.URL, "feed")
	require.NoError(t, err)
	defer repo.ShutDown()

	ctx := context.Background()
	conn, err := repo.Connection(ctx)
	require.NoError(t, err)
	defer conn.Close()

	query := "SELECT ?stop ?name WHERE { ?stop <http://example.org/name> ?name } ORDER BY ?name"
	result, err := conn.Evaluate(ctx, query, repository.Dataset{})
	require.NoError(t, err)
	rows, err := repository.Collect(result)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"stop", "name"}, result.BindingNames())
	assert.Equal(t, rdf.Literal{Lexical: "Central"}, rows[0]["name"])
	assert.Equal(t, rdf.IRI{Value: "http://example.org/stop2"}, rows[1]["stop"])

	result, err = conn.Evaluate(ctx, query, repository.Dataset{DefaultGraphs: []rdf.IRI{{Value: "http://example.org/g2"}}})
	require.NoError(t, err)
	rows, err = repository.Collect(result)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Harbour", rdf.LexicalForm(rows[0]["name"]))

	_, err = conn.Evaluate(ctx, "SELECT ?s WHERE { ?s ?p ?o FILTER(?o) }", repository.Dataset{})
	assert.ErrorIs(t, err, repository.ErrQuery)
	assert.Contains(t, err.Error(), "unsupported SPARQL feature FILTER")
}

func TestQueryGetWithTSV(t *testing.T) {
	srv := newTestServer(t)

	params := url.Values{}
	params.Set("query", "SELECT ?name WHERE { ?s <http://example.org/name> ?name }")
	params.Add("default-graph-uri", "http://example.org/g1")
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/repositories/feed?"+params.Encode(), nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/tab-separated-values, */*;q=0.1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, results.ContentTypeTSV, resp.Header.Get("Content-Type"))
	assert.Equal(t, "?name\n\"Central\"\n", string(body))
}

func TestQueryRequestErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		form   url.Values
		status int
		text   string
	}{
		{"unknown repository", "/repositories/other", url.Values{"query": {"SELECT * WHERE { ?s ?p ?o }"}}, http.StatusNotFound, "unknown repository other"},
		{"missing query", "/repositories/feed", url.Values{}, http.StatusBadRequest, "missing query parameter"},
		{"blank query", "/repositories/feed", url.Values{"query": {"  "}}, http.StatusBadRequest, "missing query parameter"},
		{"bad graph", "/repositories/feed", url.Values{"query": {"SELECT * WHERE { ?s ?p ?o }"}, "default-graph-uri": {"relative"}}, http.StatusBadRequest, "not an absolute IRI"},
		{"bad query", "/repositories/feed", url.Values{"query": {"SELECT nothing"}}, http.StatusBadRequest, "query error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.PostForm(srv.URL+tt.path, tt.form)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, string(body), tt.text)
		})
	}
}

func TestQueryAfterShutDownIsServerError(t *testing.T) {
	store, err := memory.Open(memory.InMemory)
	require.NoError(t, err)
	require.NoError(t, store.ShutDown())

	srv := httptest.NewServer(NewRouter(map[string]repository.Repository{"feed": store}, nil))
	defer srv.Close()

	resp, err := http.PostForm(srv.URL+"/repositories/feed", url.Values{"query": {"SELECT * WHERE { ?s ?p ?o }"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
