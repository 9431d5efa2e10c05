package reader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoknoesis/sparql-rows/rdf"
	"github.com/geoknoesis/sparql-rows/repository"
	"github.com/geoknoesis/sparql-rows/repository/memory"
)

const selectAll = "SELECT ?s WHERE { ?s ?p ?o }"

func peopleRepository() *fakeRepository {
	return &fakeRepository{
		names: []string{"s", "name", "age"},
		rows: []repository.BindingSet{
			{
				"s":    rdf.IRI{Value: "http://example.org/alice"},
				"name": rdf.Literal{Lexical: "Alice", Lang: "en"},
				"age":  rdf.Literal{Lexical: "30", Datatype: rdf.IRI{Value: rdf.XSDInteger}},
			},
			{
				"s":    rdf.BlankNode{ID: "b7"},
				"name": rdf.Literal{Lexical: "Bob <admin>"},
			},
		},
	}
}

func TestExecuteQueryStringValueProjectsRows(t *testing.T) {
	repo := peopleRepository()
	r := New(repo)

	rows, err := r.ExecuteQueryStringValue(context.Background(), selectAll)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "http://example.org/alice", rows[0].Value("s"))
	assert.Equal(t, "Alice", rows[0].Value("name"))
	assert.Equal(t, "30", rows[0].Value("age"))
	assert.Equal(t, "b7", rows[1].Value("s"))
	assert.Equal(t, "Bob <admin>", rows[1].Value("name"))

	for i, row := range rows {
		assert.Len(t, row, 3, "row %d keeps every binding name", i)
	}
	age, present := rows[1]["age"]
	assert.True(t, present)
	assert.Nil(t, age)

	assert.Equal(t, 1, repo.opened)
	assert.Equal(t, 1, repo.closed)
}

func TestExecuteQueryReturnsTypedRows(t *testing.T) {
	repo := peopleRepository()
	r := New(repo)

	rows, err := r.ExecuteQuery(context.Background(), selectAll)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, rdf.Literal{Lexical: "Alice", Lang: "en"}, rows[0]["name"])
}

func TestExecuteQueryXMLEscapes(t *testing.T) {
	r := New(peopleRepository())

	rows, err := r.ExecuteQueryStringValueXML(context.Background(), selectAll)
	require.NoError(t, err)
	assert.Equal(t, "Bob &lt;admin&gt;", rows[1].Value("name"))
	assert.Nil(t, rows[1]["age"])
}

func TestQueryHeaderDecoration(t *testing.T) {
	repo := peopleRepository()
	r := New(repo)
	ctx := context.Background()

	_, err := r.ExecuteQueryStringValue(ctx, selectAll)
	require.NoError(t, err)
	query, _ := repo.lastQuery()
	assert.Equal(t, selectAll, query)

	r.SetQueryHeader("PREFIX ex: <http://example.org/>\n")
	r.AppendQueryHeader("PREFIX foaf: <http://xmlns.com/foaf/0.1/>\n")
	_, err = r.ExecuteQueryStringValue(ctx, selectAll)
	require.NoError(t, err)
	query, _ = repo.lastQuery()
	assert.Equal(t, "PREFIX ex: <http://example.org/>\nPREFIX foaf: <http://xmlns.com/foaf/0.1/>\n"+selectAll, query)

	r.SetQueryHeader("  \n\t")
	_, err = r.ExecuteQuery(ctx, selectAll)
	require.NoError(t, err)
	query, _ = repo.lastQuery()
	assert.Equal(t, selectAll, query)
}

func TestContextScoping(t *testing.T) {
	repo := peopleRepository()
	r := New(repo, WithContext(rdf.IRI{Value: "http://example.org/g1"}))
	ctx := context.Background()

	_, err := r.ExecuteQuery(ctx, selectAll)
	require.NoError(t, err)
	_, dataset := repo.lastQuery()
	assert.Equal(t, []rdf.IRI{{Value: "http://example.org/g1"}}, dataset.DefaultGraphs)

	require.NoError(t, r.SetContextString(""))
	graph, ok := r.Context()
	assert.True(t, ok)
	assert.Equal(t, "http://example.org/g1", graph.Value)

	err = r.SetContextString("not an iri")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reader: context")
	graph, _ = r.Context()
	assert.Equal(t, "http://example.org/g1", graph.Value)

	require.NoError(t, r.SetContextString("http://example.org/g2"))
	_, err = r.ExecuteQuery(ctx, selectAll)
	require.NoError(t, err)
	_, dataset = repo.lastQuery()
	assert.Equal(t, []rdf.IRI{{Value: "http://example.org/g2"}}, dataset.DefaultGraphs)
}

func TestNoContextUsesRepositoryDefault(t *testing.T) {
	repo := peopleRepository()
	r := New(repo)

	_, ok := r.Context()
	assert.False(t, ok)
	_, err := r.ExecuteQuery(context.Background(), selectAll)
	require.NoError(t, err)
	_, dataset := repo.lastQuery()
	assert.True(t, dataset.IsZero())
}

func TestVerboseLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	repo := peopleRepository()
	r := New(repo, WithLogger(logger))
	ctx := context.Background()

	quiet, err := r.ExecuteQueryStringValue(ctx, selectAll)
	require.NoError(t, err)
	assert.Zero(t, buf.Len())

	r.SetVerbose(true)
	assert.True(t, r.Verbose())
	loud, err := r.ExecuteQueryStringValue(ctx, selectAll)
	require.NoError(t, err)
	assert.Equal(t, quiet, loud)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var before, after map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &before))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &after))

	assert.Equal(t, "query", before["msg"])
	assert.Equal(t, selectAll, before["query"])
	assert.Equal(t, "query executed", after["msg"])
	assert.Equal(t, before["query_id"], after["query_id"])
	assert.NotEmpty(t, after["query_id"])
	assert.Equal(t, float64(2), after["num_rows"])
	assert.Contains(t, after, "duration_ms")
}

func TestVerboseLoggingSkipsFailures(t *testing.T) {
	var buf bytes.Buffer
	repo := &fakeRepository{evalErr: &repository.QueryError{Query: "x", Offset: 0, Err: errors.New("bad")}}
	r := New(repo, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))), WithVerbose(true))

	_, err := r.ExecuteQueryStringValue(context.Background(), "x")
	assert.ErrorIs(t, err, repository.ErrQuery)
	assert.Contains(t, buf.String(), "msg=query")
	assert.NotContains(t, buf.String(), "query executed")
	assert.Equal(t, 1, repo.closed)
}

func TestExecuteErrors(t *testing.T) {
	r := New(&fakeRepository{connErr: repository.ErrConnectivity})
	_, err := r.ExecuteQueryStringValue(context.Background(), selectAll)
	assert.ErrorIs(t, err, repository.ErrConnectivity)

	repo := &fakeRepository{evalErr: repository.ErrConnectivity}
	r = New(repo)
	_, err = r.ExecuteQuery(context.Background(), selectAll)
	assert.ErrorIs(t, err, repository.ErrConnectivity)
	assert.Equal(t, repo.opened, repo.closed)
}

func TestSettingsSnapshotIsIsolated(t *testing.T) {
	r := New(&fakeRepository{}, WithQueryHeader("# h\n"), WithVerbose(true))
	snapshot := r.Settings()

	r.SetQueryHeader("# changed\n")
	r.SetVerbose(false)

	assert.Equal(t, "# h\n", snapshot.QueryHeader())
	assert.True(t, snapshot.Verbose())
	assert.Equal(t, "# changed\n", r.QueryHeader())
	assert.False(t, r.Verbose())
}

func TestConcurrentQueriesSeeWholeSnapshots(t *testing.T) {
	repo := &fakeRepository{names: []string{"s"}}
	r := New(repo)
	ctx := context.Background()

	const headerA = "# a\n"
	const headerB = "# b\n"
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if j%2 == 0 {
					r.SetQueryHeader(headerA)
				} else {
					r.SetQueryHeader(headerB)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := r.ExecuteQuery(ctx, selectAll)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for _, q := range repo.queries {
		ok := q == selectAll || q == headerA+selectAll || q == headerB+selectAll
		assert.True(t, ok, "unexpected query %q", q)
	}
	assert.Equal(t, repo.opened, repo.closed)
}

func TestShutDownDelegates(t *testing.T) {
	repo := &fakeRepository{}
	r := New(repo)
	assert.Same(t, repo, r.Repository())
	require.NoError(t, r.ShutDown())
	assert.ErrorIs(t, r.ShutDown(), repository.ErrClosed)
}

func newMemoryReader(t *testing.T, data string) *Reader {
	t.Helper()
	store, err := memory.Open(memory.InMemory)
	require.NoError(t, err)
	if data != "" {
		require.NoError(t, store.Load(context.Background(), strings.NewReader(data), rdf.FormatNQuads, nil))
	}
	r := New(store)
	t.Cleanup(func() { _ = r.ShutDown() })
	return r
}

func TestEmptyRepositoryYieldsZeroRows(t *testing.T) {
	r := newMemoryReader(t, "")

	rows, err := r.ExecuteQueryStringValue(context.Background(), selectAll)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestSingleTripleScenario(t *testing.T) {
	r := newMemoryReader(t, `<http://example.org/a> <http://example.org/p> "hello" .
<http://example.org/b> <http://example.org/q> "a < b" .
`)
	ctx := context.Background()
	r.SetQueryHeader("PREFIX ex: <http://example.org/>\n")

	rows, err := r.ExecuteQueryStringValue(ctx, "SELECT ?o WHERE { ex:a ex:p ?o }")
	require.NoError(t, err)
	hello := "hello"
	assert.Equal(t, []StringRow{{"o": &hello}}, rows)

	rows, err = r.ExecuteQueryStringValueXML(ctx, "SELECT ?o WHERE { ex:b ex:q ?o }")
	require.NoError(t, err)
	escaped := "a &lt; b"
	assert.Equal(t, []StringRow{{"o": &escaped}}, rows)
}

func TestSetContextStringBlankKeepsContext(t *testing.T) {
	r := New(peopleRepository(), WithContext(rdf.IRI{Value: "http://example.org/g1"}))

	for _, blank := range []string{"   ", "\t", " \n "} {
		require.NoError(t, r.SetContextString(blank))
		graph, ok := r.Context()
		assert.True(t, ok)
		assert.Equal(t, "http://example.org/g1", graph.Value)
	}
}

func TestExecuteQueryReportsCloseErrors(t *testing.T) {
	closeErr := errors.New("connection close failed")
	resultErr := errors.New("result close failed")
	ctx := context.Background()

	repo := peopleRepository()
	repo.closeErr = closeErr
	_, err := New(repo).ExecuteQuery(ctx, selectAll)
	assert.ErrorIs(t, err, closeErr)

	repo = peopleRepository()
	repo.resultErr = resultErr
	_, err = New(repo).ExecuteQuery(ctx, selectAll)
	assert.ErrorIs(t, err, resultErr)
	assert.Equal(t, 1, repo.closed)

	repo = peopleRepository()
	repo.closeErr = closeErr
	repo.resultErr = resultErr
	_, err = New(repo).ExecuteQuery(ctx, selectAll)
	assert.ErrorIs(t, err, resultErr, "first close error wins")
}

func TestContextScopingAgainstStore(t *testing.T) {
	r := newMemoryReader(t, `<http://example.org/s> <http://example.org/p> "in g1" <http://example.org/g1> .
<http://example.org/s> <http://example.org/p> "in g2" <http://example.org/g2> .
`)
	ctx := context.Background()
	query := "SELECT ?o WHERE { ?s ?p ?o } ORDER BY ?o"

	rows, err := r.ExecuteQueryStringValue(ctx, query)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	require.NoError(t, r.SetContextString("http://example.org/g2"))
	rows, err = r.ExecuteQueryStringValue(ctx, query)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "in g2", rows[0].Value("o"))

	require.NoError(t, r.SetContextString("http://example.org/elsewhere"))
	rows, err = r.ExecuteQueryStringValue(ctx, query)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
