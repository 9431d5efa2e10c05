package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoknoesis/sparql-rows/internal/config"
)

func TestQueryCSV(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "people.nt", peopleNT)
	q := writeFile(t, dir, "names.rq", namesQuery)

	stdout, _, err := execute(t, nil, "query", "--data", data, q)
	require.NoError(t, err)
	assert.Equal(t, "name\nAlice\nBob & Co\n", stdout)
}

func TestQueryTSVToFile(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "people.nt", peopleNT)
	q := writeFile(t, dir, "names.rq", namesQuery)
	out := filepath.Join(dir, "names.tsv")

	stdout, _, err := execute(t, nil, "query", "--data", data, "--format", "tsv", "--out", out, q)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "name\nAlice\nBob & Co\n", string(written))
}

func TestQueryJSONWithHeaderAndXML(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "people.nt", peopleNT)
	header := writeFile(t, dir, "header.rq", "PREFIX foaf: <http://xmlns.com/foaf/0.1/>\n")
	q := writeFile(t, dir, "people.rq", `SELECT ?name ?age WHERE {
	?p foaf:name ?name
	OPTIONAL { ?p foaf:age ?age }
} ORDER BY ?name`)

	stdout, _, err := execute(t, nil, "query",
		"--data", data, "--header-file", header,
		"--format", "json", "--xml", "--columns", "?name,age", q)
	require.NoError(t, err)

	var rows []map[string]*string
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Alice", *rows[0]["name"])
	assert.Equal(t, "30", *rows[0]["age"])
	assert.Equal(t, "Bob &amp; Co", *rows[1]["name"])
	age, present := rows[1]["age"]
	assert.True(t, present)
	assert.Nil(t, age)
}

func TestQueryFromStdinWithConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Data = []string{writeFile(t, dir, "people.nt", peopleNT)}
	cfg.QueryHeader = "PREFIX foaf: <http://xmlns.com/foaf/0.1/>\n"

	cmd := newRootCommand(&RootOptions{loadConfig: staticConfig(cfg)})
	var stdout strings.Builder
	cmd.SetOut(&stdout)
	cmd.SetErr(&strings.Builder{})
	cmd.SetIn(strings.NewReader(`SELECT ?age WHERE { ?p foaf:age ?age }`))
	cmd.SetArgs([]string{"query", "-"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "age\n30\n", stdout.String())
}

func TestQueryVerboseLogsToStderr(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "people.nt", peopleNT)
	q := writeFile(t, dir, "names.rq", namesQuery)

	_, stderr, err := execute(t, nil, "query", "-v", "--log-format", "json", "--data", data, q)
	require.NoError(t, err)
	assert.Contains(t, stderr, `"msg":"query executed"`)
	assert.Contains(t, stderr, `"num_rows":2`)
}

func TestQueryContextFlag(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "people.nq", `<http://example.org/a> <http://example.org/p> "one" <http://example.org/g1> .
<http://example.org/b> <http://example.org/p> "two" <http://example.org/g2> .
`)
	q := writeFile(t, dir, "q.rq", `SELECT ?o WHERE { ?s <http://example.org/p> ?o }`)

	stdout, _, err := execute(t, nil, "query", "--data", data, "--context", "http://example.org/g2", q)
	require.NoError(t, err)
	assert.Equal(t, "o\ntwo\n", stdout)

	_, _, err = execute(t, nil, "query", "--data", data, "--context", "not an iri", q)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid context")
}

func TestQueryErrors(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "people.nt", peopleNT)
	bad := writeFile(t, dir, "bad.rq", `SELECT ?s WHERE { ?s ?p ?o FILTER(?o) }`)
	good := writeFile(t, dir, "good.rq", namesQuery)

	tests := []struct {
		name string
		args []string
		code int
		text string
	}{
		{"query error", []string{"query", "--data", data, bad}, ExitFailure, "query failed [QUERY_ERROR]"},
		{"bad format", []string{"query", "--format", "xml", good}, ExitCommandError, "invalid format"},
		{"missing query file", []string{"query", filepath.Join(dir, "absent.rq")}, ExitCommandError, "failed to read query"},
		{"missing data file", []string{"query", "--data", filepath.Join(dir, "absent.nt"), good}, ExitCommandError, "failed to load data"},
		{"unknown data format", []string{"query", "--data", writeFile(t, dir, "data.csv", "a,b"), good}, ExitCommandError, "failed to load data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, nil, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.text)
		})
	}
}
