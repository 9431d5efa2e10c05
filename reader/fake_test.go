package reader

import (
	"context"
	"sync"

	"github.com/geoknoesis/sparql-rows/repository"
)

// fakeRepository records what the reader submits and replays canned rows.
type fakeRepository struct {
	mu        sync.Mutex
	names     []string
	rows      []repository.BindingSet
	evalErr   error
	connErr   error
	closeErr  error
	resultErr error
	queries   []string
	datasets  []repository.Dataset
	opened    int
	closed    int
	shutdowns int
}

func (f *fakeRepository) Connection(ctx context.Context) (repository.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connErr != nil {
		return nil, f.connErr
	}
	f.opened++
	return &fakeConnection{repo: f}, nil
}

func (f *fakeRepository) ShutDown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	if f.shutdowns > 1 {
		return repository.ErrClosed
	}
	return nil
}

func (f *fakeRepository) lastQuery() (string, repository.Dataset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1], f.datasets[len(f.datasets)-1]
}

type fakeConnection struct {
	repo *fakeRepository
}

func (c *fakeConnection) Evaluate(ctx context.Context, query string, dataset repository.Dataset) (repository.TupleResult, error) {
	f := c.repo
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.datasets = append(f.datasets, dataset)
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	rows := make([]repository.BindingSet, len(f.rows))
	for i, row := range f.rows {
		clone := make(repository.BindingSet, len(row))
		for k, v := range row {
			clone[k] = v
		}
		rows[i] = clone
	}
	result := repository.NewSliceResult(f.names, rows)
	if f.resultErr != nil {
		return &failingCloseResult{SliceResult: result, err: f.resultErr}, nil
	}
	return result, nil
}

func (c *fakeConnection) Close() error {
	c.repo.mu.Lock()
	defer c.repo.mu.Unlock()
	c.repo.closed++
	return c.repo.closeErr
}

// failingCloseResult replays rows but reports err from Close.
type failingCloseResult struct {
	*repository.SliceResult
	err error
}

func (r *failingCloseResult) Close() error { return r.err }
