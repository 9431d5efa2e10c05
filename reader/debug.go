package reader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/geoknoesis/sparql-rows/results"
)

// DebugQuery runs the query stored at queryPath and writes the raw result as
// SPARQL TSV to destinationPath. The query header is not applied and nothing
// is logged or escaped; the context graph still applies. An empty or
// all-whitespace queryPath does nothing.
func (r *Reader) DebugQuery(ctx context.Context, queryPath, destinationPath string) (err error) {
	if strings.TrimSpace(queryPath) == "" {
		return nil
	}
	data, err := os.ReadFile(queryPath)
	if err != nil {
		return fmt.Errorf("reader: read query: %w", err)
	}
	out, err := os.Create(destinationPath)
	if err != nil {
		return fmt.Errorf("reader: create debug output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("reader: close debug output: %w", cerr)
		}
	}()

	conn, err := r.repo.Connection(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	result, err := conn.Evaluate(ctx, string(data), r.Settings().dataset())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := result.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := results.WriteTSV(out, result); err != nil {
		return fmt.Errorf("reader: write debug output: %w", err)
	}
	return nil
}
