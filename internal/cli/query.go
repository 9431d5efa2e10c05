package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Format  string
	Output  string
	XML     bool
	Columns string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <query-file>",
		Short: "Run a SELECT query and print its rows",
		Long: `Run a SPARQL SELECT query and print each row as lexical string values.

The query header and context are applied. Use "-" to read the query from
standard input.

Example:
  sparqlrows query --data people.nt names.rq
  sparqlrows query --endpoint http://localhost:7200 --repository wiki --format json names.rq`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "csv", "output format (csv|tsv|json)")
	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&opts.XML, "xml", false, "XML-escape every value")
	cmd.Flags().StringVar(&opts.Columns, "columns", "", "comma separated column order (default sorted)")

	return cmd
}

func readQuery(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func runQuery(opts *QueryOptions, path string, cmd *cobra.Command) (err error) {
	if !isValidOutputFormat(opts.Format) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidOutputFormats))
	}
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	query, err := readQuery(path, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read query", err)
	}

	ctx := cmd.Context()
	r, err := openReader(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if serr := r.ShutDown(); serr != nil {
			logger.Warn("shutdown failed", "error", serr)
		}
	}()

	execute := r.ExecuteQueryStringValue
	if opts.XML {
		execute = r.ExecuteQueryStringValueXML
	}
	rows, err := execute(ctx, query)
	if err != nil {
		return queryFailure(err)
	}

	w := cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = WrapExitError(ExitFailure, "failed to close output", cerr)
			}
		}()
		w = f
	}
	if err := writeRows(w, opts.Format, parseColumns(opts.Columns), rows); err != nil {
		return WrapExitError(ExitFailure, "failed to write rows", err)
	}
	return nil
}
