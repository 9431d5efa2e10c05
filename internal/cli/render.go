package cli

import (
	"context"
	"os"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/geoknoesis/sparql-rows/reader"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Output string
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Execute a text template that runs queries",
		Long: `Execute a Go text/template whose actions query the repository.

Template functions:
  query "SELECT ..."       rows of lexical values
  queryXML "SELECT ..."    rows with every value XML escaped
  value $row "name" "def"  the value of a column, or a default when unbound

Example:
  {{range query "SELECT ?name WHERE { ?s ex:name ?name } ORDER BY ?name"}}
  - {{value . "name"}}
  {{end}}`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "output file (default stdout)")

	return cmd
}

// templateFuncs binds query functions to r.
func templateFuncs(ctx context.Context, r *reader.Reader) template.FuncMap {
	return template.FuncMap{
		"query": func(q string) ([]reader.StringRow, error) {
			return r.ExecuteQueryStringValue(ctx, q)
		},
		"queryXML": func(q string) ([]reader.StringRow, error) {
			return r.ExecuteQueryStringValueXML(ctx, q)
		},
		"value": func(row reader.StringRow, name string, fallback ...string) string {
			return row.Value(name, fallback...)
		},
	}
}

func runRender(opts *RenderOptions, path string, cmd *cobra.Command) (err error) {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	text, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read template", err)
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

	tmpl, err := template.New(filepath.Base(path)).Funcs(templateFuncs(ctx, r)).Parse(string(text))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse template", err)
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
	if err := tmpl.Execute(w, cfg); err != nil {
		return WrapExitError(ExitFailure, "failed to render template", err)
	}
	return nil
}
