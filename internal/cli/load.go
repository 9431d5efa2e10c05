package cli

import (
	"github.com/spf13/cobra"

	"github.com/geoknoesis/sparql-rows/rdf"
	"github.com/geoknoesis/sparql-rows/repository/memory"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Graph string
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <file>...",
		Short: "Load RDF files into a persistent embedded store",
		Long: `Load Turtle (.ttl), N-Triples (.nt), N-Quads (.nq) or JSON-LD (.jsonld, .json)
files into the embedded store named by --db. Duplicate statements are ignored.

Example:
  sparqlrows load --db wiki.db people.nt places.jsonld
  sparqlrows load --db wiki.db --graph http://example.org/g1 extra.nt`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Graph, "graph", "", "load every statement into this named graph")

	return cmd
}

func runLoad(opts *LoadOptions, files []string, cmd *cobra.Command) error {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	if cfg.DB == "" {
		return NewExitError(ExitCommandError, "--db is required")
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	var graph rdf.Term
	if opts.Graph != "" {
		iri, err := rdf.ParseIRI(opts.Graph)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid graph", err)
		}
		graph = iri
	}

	store, err := memory.Open(cfg.DB, memory.WithLogger(logger), memory.WithBaseIRI(cfg.BaseIRI))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer store.ShutDown()

	ctx := cmd.Context()
	for _, path := range files {
		if err := store.LoadFile(ctx, path, graph); err != nil {
			return WrapExitError(ExitFailure, "failed to load data", err)
		}
		logger.Info("loaded", "file", path)
	}
	size, err := store.Size(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count statements", err)
	}
	logger.Info("store ready", "db", cfg.DB, "statements", size)
	return nil
}
