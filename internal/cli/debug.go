package cli

import (
	"github.com/spf13/cobra"
)

// NewDebugCommand creates the debug command.
func NewDebugCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug <query-file> <dest.tsv>",
		Short: "Write the raw result of a query as SPARQL TSV",
		Long: `Run a query file as-is and write the raw result table to a TSV file.

The query header is not applied and values are not converted, so the output
shows exactly what the repository returns. The context still applies.`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDebug(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runDebug(opts *RootOptions, queryPath, destPath string, cmd *cobra.Command) error {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

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

	if err := r.DebugQuery(ctx, queryPath, destPath); err != nil {
		return queryFailure(err)
	}
	logger.Info("debug output written", "query", queryPath, "dest", destPath)
	return nil
}
