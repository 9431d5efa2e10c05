// Package cli implements the sparqlrows command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geoknoesis/sparql-rows/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Endpoint   string
	Repository string
	DB         string
	Data       []string
	Context    string
	HeaderFile string
	Verbose    bool
	LogFormat  string

	// loadConfig is replaced in tests.
	loadConfig func(path string) (*config.Config, string, error)
}

// ValidLogFormats defines the allowed log formats.
var ValidLogFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sparqlrows CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{loadConfig: config.Load})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sparqlrows",
		Short: "Run SPARQL queries and get rows of strings",
		Long: `sparqlrows runs SPARQL SELECT queries against a remote SPARQL endpoint or an
embedded store and returns the results as rows of plain strings, ready to feed
text-generation templates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.LogFormat != "" && !isValidLogFormat(opts.LogFormat) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid log format %q: must be one of %v", opts.LogFormat, ValidLogFormats))
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "config file (default $SPARQLROWS_CONFIG or ./sparqlrows.yaml)")
	flags.StringVar(&opts.Endpoint, "endpoint", "", "remote SPARQL server address")
	flags.StringVar(&opts.Repository, "repository", "", "repository id on the remote server")
	flags.StringVar(&opts.DB, "db", "", "embedded store file (default in-memory)")
	flags.StringSliceVar(&opts.Data, "data", nil, "RDF files to load into the embedded store")
	flags.StringVar(&opts.Context, "context", "", "named graph IRI queries are restricted to")
	flags.StringVar(&opts.HeaderFile, "header-file", "", "file prepended to every query (PREFIX declarations)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "log queries and timings")
	flags.StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")

	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewDebugCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func isValidLogFormat(format string) bool {
	for _, f := range ValidLogFormats {
		if f == format {
			return true
		}
	}
	return false
}

// usageArgs marks argument validation failures as command errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return WrapExitError(ExitCommandError, "invalid arguments", err)
		}
		return nil
	}
}

// resolve loads the configuration and applies flags set on cmd over it.
func (o *RootOptions) resolve(cmd *cobra.Command) (*config.Config, error) {
	load := o.loadConfig
	if load == nil {
		load = config.Load
	}
	cfg, _, err := load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		cfg.Endpoint = o.Endpoint
	}
	if flags.Changed("repository") {
		cfg.Repository = o.Repository
	}
	if flags.Changed("db") {
		cfg.DB = o.DB
	}
	if flags.Changed("data") {
		cfg.Data = o.Data
	}
	if flags.Changed("context") {
		cfg.Context = o.Context
	}
	if flags.Changed("header-file") {
		cfg.HeaderFile = o.HeaderFile
	}
	if flags.Changed("verbose") {
		cfg.Verbose = o.Verbose
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.LogFormat
	}
	return cfg, nil
}
