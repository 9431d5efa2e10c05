package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/geoknoesis/sparql-rows/internal/config"
	"github.com/geoknoesis/sparql-rows/reader"
	"github.com/geoknoesis/sparql-rows/repository"
	"github.com/geoknoesis/sparql-rows/repository/memory"
	"github.com/geoknoesis/sparql-rows/repository/sparqlhttp"
)

// newLogger builds the process logger on w. Verbose lowers the level to debug.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// openRepository connects to the configured remote endpoint, or opens the
// embedded store and loads the configured data files into it.
func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Repository, error) {
	if cfg.Remote() {
		opts := []sparqlhttp.Option{sparqlhttp.WithLogger(logger)}
		if cfg.Timeout != "" {
			timeout, err := time.ParseDuration(cfg.Timeout)
			if err != nil {
				return nil, WrapExitError(ExitCommandError, "invalid timeout", err)
			}
			opts = append(opts, sparqlhttp.WithTimeout(timeout))
		}
		if cfg.Username != "" {
			opts = append(opts, sparqlhttp.WithBasicAuth(cfg.Username, cfg.Password))
		}
		repo, err := sparqlhttp.New(cfg.Endpoint, cfg.Repository, opts...)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid endpoint", err)
		}
		logger.Debug("using remote repository", "endpoint", repo.Endpoint())
		return repo, nil
	}

	store, err := memory.Open(cfg.DB, memory.WithLogger(logger), memory.WithBaseIRI(cfg.BaseIRI))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	for _, path := range cfg.Data {
		if err := store.LoadFile(ctx, path, nil); err != nil {
			_ = store.ShutDown()
			return nil, WrapExitError(ExitCommandError, "failed to load data", err)
		}
	}
	logger.Debug("using embedded store", "db", cfg.DB, "files", len(cfg.Data))
	return store, nil
}

// openReader builds a reader with the configured header, context and
// verbosity. The caller must shut it down.
func openReader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*reader.Reader, error) {
	header, err := cfg.Header()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read query header", err)
	}
	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	r := reader.New(repo,
		reader.WithLogger(logger),
		reader.WithQueryHeader(header),
		reader.WithVerbose(cfg.Verbose),
	)
	if err := r.SetContextString(cfg.Context); err != nil {
		_ = r.ShutDown()
		return nil, WrapExitError(ExitCommandError, "invalid context", err)
	}
	return r, nil
}

// queryFailure wraps an error from query execution with its code.
func queryFailure(err error) error {
	return WrapExitError(ExitFailure, fmt.Sprintf("query failed [%s]", repository.Code(err)), err)
}
