package rdf

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

// DefaultMaxLineBytes bounds a single N-Triples/N-Quads line.
const DefaultMaxLineBytes = 1 << 20

// Decoder streams quads from an input. Next returns io.EOF when the input is
// exhausted.
type Decoder interface {
	Next() (Quad, error)
	Err() error
	Close() error
}

// Handler processes quads in push mode.
type Handler func(Quad) error

// Options configures decoding.
type Options struct {
	// Context for cancellation.
	Context context.Context
	// MaxLineBytes limits line-based formats; negative disables the limit.
	MaxLineBytes int
	// BaseIRI resolves relative IRIs in Turtle and JSON-LD documents.
	BaseIRI string
}

// Option configures decoding.
type Option func(*Options)

// OptContext sets the context for cancellation.
func OptContext(ctx context.Context) Option {
	return func(opts *Options) {
		opts.Context = ctx
	}
}

// OptMaxLineBytes sets the maximum line size limit.
func OptMaxLineBytes(maxBytes int) Option {
	return func(opts *Options) {
		opts.MaxLineBytes = maxBytes
	}
}

// OptBaseIRI sets the base IRI used by Turtle and JSON-LD decoding.
func OptBaseIRI(base string) Option {
	return func(opts *Options) {
		opts.BaseIRI = base
	}
}

func defaultOptions() Options {
	return Options{
		Context:      context.Background(),
		MaxLineBytes: DefaultMaxLineBytes,
	}
}

// NewDecoder creates a decoder for the given format.
func NewDecoder(r io.Reader, format Format, opts ...Option) (Decoder, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Context == nil {
		options.Context = context.Background()
	}
	switch format {
	case FormatNTriples, FormatNQuads:
		return newLineDecoder(&contextReader{ctx: options.Context, r: r}, format, options), nil
	case FormatTurtle:
		return newTurtleDecoder(options.Context, r, options)
	case FormatJSONLD:
		return newJSONLDDecoder(options.Context, r, options)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Parse decodes r and streams every quad to handler.
func Parse(ctx context.Context, r io.Reader, format Format, handler Handler, opts ...Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dec, err := NewDecoder(r, format, append(opts, OptContext(ctx))...)
	if err != nil {
		return err
	}
	defer dec.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		quad, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := handler(quad); err != nil {
			return err
		}
	}
}

// ParseFile decodes the file at path, inferring the format from its extension.
func ParseFile(ctx context.Context, path string, handler Handler, opts ...Option) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Parse(ctx, bufio.NewReader(f), format, handler, opts...)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	select {
	case <-c.ctx.Done():
		return 0, c.ctx.Err()
	default:
		return c.r.Read(p)
	}
}
