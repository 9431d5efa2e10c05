package rdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrorCode is a programmatic error code for data loading failures.
type ErrorCode string

const (
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeLineTooLong       ErrorCode = "LINE_TOO_LONG"
	ErrCodeParseError        ErrorCode = "PARSE_ERROR"
	ErrCodeContextCanceled   ErrorCode = "CONTEXT_CANCELED"
)

var (
	// ErrUnsupportedFormat indicates an unsupported format.
	ErrUnsupportedFormat = errors.New("unsupported RDF format")
	// ErrLineTooLong indicates a line exceeded the configured limit.
	ErrLineTooLong = errors.New("rdf: line exceeds configured limit")
)

// Code returns the error code for an error, or ErrCodeParseError if unknown.
// Returns empty string for nil errors or io.EOF.
func Code(err error) ErrorCode {
	if err == nil || err == io.EOF {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return ErrCodeUnsupportedFormat
	case errors.Is(err, ErrLineTooLong):
		return ErrCodeLineTooLong
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeContextCanceled
	}
	return ErrCodeParseError
}

// ParseError provides structured context for parse failures.
type ParseError struct {
	Format    string // Format name (e.g., "ntriples", "jsonld")
	Statement string // Offending statement or input excerpt
	Line      int    // 1-based line number (0 if unknown)
	Column    int    // 1-based column number (0 if unknown)
	Err       error  // Underlying error
}

func (e *ParseError) Error() string {
	var msg strings.Builder
	msg.WriteString(e.Format)
	if e.Line > 0 {
		if e.Column > 0 {
			fmt.Fprintf(&msg, ":%d:%d", e.Line, e.Column)
		} else {
			fmt.Fprintf(&msg, ":%d", e.Line)
		}
	}
	msg.WriteString(": ")
	msg.WriteString(e.Err.Error())
	if e.Statement != "" {
		msg.WriteString("\n  ")
		msg.WriteString(excerpt(e.Statement, e.Column))
	}
	return msg.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// excerpt trims a statement to a window around column and adds a caret.
func excerpt(statement string, column int) string {
	const maxExcerptLen = 80
	const contextLen = 40

	if column <= 0 {
		if len(statement) > maxExcerptLen {
			return statement[:maxExcerptLen] + "..."
		}
		return statement
	}

	pos := column - 1
	start := max(pos-contextLen, 0)
	end := min(pos+contextLen, len(statement))
	if start > end {
		start = end
	}
	out := statement[start:end]
	caret := pos - start
	if start > 0 {
		out = "..." + out
		caret += 3
	}
	if end < len(statement) {
		out += "..."
	}
	caret = max(min(caret, len(out)-1), 0)
	return out + "\n  " + strings.Repeat(" ", caret) + "^"
}
