package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// ErrorCode is a programmatic error code.
type ErrorCode string

const (
	ErrCodeQuery           ErrorCode = "QUERY_ERROR"
	ErrCodeConnectivity    ErrorCode = "CONNECTIVITY_ERROR"
	ErrCodeIO              ErrorCode = "IO_ERROR"
	ErrCodeClosed          ErrorCode = "CLOSED"
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	ErrCodeUnknown         ErrorCode = "UNKNOWN"
)

var (
	// ErrQuery marks malformed or unsupported query text.
	ErrQuery = errors.New("repository: query error")
	// ErrConnectivity marks a repository that cannot be reached or dropped
	// the connection mid-evaluation.
	ErrConnectivity = errors.New("repository: connectivity error")
	// ErrClosed is returned once a repository or connection has been shut down.
	ErrClosed = errors.New("repository: closed")
)

// QueryError describes a query the repository rejected.
type QueryError struct {
	Query  string
	Offset int // byte offset of the failure, -1 if unknown
	Err    error
}

func (e *QueryError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("query error at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("query error: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrQuery) hold for every QueryError.
func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// Code classifies err. It returns "" for nil.
func Code(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, ErrQuery):
		return ErrCodeQuery
	case errors.Is(err, ErrConnectivity):
		return ErrCodeConnectivity
	case errors.Is(err, ErrClosed):
		return ErrCodeClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeContextCanceled
	case errors.As(err, &pathErr):
		return ErrCodeIO
	}
	return ErrCodeUnknown
}
