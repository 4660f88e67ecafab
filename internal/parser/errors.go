package parser

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned by Registry.Select when no
// registered parser claims the input. Never retried.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ParseErrorKind classifies a parse failure for the worker's retry
// decision: only KindInternal is retryable.
type ParseErrorKind string

const (
	KindCorruptInput       ParseErrorKind = "corrupt_input"
	KindUnsupportedFeature ParseErrorKind = "unsupported_feature"
	KindInternal           ParseErrorKind = "internal"
)

type ParseError struct {
	Kind   ParseErrorKind
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s (%s): %v", e.Format, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func corruptInput(format string, err error) *ParseError {
	return &ParseError{Kind: KindCorruptInput, Format: format, Err: err}
}

func unsupportedFeature(format string, err error) *ParseError {
	return &ParseError{Kind: KindUnsupportedFeature, Format: format, Err: err}
}

func internalError(format string, err error) *ParseError {
	return &ParseError{Kind: KindInternal, Format: format, Err: err}
}
