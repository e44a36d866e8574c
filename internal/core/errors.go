package core

// errors.go defines the fatal conditions of the pipeline.
//
// Each type carries enough detail for a user to fix the source file: which
// file could not be read, or which columns are missing. The messages contain
// the lowercase phrases MapError matches on, so the web layer can attach a
// support code without inspecting the type.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoData is wrapped by EmptyTableError.
var ErrNoData = errors.New("empty file")

// SourceReadError reports a source that could not be read or parsed.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("unreadable source %q: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}

// EmptyTableError reports a table without data rows.
type EmptyTableError struct {
	Source string
}

func (e *EmptyTableError) Error() string {
	if e.Source == "" {
		return "empty file: table has no data rows"
	}
	return fmt.Sprintf("empty file: %q has no data rows", e.Source)
}

func (e *EmptyTableError) Unwrap() error {
	return ErrNoData
}

// SchemaError reports identifier columns missing from the header.
type SchemaError struct {
	Source  string
	Missing []string
}

func (e *SchemaError) Error() string {
	msg := "missing required columns: " + strings.Join(e.Missing, ", ")
	if e.Source != "" {
		msg = fmt.Sprintf("%s (in %q)", msg, e.Source)
	}
	return msg
}

// WithSource returns err annotated with the source name when it is one of
// the pipeline's fatal errors. Other errors are returned unchanged.
func WithSource(err error, source string) error {
	var empty *EmptyTableError
	if errors.As(err, &empty) && empty.Source == "" {
		return &EmptyTableError{Source: source}
	}
	var schema *SchemaError
	if errors.As(err, &schema) && schema.Source == "" {
		return &SchemaError{Source: source, Missing: schema.Missing}
	}
	return err
}

// IsFatal reports whether err is one of the pipeline's fatal conditions.
func IsFatal(err error) bool {
	var (
		read   *SourceReadError
		empty  *EmptyTableError
		schema *SchemaError
	)
	return errors.As(err, &read) || errors.As(err, &empty) || errors.As(err, &schema)
}
