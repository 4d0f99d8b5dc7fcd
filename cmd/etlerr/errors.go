// Package etlerr defines the error kinds shared by the extract and load
// pipelines and maps them to process exit codes.
package etlerr

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Callers wrap these with fmt.Errorf("%w: ...") and test them
// with errors.Is.
var (
	ErrConnection        = errors.New("database connection failed")
	ErrQuery             = errors.New("query failed")
	ErrTableNotFound     = errors.New("table not found")
	ErrColumnNotFound    = errors.New("column not found")
	ErrMalformedDate     = errors.New("malformed date")
	ErrParse             = errors.New("parse error")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrInsert            = errors.New("insert failed")
)

// Exit codes returned by the CLI for each error kind.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitConnection        = 3
	ExitTableNotFound     = 4
	ExitColumnNotFound    = 5
	ExitMalformedDate     = 6
	ExitParse             = 7
	ExitUnsupportedFormat = 8
	ExitInsert            = 9
	ExitQuery             = 10
	ExitCancelled         = 130
)

// ParseError reports a malformed input file location. Line and Column are
// 1-based; Column is 0 when the position inside the line is unknown.
type ParseError struct {
	File   string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	loc := fmt.Sprintf("line %d", e.Line)
	if e.Column > 0 {
		loc += fmt.Sprintf(", column %d", e.Column)
	}
	if e.File != "" {
		loc = e.File + ": " + loc
	}
	return fmt.Sprintf("%s: %s: %v", ErrParse.Error(), loc, e.Err)
}

// Unwrap exposes both ErrParse and the underlying cause.
func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// exitCodes is checked in order; the first matching kind wins.
var exitCodes = []struct {
	kind error
	code int
}{
	{context.Canceled, ExitCancelled},
	{ErrConnection, ExitConnection},
	{ErrTableNotFound, ExitTableNotFound},
	{ErrInsert, ExitInsert},
	{ErrColumnNotFound, ExitColumnNotFound},
	{ErrMalformedDate, ExitMalformedDate},
	{ErrParse, ExitParse},
	{ErrUnsupportedFormat, ExitUnsupportedFormat},
	{ErrQuery, ExitQuery},
}

// ExitCode maps an error to the process exit code for its kind.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, ec := range exitCodes {
		if errors.Is(err, ec.kind) {
			return ec.code
		}
	}
	return ExitFailure
}

// Kind returns a short label for the error kind, used in log attributes.
func Kind(err error) string {
	switch ExitCode(err) {
	case ExitOK:
		return ""
	case ExitCancelled:
		return "cancelled"
	case ExitConnection:
		return "connection"
	case ExitTableNotFound:
		return "table_not_found"
	case ExitInsert:
		return "insert"
	case ExitColumnNotFound:
		return "column_not_found"
	case ExitMalformedDate:
		return "malformed_date"
	case ExitParse:
		return "parse"
	case ExitUnsupportedFormat:
		return "unsupported_format"
	case ExitQuery:
		return "query"
	default:
		return "internal"
	}
}
