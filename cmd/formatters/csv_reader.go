package formatters

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
)

var (
	ErrEmptyInput  = errors.New("input has no header row")
	ErrInvalidUTF8 = errors.New("invalid UTF-8")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// numericPattern matches plain decimal numbers. Values with leading zeros
// such as part numbers are left as strings.
var (
	numericPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	leadingZero    = regexp.MustCompile(`^[+-]?0\d`)
)

// ReadOptions controls delimited parsing.
type ReadOptions struct {
	// Separator between fields; defaults to ','.
	Separator rune
	// InferTypes converts numeric, boolean and timestamp text into typed cells.
	InferTypes bool
	// Name is the source name used in parse errors.
	Name string
}

// ReadDelimited parses UTF-8 delimited text with a header row. Empty fields
// become null cells. Malformed input yields an *etlerr.ParseError.
func ReadDelimited(r io.Reader, opts ReadOptions) (*dataset.Dataset, error) {
	if opts.Separator == 0 {
		opts.Separator = ','
	}

	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.Comma = opts.Separator
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &etlerr.ParseError{File: opts.Name, Line: 1, Err: ErrEmptyInput}
	}
	if err != nil {
		return nil, toParseError(opts.Name, err)
	}
	for j, h := range headers {
		if !utf8.ValidString(h) {
			return nil, &etlerr.ParseError{File: opts.Name, Line: 1, Column: j + 1, Err: ErrInvalidUTF8}
		}
	}

	ds, err := dataset.New(headers...)
	if err != nil {
		return nil, &etlerr.ParseError{File: opts.Name, Line: 1, Err: err}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, toParseError(opts.Name, err)
		}

		row := make([]any, len(record))
		for j, value := range record {
			if !utf8.ValidString(value) {
				line, col := reader.FieldPos(j)
				return nil, &etlerr.ParseError{File: opts.Name, Line: line, Column: col, Err: ErrInvalidUTF8}
			}
			if opts.InferTypes {
				row[j] = convertValue(value)
			} else if value != "" {
				row[j] = value
			}
		}
		if err := ds.Append(row...); err != nil {
			line, _ := reader.FieldPos(0)
			return nil, &etlerr.ParseError{File: opts.Name, Line: line, Err: err}
		}
	}

	return ds, nil
}

func toParseError(name string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &etlerr.ParseError{File: name, Line: pe.Line, Column: pe.Column, Err: pe.Err}
	}
	return fmt.Errorf("failed to read delimited input: %w", err)
}

// convertValue attempts to convert a string value to an appropriate type
func convertValue(value string) any {
	if value == "" {
		return nil
	}

	if numericPattern.MatchString(value) && !leadingZero.MatchString(value) {
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intVal
		}
		// integers beyond int64 keep every digit as text
		if errors.Is(err, strconv.ErrRange) {
			return value
		}
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}

	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}

	// Try timestamp formats
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}

	// Default to string
	return value
}
