package formatters

import (
	"fmt"
	"io"
	"strings"

	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
)

// Format type constants
const (
	FormatXLSX    = "xlsx"
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// Parquet compression codecs
const (
	CompressionSnappy = "snappy"
	CompressionNone   = "none"
	CompressionZstd   = "zstd"
	CompressionGzip   = "gzip"
	CompressionLZ4    = "lz4"
)

// DefaultChunkRowLimit is the number of rows per columnar chunk file.
const DefaultChunkRowLimit = 5_000_000

// Options controls how a dataset is serialized.
type Options struct {
	// SheetName names the single worksheet of spreadsheet output.
	SheetName string
	// IncludeIndex prepends the zero-based row number as an unnamed column.
	IncludeIndex bool
	// Compression is the parquet codec: snappy, none, zstd, gzip or lz4.
	Compression string
	// ChunkRowLimit caps the rows of each columnar chunk file.
	ChunkRowLimit int
	// Separator is the delimited field separator.
	Separator rune
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		SheetName:     "Sheet1",
		Compression:   CompressionSnappy,
		ChunkRowLimit: DefaultChunkRowLimit,
		Separator:     ',',
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SheetName == "" {
		o.SheetName = def.SheetName
	}
	if o.Compression == "" {
		o.Compression = def.Compression
	}
	if o.ChunkRowLimit <= 0 {
		o.ChunkRowLimit = def.ChunkRowLimit
	}
	if o.Separator == 0 {
		o.Separator = def.Separator
	}
	return o
}

// Formatter defines the interface for output format handlers
type Formatter interface {
	// Write serializes the dataset to w, header row first.
	Write(w io.Writer, ds *dataset.Dataset) error

	// Extension returns the file extension for this format (e.g., ".xlsx", ".csv", ".parquet")
	Extension() string

	// MIMEType returns the MIME type for this format
	MIMEType() string
}

// NormalizeFormat lower-cases a format name and strips a leading dot.
func NormalizeFormat(format string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
}

// GetFormatter returns the formatter for format, or ErrUnsupportedFormat.
func GetFormatter(format string, opts Options) (Formatter, error) {
	opts = opts.withDefaults()
	switch NormalizeFormat(format) {
	case FormatXLSX:
		return NewXLSXFormatter(opts), nil
	case FormatCSV:
		return NewCSVFormatter(opts), nil
	case FormatParquet:
		return NewParquetFormatter(opts)
	default:
		return nil, fmt.Errorf("%w: %q (supported: xlsx, csv, parquet)", etlerr.ErrUnsupportedFormat, format)
	}
}

// header returns the header row, led by an unnamed index column when requested.
func header(ds *dataset.Dataset, includeIndex bool) []string {
	cols := ds.Columns()
	if !includeIndex {
		return cols
	}
	return append([]string{""}, cols...)
}
