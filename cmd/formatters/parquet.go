package formatters

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
)

// ErrCompressionInvalid is returned for an unknown parquet codec
var ErrCompressionInvalid = errors.New("parquet compression must be one of: snappy, none, zstd, gzip, lz4")

// ErrDuplicateColumn is returned when two columns map to the same parquet field
var ErrDuplicateColumn = errors.New("duplicate parquet column name")

// parquetBatchRows is the number of rows handed to the writer per call.
const parquetBatchRows = 10_000

// ParquetFormatter handles Parquet format output
type ParquetFormatter struct {
	compression string
	codec       parquet.WriterOption

	// pinned column kinds, shared by every file written
	columns []string
	kinds   []columnKind
}

// NewParquetFormatter creates a Parquet formatter with the codec from opts
func NewParquetFormatter(opts Options) (*ParquetFormatter, error) {
	opts = opts.withDefaults()

	// Map compression type to parquet compression codec
	var codec parquet.WriterOption
	switch opts.Compression {
	case CompressionSnappy:
		codec = parquet.Compression(&parquet.Snappy)
	case CompressionNone:
		codec = parquet.Compression(&parquet.Uncompressed)
	case CompressionZstd:
		codec = parquet.Compression(&parquet.Zstd)
	case CompressionGzip:
		codec = parquet.Compression(&parquet.Gzip)
	case CompressionLZ4:
		codec = parquet.Compression(&parquet.Lz4Raw)
	default:
		return nil, fmt.Errorf("%w: got %q", ErrCompressionInvalid, opts.Compression)
	}

	return &ParquetFormatter{compression: opts.Compression, codec: codec}, nil
}

// PinSchema resolves the column types over all of ds and uses them for every
// later Write of a dataset with the same columns, so that the chunks of one
// dataset share a schema.
func (f *ParquetFormatter) PinSchema(ds *dataset.Dataset) {
	f.columns = ds.Columns()
	f.kinds = resolveKinds(ds)
}

func (f *ParquetFormatter) kindsFor(ds *dataset.Dataset) []columnKind {
	if f.kinds != nil && slices.Equal(f.columns, ds.Columns()) {
		return f.kinds
	}
	return resolveKinds(ds)
}

// Write converts the dataset to a single Parquet file
func (f *ParquetFormatter) Write(w io.Writer, ds *dataset.Dataset) error {
	columns := ds.Columns()
	kinds := f.kindsFor(ds)
	schema, err := buildSchema(columns, kinds)
	if err != nil {
		return err
	}

	writer := parquet.NewWriter(w, schema, f.codec)

	batch := make([]parquet.Row, 0, min(ds.Len(), parquetBatchRows))
	for i := 0; i < ds.Len(); i++ {
		cells := ds.Row(i)
		row := make(parquet.Row, len(columns))
		for j := range columns {
			if cells[j] == nil {
				row[j] = parquet.Value{}.Level(0, 0, j)
				continue
			}
			row[j] = parquet.ValueOf(kinds[j].convert(cells[j])).Level(0, 1, j)
		}
		batch = append(batch, row)

		if len(batch) == parquetBatchRows {
			if _, err := writer.WriteRows(batch); err != nil {
				return fmt.Errorf("failed to write parquet rows: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if _, err := writer.WriteRows(batch); err != nil {
			return fmt.Errorf("failed to write parquet rows: %w", err)
		}
	}

	// Close writer to flush data and the footer
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// Extension returns the file extension for Parquet files
func (f *ParquetFormatter) Extension() string {
	return ".parquet"
}

// MIMEType returns the MIME type for Parquet
func (f *ParquetFormatter) MIMEType() string {
	return "application/vnd.apache.parquet"
}

type columnKind int

const (
	kindString columnKind = iota
	kindInt
	kindFloat
	kindBool
	kindTime
)

// resolveKinds scans every value of each column. Mixed int and float columns
// become float; any other mix falls back to string.
func resolveKinds(ds *dataset.Dataset) []columnKind {
	n := len(ds.Columns())
	seen := make([]map[columnKind]bool, n)
	for j := range seen {
		seen[j] = make(map[columnKind]bool)
	}
	for i := 0; i < ds.Len(); i++ {
		for j, v := range ds.Row(i) {
			switch v.(type) {
			case nil:
			case int64:
				seen[j][kindInt] = true
			case float64:
				seen[j][kindFloat] = true
			case bool:
				seen[j][kindBool] = true
			case time.Time:
				seen[j][kindTime] = true
			default:
				seen[j][kindString] = true
			}
		}
	}

	kinds := make([]columnKind, n)
	for j, s := range seen {
		switch {
		case len(s) == 1 && s[kindInt]:
			kinds[j] = kindInt
		case len(s) == 1 && s[kindFloat], len(s) == 2 && s[kindInt] && s[kindFloat]:
			kinds[j] = kindFloat
		case len(s) == 1 && s[kindBool]:
			kinds[j] = kindBool
		case len(s) == 1 && s[kindTime]:
			kinds[j] = kindTime
		default:
			// all-null columns default to string
			kinds[j] = kindString
		}
	}
	return kinds
}

// goType is the Go field type the schema is derived from, with the extra
// struct tag options it needs.
func (k columnKind) goType() (reflect.Type, string) {
	switch k {
	case kindInt:
		return reflect.TypeOf(int64(0)), ""
	case kindFloat:
		return reflect.TypeOf(float64(0)), ""
	case kindBool:
		return reflect.TypeOf(false), ""
	case kindTime:
		return reflect.TypeOf(int64(0)), ",timestamp(millisecond)"
	default:
		return reflect.TypeOf(""), ""
	}
}

func (k columnKind) convert(v any) any {
	if v == nil {
		return nil
	}
	switch k {
	case kindFloat:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
		return v
	case kindTime:
		return v.(time.Time).UnixMilli()
	case kindString:
		return dataset.FormatValue(v)
	default:
		return v
	}
}

// buildSchema creates a Parquet schema with one optional leaf per column, in
// dataset order. parquet.Group sorts its fields by name, so the schema is
// derived from a struct type built at runtime instead.
func buildSchema(columns []string, kinds []columnKind) (*parquet.Schema, error) {
	fields := make([]reflect.StructField, len(columns))
	seen := make(map[string]bool, len(columns))
	for j, col := range columns {
		// a comma would end the name inside the struct tag
		name := strings.ReplaceAll(col, ",", "_")
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		seen[name] = true

		typ, extra := kinds[j].goType()
		fields[j] = reflect.StructField{
			Name: "F" + strconv.Itoa(j),
			Type: typ,
			Tag:  reflect.StructTag("parquet:" + strconv.Quote(name+",optional"+extra)),
		}
	}
	model := reflect.New(reflect.StructOf(fields)).Elem().Interface()
	return parquet.NewSchema("oracle_etl_export", parquet.SchemaOf(model)), nil
}
