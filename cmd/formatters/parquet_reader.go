package formatters

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
)

// parquetReadBatch is the number of rows requested per ReadRows call
const parquetReadBatch = 1000

// ReadParquetFile opens path and reads every row.
func ReadParquetFile(path string) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return ReadParquet(f, info.Size())
}

// ReadParquet reads every row group of a Parquet file into a dataset.
// Columns appear in schema order; timestamp columns are returned as time.Time.
func ReadParquet(r io.ReaderAt, size int64) (*dataset.Dataset, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open parquet file: %w", etlerr.ErrParse, err)
	}

	schema := file.Schema()
	columnPaths := schema.Columns()

	// Use the last path component as the column name
	columnNames := make([]string, len(columnPaths))
	toTime := make([]func(int64) time.Time, len(columnPaths))
	for i, path := range columnPaths {
		if len(path) > 0 {
			columnNames[i] = path[len(path)-1]
		}
		if leaf, ok := schema.Lookup(path...); ok {
			toTime[i] = timestampDecoder(leaf.Node.Type().LogicalType())
		}
	}

	ds, err := dataset.New(columnNames...)
	if err != nil {
		return nil, err
	}

	for _, rowGroup := range file.RowGroups() {
		if err := readRowGroup(rowGroup, ds, toTime); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func readRowGroup(rowGroup parquet.RowGroup, ds *dataset.Dataset, toTime []func(int64) time.Time) error {
	rowReader := rowGroup.Rows()
	defer rowReader.Close()

	batch := make([]parquet.Row, parquetReadBatch)
	width := len(toTime)
	for {
		n, err := rowReader.ReadRows(batch)
		for _, parquetRow := range batch[:n] {
			values := make([]any, width)
			for _, val := range parquetRow {
				col := val.Column()
				if col < 0 || col >= width || val.IsNull() {
					continue
				}
				values[col] = parquetValue(val, toTime[col])
			}
			if appendErr := ds.Append(values...); appendErr != nil {
				return appendErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read parquet rows: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

// parquetValue converts a parquet.Value to a dataset cell based on its kind
func parquetValue(val parquet.Value, toTime func(int64) time.Time) any {
	switch val.Kind() {
	case parquet.Boolean:
		return val.Boolean()
	case parquet.Int32:
		return int64(val.Int32())
	case parquet.Int64:
		if toTime != nil {
			return toTime(val.Int64())
		}
		return val.Int64()
	case parquet.Float:
		return float64(val.Float())
	case parquet.Double:
		return val.Double()
	default:
		return string(val.ByteArray())
	}
}

func timestampDecoder(lt *format.LogicalType) func(int64) time.Time {
	if lt == nil || lt.Timestamp == nil {
		return nil
	}
	unit := lt.Timestamp.Unit
	switch {
	case unit.Micros != nil:
		return func(v int64) time.Time { return time.UnixMicro(v).UTC() }
	case unit.Nanos != nil:
		return func(v int64) time.Time { return time.Unix(0, v).UTC() }
	default:
		return func(v int64) time.Time { return time.UnixMilli(v).UTC() }
	}
}
