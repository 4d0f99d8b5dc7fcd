// Package dataset holds an in-memory table of named columns and rows.
//
// Cell values are one of nil, string, int64, float64, bool or time.Time.
// Every transformation preserves row order unless it filters rows.
package dataset

import (
	"errors"
	"fmt"
	"time"

	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
)

var (
	ErrDuplicateColumn = errors.New("duplicate column name")
	ErrRowWidth        = errors.New("row width does not match column count")
)

// Dataset is a row-major table with ordered, unique column names.
type Dataset struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New creates an empty dataset with the given columns.
func New(columns ...string) (*Dataset, error) {
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if _, dup := index[col]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, col)
		}
		index[col] = i
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Dataset{columns: cols, index: index}, nil
}

// FromRecords builds a dataset from column names and rows. Rows are not copied.
func FromRecords(columns []string, rows [][]any) (*Dataset, error) {
	ds, err := New(columns...)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrRowWidth, i, len(row), len(columns))
		}
		for j, v := range row {
			row[j] = Normalize(v)
		}
	}
	ds.rows = rows
	return ds, nil
}

// Append adds one row. Values are normalized to the supported cell types.
func (d *Dataset) Append(values ...any) error {
	if len(values) != len(d.columns) {
		return fmt.Errorf("%w: got %d values, want %d", ErrRowWidth, len(values), len(d.columns))
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = Normalize(v)
	}
	d.rows = append(d.rows, row)
	return nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.rows) }

// Columns returns a copy of the column names in order.
func (d *Dataset) Columns() []string {
	cols := make([]string, len(d.columns))
	copy(cols, d.columns)
	return cols
}

// Has reports whether the column exists.
func (d *Dataset) Has(column string) bool {
	_, ok := d.index[column]
	return ok
}

// ColumnIndex returns the position of column.
func (d *Dataset) ColumnIndex(column string) (int, error) {
	i, ok := d.index[column]
	if !ok {
		return 0, fmt.Errorf("%w: %q", etlerr.ErrColumnNotFound, column)
	}
	return i, nil
}

// Row returns row i. The slice is shared with the dataset.
func (d *Dataset) Row(i int) []any { return d.rows[i] }

// Value returns the cell at row i for column.
func (d *Dataset) Value(i int, column string) (any, error) {
	j, err := d.ColumnIndex(column)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(d.rows) {
		return nil, fmt.Errorf("row %d out of range [0,%d)", i, len(d.rows))
	}
	return d.rows[i][j], nil
}

// Column returns every value of column in row order.
func (d *Dataset) Column(column string) ([]any, error) {
	j, err := d.ColumnIndex(column)
	if err != nil {
		return nil, err
	}
	values := make([]any, len(d.rows))
	for i, row := range d.rows {
		values[i] = row[j]
	}
	return values, nil
}

// Rename returns a dataset whose columns are renamed according to mapping.
// Keys that are not columns are ignored.
func (d *Dataset) Rename(mapping map[string]string) (*Dataset, error) {
	cols := make([]string, len(d.columns))
	for i, col := range d.columns {
		if to, ok := mapping[col]; ok {
			cols[i] = to
		} else {
			cols[i] = col
		}
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	out.rows = d.rows
	return out, nil
}

// Select returns a dataset holding only the named columns, in that order.
func (d *Dataset) Select(columns ...string) (*Dataset, error) {
	idx := make([]int, len(columns))
	for i, col := range columns {
		j, err := d.ColumnIndex(col)
		if err != nil {
			return nil, err
		}
		idx[i] = j
	}
	out, err := New(columns...)
	if err != nil {
		return nil, err
	}
	out.rows = make([][]any, len(d.rows))
	for r, row := range d.rows {
		sel := make([]any, len(idx))
		for i, j := range idx {
			sel[i] = row[j]
		}
		out.rows[r] = sel
	}
	return out, nil
}

// Filter returns the rows for which keep returns true, in order.
func (d *Dataset) Filter(keep func(row []any) bool) *Dataset {
	out := d.emptyCopy()
	for _, row := range d.rows {
		if keep(row) {
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// Where returns the rows whose column value equals value. Null cells never match.
func (d *Dataset) Where(column string, value any) (*Dataset, error) {
	j, err := d.ColumnIndex(column)
	if err != nil {
		return nil, err
	}
	value = Normalize(value)
	return d.Filter(func(row []any) bool {
		return Equal(row[j], value)
	}), nil
}

// Slice returns rows [start, end). Bounds are clamped to the dataset.
func (d *Dataset) Slice(start, end int) *Dataset {
	if start < 0 {
		start = 0
	}
	if end > len(d.rows) {
		end = len(d.rows)
	}
	out := d.emptyCopy()
	if start < end {
		out.rows = d.rows[start:end]
	}
	return out
}

// Records converts rows into column-name keyed maps.
func (d *Dataset) Records() []map[string]any {
	records := make([]map[string]any, len(d.rows))
	for i, row := range d.rows {
		rec := make(map[string]any, len(d.columns))
		for j, col := range d.columns {
			rec[col] = row[j]
		}
		records[i] = rec
	}
	return records
}

// MapStrings replaces every string cell with fn(cell), in place.
func (d *Dataset) MapStrings(fn func(string) string) {
	for _, row := range d.rows {
		for j, v := range row {
			if s, ok := v.(string); ok {
				row[j] = fn(s)
			}
		}
	}
}

// MapColumn replaces every non-null cell of column with fn(cell), in place.
// The first error is returned with its row number and leaves later rows as
// they were.
func (d *Dataset) MapColumn(column string, fn func(any) (any, error)) error {
	j, err := d.ColumnIndex(column)
	if err != nil {
		return err
	}
	for i, row := range d.rows {
		if row[j] == nil {
			continue
		}
		v, err := fn(row[j])
		if err != nil {
			return fmt.Errorf("column %q row %d: %w", column, i, err)
		}
		row[j] = Normalize(v)
	}
	return nil
}

// ParseTime converts the string cells of column into time.Time using layout,
// in place. Nulls and existing time values are left untouched.
func (d *Dataset) ParseTime(column, layout string) error {
	j, err := d.ColumnIndex(column)
	if err != nil {
		return err
	}
	for i, row := range d.rows {
		s, ok := row[j].(string)
		if !ok {
			continue
		}
		t, err := time.Parse(layout, s)
		if err != nil {
			return fmt.Errorf("%w: column %q row %d: %q does not match %q", etlerr.ErrMalformedDate, column, i, s, layout)
		}
		row[j] = t
	}
	return nil
}

func (d *Dataset) emptyCopy() *Dataset {
	return &Dataset{columns: d.columns, index: d.index}
}
