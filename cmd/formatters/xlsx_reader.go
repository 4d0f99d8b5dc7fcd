package formatters

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
)

// ReadSpreadsheet reads the first row of sheet as the header and the rest as
// data. An empty sheet name selects the first worksheet. Cells are read as
// their displayed text and typed the same way as delimited input.
func ReadSpreadsheet(r io.Reader, sheet string, inferTypes bool) (*dataset.Dataset, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: not a valid xlsx workbook: %w", etlerr.ErrParse, err)
	}
	defer book.Close()

	if sheet == "" {
		sheet = book.GetSheetName(0)
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, &etlerr.ParseError{Line: 1, Err: ErrEmptyInput}
	}

	ds, err := dataset.New(rows[0]...)
	if err != nil {
		return nil, &etlerr.ParseError{Line: 1, Err: err}
	}
	width := len(rows[0])

	for i, row := range rows[1:] {
		if len(row) > width {
			return nil, &etlerr.ParseError{Line: i + 2, Column: width + 1, Err: fmt.Errorf("row has %d cells, header has %d", len(row), width)}
		}
		// GetRows trims trailing empty cells
		values := make([]any, width)
		for j, cell := range row {
			if inferTypes {
				values[j] = convertValue(cell)
			} else if cell != "" {
				values[j] = cell
			}
		}
		if err := ds.Append(values...); err != nil {
			return nil, &etlerr.ParseError{Line: i + 2, Err: err}
		}
	}
	return ds, nil
}
