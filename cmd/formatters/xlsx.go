package formatters

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
)

// maxSheetRows is the row limit of a single xlsx worksheet, header included.
const maxSheetRows = 1_048_576

// numFmtDateTime is the built-in "m/d/yy h:mm" number format.
const numFmtDateTime = 22

// XLSXFormatter writes a single-sheet spreadsheet with a header row
type XLSXFormatter struct {
	sheetName    string
	includeIndex bool
}

// NewXLSXFormatter creates a new spreadsheet formatter
func NewXLSXFormatter(opts Options) *XLSXFormatter {
	opts = opts.withDefaults()
	return &XLSXFormatter{
		sheetName:    opts.SheetName,
		includeIndex: opts.IncludeIndex,
	}
}

// Write streams the dataset into one worksheet
func (f *XLSXFormatter) Write(w io.Writer, ds *dataset.Dataset) error {
	if ds.Len()+1 > maxSheetRows {
		return fmt.Errorf("dataset has %d rows, a worksheet holds at most %d", ds.Len(), maxSheetRows-1)
	}

	book := excelize.NewFile()
	defer book.Close()

	defaultSheet := book.GetSheetName(0)
	if f.sheetName != defaultSheet {
		if err := book.SetSheetName(defaultSheet, f.sheetName); err != nil {
			return fmt.Errorf("failed to name sheet %q: %w", f.sheetName, err)
		}
	}

	stream, err := book.NewStreamWriter(f.sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet writer: %w", err)
	}

	dateStyle, err := book.NewStyle(&excelize.Style{NumFmt: numFmtDateTime})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	cols := header(ds, f.includeIndex)
	headerRow := make([]any, len(cols))
	for i, c := range cols {
		headerRow[i] = c
	}
	if err := stream.SetRow("A1", headerRow); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	for i := 0; i < ds.Len(); i++ {
		cells := make([]any, 0, len(cols))
		if f.includeIndex {
			cells = append(cells, i)
		}
		for _, val := range ds.Row(i) {
			cells = append(cells, xlsxCell(val, dateStyle))
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := stream.SetRow(cell, cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if err := stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if err := book.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func xlsxCell(val any, dateStyle int) any {
	switch v := val.(type) {
	case nil:
		return nil
	case time.Time:
		return excelize.Cell{StyleID: dateStyle, Value: v}
	default:
		return v
	}
}

// Extension returns the file extension for spreadsheet files
func (f *XLSXFormatter) Extension() string {
	return ".xlsx"
}

// MIMEType returns the MIME type for xlsx
func (f *XLSXFormatter) MIMEType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
