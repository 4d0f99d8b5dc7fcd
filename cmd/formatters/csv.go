package formatters

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
)

// CSVFormatter handles delimited text output
type CSVFormatter struct {
	separator    rune
	includeIndex bool
}

// NewCSVFormatter creates a new CSV formatter
func NewCSVFormatter(opts Options) *CSVFormatter {
	opts = opts.withDefaults()
	return &CSVFormatter{
		separator:    opts.Separator,
		includeIndex: opts.IncludeIndex,
	}
}

// Write emits the header row followed by every data row in dataset column order
func (f *CSVFormatter) Write(w io.Writer, ds *dataset.Dataset) error {
	writer := csv.NewWriter(w)
	writer.Comma = f.separator

	if err := writer.Write(header(ds, f.includeIndex)); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	width := len(ds.Columns())
	if f.includeIndex {
		width++
	}
	record := make([]string, width)
	for i := 0; i < ds.Len(); i++ {
		offset := 0
		if f.includeIndex {
			record[0] = strconv.Itoa(i)
			offset = 1
		}
		for j, val := range ds.Row(i) {
			record[j+offset] = dataset.FormatValue(val)
		}

		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// Extension returns the file extension for CSV files
func (f *CSVFormatter) Extension() string {
	return ".csv"
}

// MIMEType returns the MIME type for CSV
func (f *CSVFormatter) MIMEType() string {
	if f.separator == '\t' {
		return "text/tab-separated-values"
	}
	return "text/csv"
}
