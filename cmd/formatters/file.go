package formatters

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ackruti/Oracle-etl-tool/cmd/compressors"
	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
)

// WriteFile serializes ds to path, creating missing parent directories.
// When c is non-nil the output is compressed with it at level. The file is
// written under a temporary name and renamed once complete, so a failed write
// leaves no partial file behind.
func WriteFile(path string, f Formatter, ds *dataset.Dataset, c compressors.Compressor, level int) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if c == nil {
		c = compressors.NewNoneCompressor()
	}
	w, err := c.NewWriter(tmp, level)
	if err != nil {
		return err
	}
	if err := f.Write(w, ds); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	committed = true
	return nil
}

// ReadFile reads a delimited, spreadsheet or parquet file chosen by extension.
func ReadFile(path string, opts ReadOptions) (*dataset.Dataset, error) {
	switch NormalizeFormat(filepath.Ext(path)) {
	case FormatParquet:
		return ReadParquetFile(path)
	case FormatXLSX:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadSpreadsheet(f, "", opts.InferTypes)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if opts.Name == "" {
			opts.Name = filepath.Base(path)
		}
		return ReadDelimited(f, opts)
	}
}
