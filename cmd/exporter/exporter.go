// Package exporter fans a dataset out into files, one per group value or one
// per fixed-size chunk.
package exporter

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ackruti/Oracle-etl-tool/cmd/compressors"
	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
	"github.com/ackruti/Oracle-etl-tool/cmd/formatters"
)

// ErrNameCollision is returned when two group values map to the same file name.
var ErrNameCollision = errors.New("group values map to the same file name")

// pathSafe keeps group values from escaping the output directory.
var pathSafe = strings.NewReplacer("/", "_", "\\", "_")

// Exporter writes grouped and chunked exports.
type Exporter struct {
	compressor compressors.Compressor
	level      int
	logger     *slog.Logger
}

// New creates an exporter. Delimited output is compressed with compression
// ("" or "none" leaves it plain); spreadsheet and parquet files never are.
func New(compression string, logger *slog.Logger) (*Exporter, error) {
	c, err := compressors.GetCompressor(compression)
	if err != nil {
		return nil, err
	}
	return &Exporter{compressor: c, level: c.DefaultLevel(), logger: logger}, nil
}

// ExportByGroup writes one file per distinct non-null value of groupColumn,
// named {filePrefix}_{value}.{format}, into outputDir. Paths are returned in
// ascending group order. Values that would share a file name, ignoring case,
// fail the export before anything is written. If a write fails, files already
// written stay on disk.
func (e *Exporter) ExportByGroup(ds *dataset.Dataset, groupColumn, outputDir, filePrefix, format string, opts formatters.Options) ([]string, error) {
	if _, err := ds.ColumnIndex(groupColumn); err != nil {
		return nil, err
	}
	f, err := formatters.GetFormatter(format, opts)
	if err != nil {
		return nil, err
	}

	groups, err := ds.Distinct(groupColumn)
	if err != nil {
		return nil, err
	}

	compressor, suffix := e.compressorFor(format)
	names := make([]string, len(groups))
	owner := make(map[string]any, len(groups))
	for i, group := range groups {
		names[i] = fmt.Sprintf("%s_%s%s%s", filePrefix, pathSafe.Replace(dataset.FormatValue(group)), f.Extension(), suffix)
		key := strings.ToLower(names[i])
		if prev, ok := owner[key]; ok {
			return nil, fmt.Errorf("%w: %v and %v both write %s", ErrNameCollision, prev, group, names[i])
		}
		owner[key] = group
	}

	paths := make([]string, 0, len(groups))
	for i, group := range groups {
		part, err := ds.Where(groupColumn, group)
		if err != nil {
			return nil, err
		}

		path := filepath.Join(outputDir, names[i])
		if err := formatters.WriteFile(path, f, part, compressor, e.level); err != nil {
			return nil, fmt.Errorf("failed to export group %v: %w", group, err)
		}

		e.logger.Debug(fmt.Sprintf("💾 Wrote %d rows to %s", part.Len(), path))
		paths = append(paths, path)
	}

	e.logger.Info(fmt.Sprintf("📁 Exported %d %s groups of %s to %s", len(paths), formatters.NormalizeFormat(format), groupColumn, outputDir))
	return paths, nil
}

// ExportChunks writes ds as parquet files of at most opts.ChunkRowLimit rows
// each, named by name(i) for chunk i counting from 0. Column types are
// resolved over the whole dataset so every chunk has the same schema. An empty
// dataset writes nothing.
func (e *Exporter) ExportChunks(ds *dataset.Dataset, outputDir string, name func(i int) string, opts formatters.Options) ([]string, error) {
	f, err := formatters.NewParquetFormatter(opts)
	if err != nil {
		return nil, err
	}
	f.PinSchema(ds)
	limit := opts.ChunkRowLimit
	if limit <= 0 {
		limit = formatters.DefaultChunkRowLimit
	}

	var paths []string
	for i, start := 0, 0; start < ds.Len(); i, start = i+1, start+limit {
		chunk := ds.Slice(start, start+limit)
		path := filepath.Join(outputDir, name(i))
		if err := formatters.WriteFile(path, f, chunk, nil, 0); err != nil {
			return nil, fmt.Errorf("failed to export chunk %d: %w", i, err)
		}
		e.logger.Debug(fmt.Sprintf("💾 Wrote chunk %d (%d rows) to %s", i, chunk.Len(), path))
		paths = append(paths, path)
	}
	return paths, nil
}

func (e *Exporter) compressorFor(format string) (compressors.Compressor, string) {
	if formatters.NormalizeFormat(format) != formatters.FormatCSV {
		return nil, ""
	}
	return e.compressor, e.compressor.Extension()
}
