package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
	"github.com/ackruti/Oracle-etl-tool/cmd/exporter"
	"github.com/ackruti/Oracle-etl-tool/cmd/formatters"
	"github.com/ackruti/Oracle-etl-tool/cmd/gateway"
	"github.com/ackruti/Oracle-etl-tool/cmd/publish"
)

var downloadCmd = &cobra.Command{
	Use:   "download-forecast",
	Short: "Download the latest BOM EO forecast snapshot to Excel and Parquet",
	Long: `Run the forecast query, then write one spreadsheet per market (DP_GROUP_MKT)
and the full snapshot as parquet chunks into a folder named after the
snapshot's validity date. The folder can optionally be published to S3.`,
	RunE: runCommand("Forecast download", (*Config).ValidateDownload, runDownload),
}

// Hooks for opening the results, replaced in tests.
var (
	openURL    = browser.OpenURL
	openFolder = browser.OpenFile
)

func init() {
	flags := downloadCmd.Flags()
	flags.Bool("no-excel", false, "skip the per-market files")
	flags.Bool("no-parquet", false, "skip the parquet chunks")
	flags.Bool("open-drive", false, "open the shared drive in a browser when done")
	flags.Bool("open-folder", false, "open the output folder when done")
	flags.String("output-dir", ".", "directory the snapshot folder is created in")
	flags.String("drive-url", "", "shared drive URL opened by --open-drive")
	flags.Int("chunk-rows", formatters.DefaultChunkRowLimit, "rows per parquet chunk")
	flags.String("compression", formatters.CompressionSnappy, "parquet compression: snappy, zstd, gzip, lz4, none")
	flags.String("format", formatters.FormatXLSX, "per-market file format: xlsx, csv, parquet")
	flags.String("csv-compression", "none", "compression of per-market csv files: none, gzip, zstd, lz4")
	flags.String("group-column", defaultGroupColumn, "column the per-market files are split by")
	flags.String("date-column", defaultDateColumn, "snapshot validity date column")

	flags.String("s3-endpoint", "", "S3-compatible endpoint URL")
	flags.String("s3-bucket", "", "S3 bucket the snapshot folder is published to (empty = no publishing)")
	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-region", regionAuto, "S3 region")
	flags.String("path-template", "bom-eo/{YYYY}/{MM}/{validity_date}", "S3 path template with placeholders: {validity_date}, {forecast_cycle}, {YYYY}, {MM}, {DD}")

	bindFlags(flags, map[string]string{
		"download.no_excel":        "no-excel",
		"download.no_parquet":      "no-parquet",
		"download.open_drive":      "open-drive",
		"download.open_folder":     "open-folder",
		"download.chunk_rows":      "chunk-rows",
		"download.compression":     "compression",
		"download.format":          "format",
		"download.csv_compression": "csv-compression",
		"download.group_column":    "group-column",
		"download.date_column":     "date-column",
		"app.output_dir":           "output-dir",
		"app.drive_url":            "drive-url",
		"s3.endpoint":              "s3-endpoint",
		"s3.bucket":                "s3-bucket",
		"s3.access_key":            "s3-access-key",
		"s3.secret_key":            "s3-secret-key",
		"s3.region":                "s3-region",
		"s3.path_template":         "path-template",
	})
}

// forecastOutput lists what a download wrote.
type forecastOutput struct {
	Snapshot     Snapshot
	Folder       string
	Spreadsheets []string
	Chunks       []string
}

func runDownload(ctx context.Context, config *Config) error {
	creds := credentialSource(config, newTerminal("."))

	var ds *dataset.Dataset
	err := gateway.WithSession(ctx, config.gatewayConfig(), creds, logger, func(g *gateway.Gateway) error {
		logger.Info("📥 Running forecast query...")
		start := time.Now()
		var err error
		ds, err = g.Execute(ctx, config.Download.Query)
		if err != nil {
			return err
		}
		logger.Info(fmt.Sprintf("📥 Fetched %d rows in %v", ds.Len(), time.Since(start).Round(time.Millisecond)))
		return nil
	})
	if err != nil {
		return err
	}

	out, err := exportForecast(ds, config)
	if err != nil {
		return err
	}

	if config.S3.Bucket != "" {
		if err := publishForecast(ctx, config, out); err != nil {
			return err
		}
	}

	openResults(config, out)
	return nil
}

// exportForecast writes the spreadsheets and parquet chunks of one snapshot.
func exportForecast(ds *dataset.Dataset, config *Config) (*forecastOutput, error) {
	ds.MapStrings(dataset.EscapeNonASCII)

	date, err := snapshotDate(ds, config.Download.DateColumn)
	if err != nil {
		return nil, err
	}
	snap := Snapshot{Date: date}
	out := &forecastOutput{
		Snapshot: snap,
		Folder:   filepath.Join(config.App.OutputDir, snap.FolderName()),
	}
	logger.Info(fmt.Sprintf("📅 Snapshot %s for the %s forecast cycle (%d rows)", snap.Label(), snap.Cycle(), ds.Len()))

	exp, err := exporter.New(config.Download.CSVCompression, logger)
	if err != nil {
		return nil, err
	}

	if !config.Download.NoExcel {
		format := config.exportFormat()
		logger.Info(fmt.Sprintf("📊 Writing per-market %s files...", format))
		out.Spreadsheets, err = exp.ExportByGroup(ds, config.Download.GroupColumn, out.Folder, snap.FilePrefix(), format,
			formatters.Options{SheetName: forecastSheetName, Compression: config.Download.Compression})
		if err != nil {
			return nil, err
		}
	}

	if !config.Download.NoParquet {
		logger.Info("🧱 Writing parquet chunks...")
		out.Chunks, err = exp.ExportChunks(ds, filepath.Join(out.Folder, parquetFolderName), snap.ChunkName,
			formatters.Options{Compression: config.Download.Compression, ChunkRowLimit: config.Download.ChunkRows})
		if err != nil {
			return nil, err
		}
		logger.Info(fmt.Sprintf("🧱 Wrote %d parquet chunks", len(out.Chunks)))
	}

	logger.Info(fmt.Sprintf("📁 Output folder: %s", infoStyle.Render(out.Folder)))
	return out, nil
}

// snapshotDate returns the single calendar date held in column. Several
// dates, no rows or values that are not dates yield ErrMalformedDate.
func snapshotDate(ds *dataset.Dataset, column string) (time.Time, error) {
	values, err := ds.Distinct(column)
	if err != nil {
		return time.Time{}, err
	}
	if len(values) == 0 {
		return time.Time{}, fmt.Errorf("%w: %s has no values", etlerr.ErrMalformedDate, column)
	}

	var date time.Time
	for i, v := range values {
		d, err := calendarDate(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s value %v", etlerr.ErrMalformedDate, column, v)
		}
		if i > 0 && !d.Equal(date) {
			return time.Time{}, fmt.Errorf("%w: %s holds more than one date (%s, %s)", etlerr.ErrMalformedDate,
				column, date.Format(time.DateOnly), d.Format(time.DateOnly))
		}
		date = d
	}
	return date, nil
}

var dateLayouts = []string{dataset.TimeLayout, time.DateOnly, time.RFC3339Nano}

func calendarDate(v any) (time.Time, error) {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case string:
		var err error
		for _, layout := range dateLayouts {
			if t, err = time.Parse(layout, x); err == nil {
				break
			}
		}
		if err != nil {
			return time.Time{}, err
		}
	default:
		return time.Time{}, fmt.Errorf("unexpected %T", v)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func publishForecast(ctx context.Context, config *Config, out *forecastOutput) error {
	p, err := publish.New(config.publishConfig(), logger)
	if err != nil {
		return err
	}
	prefix := NewPathTemplate(config.S3.PathTemplate).Generate(out.Snapshot)
	logger.Info(fmt.Sprintf("☁️  Publishing %s to s3://%s/%s", out.Folder, config.S3.Bucket, prefix))
	_, err = p.PublishDir(ctx, out.Folder, prefix)
	return err
}

// openResults opens the drive and the output folder when asked. Failures
// are only logged since the files are already written.
func openResults(config *Config, out *forecastOutput) {
	if config.Download.OpenDrive {
		if config.App.DriveURL == "" {
			logger.Warn("⚠️  --open-drive given but app.drive_url is not set")
		} else if err := openURL(config.App.DriveURL); err != nil {
			logger.Warn(fmt.Sprintf("⚠️  Failed to open browser: %v", err))
		} else {
			logger.Info(fmt.Sprintf("🌐 Opened browser to: %s", config.App.DriveURL))
		}
	}

	if config.Download.OpenFolder {
		if _, err := os.Stat(out.Folder); err != nil {
			logger.Warn(fmt.Sprintf("⚠️  Path does not exist: %s", out.Folder))
		} else if err := openFolder(out.Folder); err != nil {
			logger.Warn(fmt.Sprintf("⚠️  Failed to open file explorer: %v", err))
		}
	}
}
