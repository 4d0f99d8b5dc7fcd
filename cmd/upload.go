package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
	"github.com/ackruti/Oracle-etl-tool/cmd/formatters"
	"github.com/ackruti/Oracle-etl-tool/cmd/gateway"
	"github.com/ackruti/Oracle-etl-tool/cmd/uploader"
)

// ErrFileRequired is returned when no file is given and there is no terminal to pick one on.
var ErrFileRequired = errors.New("--file is required when not running in a terminal")

var uploadCmd = &cobra.Command{
	Use:   "upload-data",
	Short: "Append a tab-delimited planning export to a table",
	Long: `Read a tab-delimited file, map its columns onto the table layout and
append it to the target table, unless the table already holds the file's
validity date or a later one. Without --file the file is picked from the
current directory.`,
	RunE: runCommand("Data upload", (*Config).ValidateUpload, runUpload),
}

func init() {
	flags := uploadCmd.Flags()
	flags.String("file", "", "file to upload (prompts for a selection when empty)")
	flags.String("table", defaultUploadTable, "target table name")
	flags.String("schema", "", "target schema (defaults to db.schema)")
	flags.String("separator", `\t`, "field separator of the input file")

	bindFlags(flags, map[string]string{
		"upload.file":      "file",
		"upload.table":     "table",
		"upload.schema":    "schema",
		"upload.separator": "separator",
	})
}

// uploadColumns maps the export headers onto the table columns, in table order.
var uploadColumns = []struct{ from, to string }{
	{"Validity_Date", "validity_date"},
	{"Timezone", "timezone"},
	{"Part_ID", "part_id"},
	{"Product_ID", "product_id"},
	{"Product_Description", "product_description"},
	{"Last_Submitted_Date", "last_submitted_date"},
	{"Location_ID", "location_id"},
	{"Key_Figure", "key_figure"},
	{"Planned_Month", "planned_month"},
	{"FINAL_CON_DEM", "qty"},
}

// FileSelector picks the input file interactively.
type FileSelector interface {
	SelectFile(ctx context.Context) (string, error)
}

func runUpload(ctx context.Context, config *Config) error {
	term := newTerminal(".")

	var selector FileSelector
	if term != nil {
		selector = term
	}
	path, err := uploadPath(ctx, config.Upload.File, selector)
	if err != nil {
		return err
	}

	ref := gateway.TableRef{Schema: config.Upload.Schema, Name: config.Upload.Table}
	if ref.Schema == "" {
		ref.Schema = config.Database.Schema
	}

	lock, err := AcquireLock(TaskInfo{Command: "upload-data", Table: ref.String(), File: path})
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn(fmt.Sprintf("⚠️  Failed to release lock: %v", err))
		}
	}()

	sep, _ := utf8.DecodeRuneInString(config.separator())
	ds, err := loadUploadFile(path, sep)
	if err != nil {
		return err
	}

	creds := credentialSource(config, term)
	return gateway.WithSession(ctx, config.gatewayConfig(), creds, logger, func(g *gateway.Gateway) error {
		result, err := uploader.New(g, config.uploadOptions(), logger).Upload(ctx, ref, ds)
		if err != nil {
			return err
		}
		logUploadResult(ref, result)
		return nil
	})
}

// uploadPath returns the configured file, or asks selector for one.
func uploadPath(ctx context.Context, file string, selector FileSelector) (string, error) {
	if file != "" {
		return file, nil
	}
	if selector == nil {
		return "", ErrFileRequired
	}
	return selector.SelectFile(ctx)
}

// loadUploadFile reads the export and reshapes it to the table layout.
func loadUploadFile(path string, sep rune) (*dataset.Dataset, error) {
	logger.Info(fmt.Sprintf("📄 Loading data from file: %s", path))

	// cells stay text here; the uploader types them per table column
	ds, err := formatters.ReadFile(path, formatters.ReadOptions{
		Separator: sep,
		Name:      filepath.Base(path),
	})
	if err != nil {
		return nil, err
	}

	mapping := make(map[string]string, len(uploadColumns))
	order := make([]string, len(uploadColumns))
	for i, c := range uploadColumns {
		mapping[c.from] = c.to
		order[i] = c.to
	}

	renamed, err := ds.Rename(mapping)
	if err != nil {
		return nil, err
	}
	out, err := renamed.Select(order...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	logger.Info(fmt.Sprintf("📄 Loaded %d rows x %d columns", out.Len(), len(order)))
	return out, nil
}

func logUploadResult(ref gateway.TableRef, result uploader.Result) {
	switch {
	case result.Skipped:
		logger.Info(fmt.Sprintf("⏭️  %s is up to date (stored %s, file %s), nothing uploaded",
			ref, result.Stored.Format("2006-01-02"), result.Incoming.Format("2006-01-02")))
	case result.HasStored:
		logger.Info(fmt.Sprintf("📤 Uploaded %d rows to %s (previous snapshot %s)",
			result.Inserted, ref, result.Stored.Format("2006-01-02")))
	default:
		logger.Info(fmt.Sprintf("📤 Uploaded %d rows to empty table %s", result.Inserted, ref))
	}
}
