// Package uploader appends a dataset to a table when it is newer than what
// the table already holds.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
	"github.com/ackruti/Oracle-etl-tool/cmd/gateway"
)

// Defaults for the forecast upload file.
const (
	DefaultDateColumn = "validity_date"
	DefaultDateLayout = "2006.01.02 15:04:05"
)

// Store is the subset of the gateway the uploader needs.
type Store interface {
	DescribeTable(ctx context.Context, ref gateway.TableRef) (*gateway.TableSchema, error)
	MaxTime(ctx context.Context, ref gateway.TableRef, column string) (time.Time, bool, error)
	BulkInsert(ctx context.Context, table *gateway.TableSchema, rows []map[string]any) (int, error)
}

// Options configures the freshness check.
type Options struct {
	// DateColumn holds the snapshot date, both in the dataset and the table.
	DateColumn string
	// DateLayout parses string cells of DateColumn.
	DateLayout string
}

// Result describes what an upload did. A skipped upload is not an error.
type Result struct {
	Inserted  int
	Skipped   bool
	Incoming  time.Time
	Stored    time.Time
	HasStored bool
}

// Uploader performs freshness-gated appends.
type Uploader struct {
	store  Store
	opts   Options
	logger *slog.Logger
}

// New creates an uploader. Empty options fall back to the defaults.
func New(store Store, opts Options, logger *slog.Logger) *Uploader {
	if opts.DateColumn == "" {
		opts.DateColumn = DefaultDateColumn
	}
	if opts.DateLayout == "" {
		opts.DateLayout = DefaultDateLayout
	}
	return &Uploader{store: store, opts: opts, logger: logger}
}

// Upload inserts ds into the table at ref unless the table already holds a
// snapshot on or after the dataset's date. The date is taken from row 0 only:
// one upload batch is one snapshot. Before the insert, string cells of ds
// are converted in place to the type family of their table column.
func (u *Uploader) Upload(ctx context.Context, ref gateway.TableRef, ds *dataset.Dataset) (Result, error) {
	incoming, err := u.Watermark(ds)
	if err != nil {
		return Result{}, err
	}
	result := Result{Incoming: incoming}

	stored, ok, err := u.store.MaxTime(ctx, ref, u.opts.DateColumn)
	if err != nil {
		// A missing table surfaces as a query error from MAX(); report it as such.
		if errors.Is(err, etlerr.ErrQuery) {
			if _, derr := u.store.DescribeTable(ctx, ref); errors.Is(derr, etlerr.ErrTableNotFound) {
				return result, derr
			}
		}
		return result, fmt.Errorf("failed to read stored %s of %s: %w", u.opts.DateColumn, ref, err)
	}

	if ok {
		result.Stored = truncateDay(stored)
		result.HasStored = true
		if !incoming.After(result.Stored) {
			u.logger.Info(fmt.Sprintf("⏭️  Skipping upload: %s already holds %s (incoming %s)",
				ref, result.Stored.Format(time.DateOnly), incoming.Format(time.DateOnly)))
			result.Skipped = true
			return result, nil
		}
		u.logger.Debug(fmt.Sprintf("🔍 Incoming %s is newer than stored %s",
			incoming.Format(time.DateOnly), result.Stored.Format(time.DateOnly)))
	} else {
		u.logger.Debug(fmt.Sprintf("🔍 %s is empty, inserting unconditionally", ref))
	}

	schema, err := u.store.DescribeTable(ctx, ref)
	if err != nil {
		return result, err
	}

	if err := ds.ParseTime(u.opts.DateColumn, u.opts.DateLayout); err != nil {
		return result, err
	}
	if err := u.coerce(ds, schema); err != nil {
		return result, err
	}

	n, err := u.store.BulkInsert(ctx, schema, ds.Records())
	if err != nil {
		return result, err
	}
	result.Inserted = n
	u.logger.Info(fmt.Sprintf("✅ Inserted %d rows into %s for %s", n, ref, incoming.Format(time.DateOnly)))
	return result, nil
}

// Watermark returns the date of row 0 of the date column, truncated to the day.
func (u *Uploader) Watermark(ds *dataset.Dataset) (time.Time, error) {
	if !ds.Has(u.opts.DateColumn) {
		return time.Time{}, fmt.Errorf("%w: dataset has no %s column", etlerr.ErrMalformedDate, u.opts.DateColumn)
	}
	if ds.Len() == 0 {
		return time.Time{}, fmt.Errorf("%w: dataset is empty", etlerr.ErrMalformedDate)
	}

	v, _ := ds.Value(0, u.opts.DateColumn)
	switch x := v.(type) {
	case time.Time:
		return truncateDay(x), nil
	case string:
		t, err := time.Parse(u.opts.DateLayout, x)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s %q does not match %q", etlerr.ErrMalformedDate, u.opts.DateColumn, x, u.opts.DateLayout)
		}
		return truncateDay(t), nil
	case nil:
		return time.Time{}, fmt.Errorf("%w: %s is null in the first row", etlerr.ErrMalformedDate, u.opts.DateColumn)
	default:
		return time.Time{}, fmt.Errorf("%w: %s holds %T, not a date", etlerr.ErrMalformedDate, u.opts.DateColumn, v)
	}
}

// truncateDay keeps the calendar date as written, dropping time and zone.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
