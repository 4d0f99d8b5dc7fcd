// Package gateway opens database sessions and runs the reads and writes the
// extract and load pipelines need.
package gateway

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ackruti/Oracle-etl-tool/cmd/dataset"
	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
)

var (
	ErrDriverUnsupported = errors.New("database driver must be one of: oracle, postgres, mysql, sqlite")
	ErrNoCredentials     = errors.New("no credential source configured")
)

// Config describes how to reach the database.
type Config struct {
	Driver  string
	Host    string
	Port    int
	Service string // Oracle service name
	Name    string // database name, or file path for sqlite
	SSLMode string
	// StatementTimeout bounds every statement, including each insert batch; 0 disables it.
	StatementTimeout time.Duration
	// InsertBatchRows is the number of rows sent per INSERT statement; 0 means DefaultInsertBatchRows.
	InsertBatchRows int
}

// DefaultInsertBatchRows is the insert batch size when none is configured.
const DefaultInsertBatchRows = 500

// maxBindParams keeps a batch under the bind parameter limit of every
// supported driver.
const maxBindParams = 30_000

// CredentialSource supplies the login used when a session is opened.
type CredentialSource interface {
	Credentials(ctx context.Context) (user, password string, err error)
}

// Gateway is a lazily opened database session.
type Gateway struct {
	cfg     Config
	dialect dialect
	creds   CredentialSource
	logger  *slog.Logger
	db      *sql.DB
}

// New validates the driver and returns an unopened gateway.
func New(cfg Config, creds CredentialSource, logger *slog.Logger) (*Gateway, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return &Gateway{cfg: cfg, dialect: d, creds: creds, logger: logger}, nil
}

// NewWithDB wraps an already open handle, such as a sqlmock connection.
func NewWithDB(db *sql.DB, cfg Config, logger *slog.Logger) (*Gateway, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return &Gateway{cfg: cfg, dialect: d, db: db, logger: logger}, nil
}

// WithSession opens a gateway, runs fn and closes the gateway whatever fn returns.
func WithSession(ctx context.Context, cfg Config, creds CredentialSource, logger *slog.Logger, fn func(*Gateway) error) (err error) {
	g, err := New(cfg, creds, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := g.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := g.Open(ctx); err != nil {
		return err
	}
	return fn(g)
}

// Open connects and pings the database. It is a no-op when already open.
func (g *Gateway) Open(ctx context.Context) error {
	if g.db != nil {
		return nil
	}
	if g.creds == nil {
		return fmt.Errorf("%w: %w", etlerr.ErrConnection, ErrNoCredentials)
	}

	user, password, err := g.creds.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("%w: credentials: %w", etlerr.ErrConnection, err)
	}

	db, err := sql.Open(g.dialect.driverName(), g.dialect.dsn(g.cfg, user, password))
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", etlerr.ErrConnection, g.cfg.Driver, err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s at %s: %w", etlerr.ErrConnection, g.cfg.Driver, g.target(), err)
	}

	g.logger.Debug(fmt.Sprintf("🔌 Connected to %s at %s as %s", g.cfg.Driver, g.target(), user))
	g.db = db
	return nil
}

// Close releases the session. Safe to call on an unopened gateway.
func (g *Gateway) Close() error {
	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	return err
}

func (g *Gateway) target() string {
	switch {
	case g.cfg.Service != "":
		return fmt.Sprintf("%s:%d/%s", g.cfg.Host, g.cfg.Port, g.cfg.Service)
	case g.cfg.Host != "":
		return fmt.Sprintf("%s:%d/%s", g.cfg.Host, g.cfg.Port, g.cfg.Name)
	default:
		return g.cfg.Name
	}
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.StatementTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.StatementTimeout)
}

// Execute runs a read query and materializes every row.
func (g *Gateway) Execute(ctx context.Context, query string, args ...any) (*dataset.Dataset, error) {
	if err := g.Open(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify(ctx, err)
	}
	ds, err := dataset.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", etlerr.ErrQuery, err)
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(ctx, err)
		}
		if err := ds.Append(values...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, err)
	}

	g.logger.Debug(fmt.Sprintf("📥 Query returned %d rows x %d columns in %v", ds.Len(), len(cols), time.Since(start).Round(time.Millisecond)))
	return ds, nil
}

// MaxTime returns MAX(column) of the table. ok is false when the table is empty.
func (g *Gateway) MaxTime(ctx context.Context, ref TableRef, column string) (t time.Time, ok bool, err error) {
	if err := g.Open(ctx); err != nil {
		return time.Time{}, false, err
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", g.dialect.quote(g.dialect.fold(column)), g.qualified(ref))
	var raw any
	if err := g.db.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		return time.Time{}, false, classify(ctx, err)
	}
	if raw == nil {
		return time.Time{}, false, nil
	}
	t, err = asTime(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: MAX(%s) of %s: %w", etlerr.ErrMalformedDate, column, ref, err)
	}
	return t, true, nil
}

// BulkInsert inserts every row in one transaction, several rows per
// statement. Row keys are matched to table columns case-insensitively; table
// columns missing from a row are inserted as NULL by omission. The statement
// timeout applies to each batch, not to the transaction. On any failure
// nothing is committed.
func (g *Gateway) BulkInsert(ctx context.Context, table *TableSchema, rows []map[string]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := g.Open(ctx); err != nil {
		return 0, err
	}

	keys, cols, err := table.match(rows[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", etlerr.ErrInsert, err)
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = g.dialect.quote(c)
	}
	target := g.qualified(table.Ref)
	batch := g.batchRows(len(cols))

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", etlerr.ErrInsert, classify(ctx, err))
	}
	defer func() { _ = tx.Rollback() }()

	var stmt string
	args := make([]any, 0, batch*len(keys))
	for start := 0; start < len(rows); start += batch {
		end := min(start+batch, len(rows))
		if start == 0 || end-start != batch {
			stmt = g.dialect.insertRows(target, quoted, end-start)
		}

		args = args[:0]
		for _, row := range rows[start:end] {
			for _, k := range keys {
				args = append(args, row[k])
			}
		}

		if err := g.execStatement(ctx, tx, stmt, args); err != nil {
			return 0, fmt.Errorf("%w: rows %d-%d: %w", etlerr.ErrInsert, start, end-1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", etlerr.ErrInsert, classify(ctx, err))
	}
	g.logger.Debug(fmt.Sprintf("📤 Inserted %d rows into %s in batches of %d", len(rows), table.Ref, batch))
	return len(rows), nil
}

// execStatement runs one statement of tx under the statement timeout.
func (g *Gateway) execStatement(ctx context.Context, tx *sql.Tx, stmt string, args []any) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return classify(ctx, err)
	}
	return nil
}

func (g *Gateway) batchRows(width int) int {
	n := g.cfg.InsertBatchRows
	if n <= 0 {
		n = DefaultInsertBatchRows
	}
	if width > 0 && n*width > maxBindParams {
		n = max(1, maxBindParams/width)
	}
	return n
}

func (g *Gateway) qualified(ref TableRef) string {
	name := g.dialect.quote(g.dialect.fold(ref.Name))
	if ref.Schema == "" {
		return name
	}
	return g.dialect.quote(g.dialect.fold(ref.Schema)) + "." + name
}

// isConnectionError checks if an error is due to a closed or broken database connection
func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "bad connection") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "sql: database is closed") ||
		strings.Contains(errStr, "ORA-03113") ||
		strings.Contains(errStr, "ORA-03114")
}

// classify maps driver errors to the error taxonomy. Cancellation is passed
// through; a statement timeout is a query error.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %w", context.Canceled, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: statement timeout exceeded: %w", etlerr.ErrQuery, err)
	case isConnectionError(err):
		return fmt.Errorf("%w: %w", etlerr.ErrConnection, err)
	default:
		return fmt.Errorf("%w: %w", etlerr.ErrQuery, err)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006.01.02 15:04:05",
}

// asTime converts a scanned MAX() value to time.Time. Drivers return dates
// as time.Time, while sqlite returns text.
func asTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case []byte:
		return asTime(string(x))
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", x)
	default:
		return time.Time{}, fmt.Errorf("unexpected %T value", v)
	}
}
