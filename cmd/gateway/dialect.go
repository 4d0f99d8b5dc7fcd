package gateway

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	go_ora "github.com/sijms/go-ora/v2"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverOracle   = "oracle"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// dialect captures what differs between the supported databases.
type dialect interface {
	// driverName is the database/sql driver name.
	driverName() string
	dsn(cfg Config, user, password string) string
	// placeholder returns the n-th (1-based) bind parameter marker.
	placeholder(n int) string
	quote(ident string) string
	// fold converts an unquoted identifier to the case the catalog stores it in.
	fold(ident string) string
	// columnsQuery lists column name and type for a table, in ordinal order.
	columnsQuery(ref TableRef) (string, []any)
	// insertRows builds an INSERT of n rows into the quoted table and columns.
	insertRows(table string, columns []string, n int) string
}

// valuesInsert builds a multi-row INSERT ... VALUES (...), (...) statement.
func valuesInsert(d dialect, table string, columns []string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
	for r := 0; r < n; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString(rowMarks(d, len(columns), r*len(columns)))
	}
	return b.String()
}

// rowMarks returns "(p1, ..., pw)" with placeholders numbered from offset+1.
func rowMarks(d dialect, width, offset int) string {
	marks := make([]string, width)
	for i := range marks {
		marks[i] = d.placeholder(offset + i + 1)
	}
	return "(" + strings.Join(marks, ", ") + ")"
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case DriverOracle, "":
		return oracleDialect{}, nil
	case DriverPostgres, "postgresql":
		return postgresDialect{}, nil
	case DriverMySQL:
		return mysqlDialect{}, nil
	case DriverSQLite, "sqlite3":
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrDriverUnsupported, driver)
	}
}

type oracleDialect struct{}

func (oracleDialect) driverName() string { return "oracle" }

func (oracleDialect) dsn(cfg Config, user, password string) string {
	port := cfg.Port
	if port == 0 {
		port = 1521
	}
	return go_ora.BuildUrl(cfg.Host, port, cfg.Service, user, password, nil)
}

func (oracleDialect) placeholder(n int) string { return ":" + strconv.Itoa(n) }

func (oracleDialect) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (oracleDialect) fold(ident string) string { return strings.ToUpper(ident) }

func (oracleDialect) columnsQuery(ref TableRef) (string, []any) {
	if ref.Schema == "" {
		return `SELECT column_name, data_type FROM user_tab_columns
			WHERE table_name = :1 ORDER BY column_id`, []any{ref.Name}
	}
	return `SELECT column_name, data_type FROM all_tab_columns
		WHERE owner = :1 AND table_name = :2 ORDER BY column_id`, []any{ref.Schema, ref.Name}
}

// insertRows uses INSERT ALL, since Oracle has no multi-row VALUES list.
func (d oracleDialect) insertRows(table string, columns []string, n int) string {
	if n == 1 {
		return valuesInsert(d, table, columns, 1)
	}
	into := fmt.Sprintf("INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
	var b strings.Builder
	b.WriteString("INSERT ALL")
	for r := 0; r < n; r++ {
		b.WriteString(" ")
		b.WriteString(into)
		b.WriteString(rowMarks(d, len(columns), r*len(columns)))
	}
	b.WriteString(" SELECT 1 FROM DUAL")
	return b.String()
}

type postgresDialect struct{}

func (postgresDialect) driverName() string { return "postgres" }

func (postgresDialect) dsn(cfg Config, user, password string) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

func (postgresDialect) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) quote(ident string) string { return pq.QuoteIdentifier(ident) }

func (postgresDialect) fold(ident string) string { return strings.ToLower(ident) }

func (postgresDialect) columnsQuery(ref TableRef) (string, []any) {
	schema := ref.Schema
	if schema == "" {
		schema = "public"
	}
	return `SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`, []any{schema, ref.Name}
}

func (d postgresDialect) insertRows(table string, columns []string, n int) string {
	return valuesInsert(d, table, columns, n)
}

type mysqlDialect struct{}

func (mysqlDialect) driverName() string { return "mysql" }

func (mysqlDialect) dsn(cfg Config, user, password string) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = user
	mc.Passwd = password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	if cfg.SSLMode == "require" {
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN()
}

func (mysqlDialect) placeholder(int) string { return "?" }

func (mysqlDialect) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysqlDialect) fold(ident string) string { return ident }

func (mysqlDialect) columnsQuery(ref TableRef) (string, []any) {
	if ref.Schema == "" {
		return `SELECT column_name, data_type FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position`, []any{ref.Name}
	}
	return `SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position`, []any{ref.Schema, ref.Name}
}

func (d mysqlDialect) insertRows(table string, columns []string, n int) string {
	return valuesInsert(d, table, columns, n)
}

type sqliteDialect struct{}

func (sqliteDialect) driverName() string { return "sqlite" }

// dsn treats cfg.Name as the database file path.
func (sqliteDialect) dsn(cfg Config, _, _ string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + cfg.Name + "?" + q.Encode()
}

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (sqliteDialect) fold(ident string) string { return ident }

func (sqliteDialect) columnsQuery(ref TableRef) (string, []any) {
	return `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, []any{ref.Name}
}

func (d sqliteDialect) insertRows(table string, columns []string, n int) string {
	return valuesInsert(d, table, columns, n)
}
