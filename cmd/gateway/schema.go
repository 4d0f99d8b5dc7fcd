package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
)

// TableRef names a table, optionally qualified by schema (or owner).
type TableRef struct {
	Schema string
	Name   string
}

func (r TableRef) String() string {
	if r.Schema == "" {
		return r.Name
	}
	return r.Schema + "." + r.Name
}

// ColumnInfo represents metadata about a database column
type ColumnInfo struct {
	Name     string
	DataType string
}

// ColumnKind is the value family of a column's declared type.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInteger
	KindDecimal
	KindFloat
	KindTemporal
	KindBool
)

// Kind classifies DataType by its leading type name, so "NUMBER(10,2)",
// "timestamp without time zone" and "TIMESTAMP(6) WITH TIME ZONE" resolve
// the same way across drivers. Unknown types are text.
func (c ColumnInfo) Kind() ColumnKind {
	base := strings.ToLower(strings.TrimSpace(c.DataType))
	if i := strings.IndexAny(base, "( "); i >= 0 {
		base = base[:i]
	}
	switch base {
	case "int", "integer", "bigint", "smallint", "tinyint", "mediumint",
		"int2", "int4", "int8", "serial", "bigserial":
		return KindInteger
	case "number", "numeric", "decimal", "dec":
		return KindDecimal
	case "real", "float", "double", "binary_float", "binary_double", "float4", "float8":
		return KindFloat
	case "date", "datetime", "timestamp", "timestamptz":
		return KindTemporal
	case "bool", "boolean":
		return KindBool
	default:
		return KindText
	}
}

// TableSchema represents the live column layout of a table
type TableSchema struct {
	Ref     TableRef
	Columns []ColumnInfo
}

// Column finds a column by name, ignoring case.
func (s *TableSchema) Column(name string) (ColumnInfo, bool) {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// match pairs each record key with its table column. Keys are returned in
// sorted order so statements are stable across runs.
func (s *TableSchema) match(record map[string]any) (keys, columns []string, err error) {
	keys = make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	columns = make([]string, len(keys))
	var missing []string
	for i, k := range keys {
		col, ok := s.Column(k)
		if !ok {
			missing = append(missing, k)
			continue
		}
		columns[i] = col.Name
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s has no column %s", etlerr.ErrColumnNotFound, s.Ref, strings.Join(missing, ", "))
	}
	return keys, columns, nil
}

// DescribeTable queries the catalog for the table's columns. A table that
// does not exist, or that the session cannot see, yields ErrTableNotFound.
func (g *Gateway) DescribeTable(ctx context.Context, ref TableRef) (*TableSchema, error) {
	if err := g.Open(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	ref = TableRef{Schema: g.dialect.fold(ref.Schema), Name: g.dialect.fold(ref.Name)}
	query, args := g.dialect.columnsQuery(ref)

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query table schema: %w", classify(ctx, err))
	}
	defer rows.Close()

	schema := &TableSchema{
		Ref:     ref,
		Columns: make([]ColumnInfo, 0),
	}

	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(&col.Name, &col.DataType); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", classify(ctx, err))
		}
		schema.Columns = append(schema.Columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schema rows: %w", classify(ctx, err))
	}

	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("%w: %s", etlerr.ErrTableNotFound, ref)
	}

	return schema, nil
}

// TableExists reports whether the table is visible to the session. An empty
// schema means the session's default schema.
func (g *Gateway) TableExists(ctx context.Context, name, schema string) (bool, error) {
	_, err := g.DescribeTable(ctx, TableRef{Schema: schema, Name: name})
	if errors.Is(err, etlerr.ErrTableNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
