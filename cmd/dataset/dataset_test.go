package dataset

import (
	"errors"
	"testing"
	"time"

	"github.com/ackruti/Oracle-etl-tool/cmd/etlerr"
)

func newMarkets(t *testing.T) *Dataset {
	t.Helper()
	ds, err := New("PART", "DP_GROUP_MKT", "QTY")
	if err != nil {
		t.Fatal(err)
	}
	rows := [][]any{
		{"P1", "EAST", 10},
		{"P2", "WEST", 20.5},
		{"P3", "EAST", int32(30)},
		{"P4", nil, 40},
	}
	for _, r := range rows {
		if err := ds.Append(r...); err != nil {
			t.Fatal(err)
		}
	}
	return ds
}

func TestNew(t *testing.T) {
	if _, err := New("a", "b", "a"); !errors.Is(err, ErrDuplicateColumn) {
		t.Fatalf("expected ErrDuplicateColumn, got %v", err)
	}

	ds, err := New("a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.Append(1); !errors.Is(err, ErrRowWidth) {
		t.Fatalf("expected ErrRowWidth, got %v", err)
	}
	if err := ds.Append(1, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if v, _ := ds.Value(0, "a"); v != int64(1) {
		t.Fatalf("expected int64 normalization, got %T", v)
	}
	if v, _ := ds.Value(0, "b"); v != "x" {
		t.Fatalf("expected string normalization, got %T", v)
	}
}

func TestRenameAndSelect(t *testing.T) {
	ds := newMarkets(t)

	renamed, err := ds.Rename(map[string]string{"PART": "part_id", "MISSING": "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	if got := renamed.Columns(); got[0] != "part_id" || got[1] != "DP_GROUP_MKT" {
		t.Fatalf("unexpected columns %v", got)
	}

	if _, err := ds.Rename(map[string]string{"PART": "QTY"}); !errors.Is(err, ErrDuplicateColumn) {
		t.Fatalf("expected ErrDuplicateColumn, got %v", err)
	}

	sel, err := renamed.Select("QTY", "part_id")
	if err != nil {
		t.Fatal(err)
	}
	if sel.Len() != 4 {
		t.Fatalf("expected 4 rows, got %d", sel.Len())
	}
	if row := sel.Row(1); row[0] != 20.5 || row[1] != "P2" {
		t.Fatalf("unexpected row %v", row)
	}

	if _, err := renamed.Select("qty"); !errors.Is(err, etlerr.ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestDistinctAndWhere(t *testing.T) {
	ds := newMarkets(t)

	groups, err := ds.Distinct("DP_GROUP_MKT")
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 || groups[0] != "EAST" || groups[1] != "WEST" {
		t.Fatalf("unexpected groups %v", groups)
	}

	east, err := ds.Where("DP_GROUP_MKT", "EAST")
	if err != nil {
		t.Fatal(err)
	}
	if east.Len() != 2 {
		t.Fatalf("expected 2 EAST rows, got %d", east.Len())
	}
	if east.Row(0)[0] != "P1" || east.Row(1)[0] != "P3" {
		t.Fatal("filter must preserve row order")
	}

	qty, err := ds.Distinct("QTY")
	if err != nil {
		t.Fatal(err)
	}
	want := []any{int64(10), 20.5, int64(30), int64(40)}
	for i := range want {
		if !Equal(qty[i], want[i]) {
			t.Fatalf("qty[%d] = %v, want %v", i, qty[i], want[i])
		}
	}

	if _, err := ds.Distinct("market"); !errors.Is(err, etlerr.ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestSliceAndRecords(t *testing.T) {
	ds := newMarkets(t)

	tests := []struct {
		start, end, want int
	}{
		{0, 2, 2},
		{2, 10, 2},
		{-1, 1, 1},
		{3, 3, 0},
		{5, 8, 0},
	}
	for _, tt := range tests {
		if got := ds.Slice(tt.start, tt.end).Len(); got != tt.want {
			t.Errorf("Slice(%d, %d).Len() = %d, want %d", tt.start, tt.end, got, tt.want)
		}
	}

	recs := ds.Records()
	if recs[3]["DP_GROUP_MKT"] != nil || recs[3]["PART"] != "P4" {
		t.Fatalf("unexpected record %v", recs[3])
	}
}

func TestParseTime(t *testing.T) {
	ds, _ := New("validity_date")
	_ = ds.Append("2024.03.01 00:00:00")
	_ = ds.Append(nil)

	if err := ds.ParseTime("validity_date", "2006.01.02 15:04:05"); err != nil {
		t.Fatal(err)
	}
	got, _ := ds.Value(0, "validity_date")
	if !got.(time.Time).Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}

	bad, _ := New("validity_date")
	_ = bad.Append("03/01/2024")
	if err := bad.ParseTime("validity_date", "2006.01.02 15:04:05"); !errors.Is(err, etlerr.ErrMalformedDate) {
		t.Fatalf("expected ErrMalformedDate, got %v", err)
	}
}

func TestMapColumn(t *testing.T) {
	ds, _ := New("qty", "note")
	_ = ds.Append("12", "a")
	_ = ds.Append(nil, "b")

	calls := 0
	err := ds.MapColumn("qty", func(v any) (any, error) {
		calls++
		return int64(len(v.(string))), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("nulls must be skipped, fn called %d times", calls)
	}
	if v, _ := ds.Value(0, "qty"); v != int64(2) {
		t.Fatalf("expected 2, got %v", v)
	}

	failing := errors.New("bad cell")
	if err := ds.MapColumn("note", func(any) (any, error) { return nil, failing }); !errors.Is(err, failing) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if err := ds.MapColumn("missing", func(v any) (any, error) { return v, nil }); !errors.Is(err, etlerr.ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestEscapeNonASCII(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"café", `caf\xe9`},
		{"tab\there", `tab\there`},
		{`back\slash`, `back\\slash`},
		{"Ω", `\u03a9`},
		{"😀", `\U0001f600`},
		{"bad\xffbyte", `bad\ufffdbyte`},
	}
	for _, tt := range tests {
		if got := EscapeNonASCII(tt.in); got != tt.want {
			t.Errorf("EscapeNonASCII(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{int64(42), "42"},
		{1.5, "1.5"},
		{true, "true"},
		{time.Date(2024, 3, 1, 13, 4, 5, 0, time.UTC), "2024-03-01 13:04:05"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
